package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"voice-converter/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	progress   REAL NOT NULL DEFAULT 0,
	message    TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	output_ref TEXT NOT NULL DEFAULT '',
	policy     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore persists jobs in a local SQLite database so status survives
// process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	// The driver is not safe for concurrent writers on one connection pool
	// beyond what SQLite serializes itself.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply job schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, job domain.Job) error {
	if job.Status == "" {
		job.Status = domain.JobStatusQueued
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, progress, message, error, output_ref, policy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Progress, job.Message, job.Error,
		job.OutputRef, string(job.Policy), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if exists, checkErr := s.exists(ctx, job.ID); checkErr == nil && exists {
			return ErrDuplicateJob
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, progress, message, error, output_ref, policy, created_at, updated_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, progress, message, error, output_ref, policy, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status domain.JobStatus, message string) error {
	return s.guarded(ctx, id, func(job *domain.Job) error {
		if job.Status == status {
			if message != "" {
				job.Message = message
			}
			return nil
		}
		if !validTransition(job.Status, status) {
			return transitionError(id, job.Status, status)
		}
		job.Status = status
		if message != "" {
			job.Message = message
		}
		return nil
	})
}

func (s *SQLiteStore) SetProgress(ctx context.Context, id string, progress float64, message string) error {
	return s.guarded(ctx, id, func(job *domain.Job) error {
		if job.Status != domain.JobStatusProcessing {
			return transitionError(id, job.Status, domain.JobStatusProcessing)
		}
		if progress > job.Progress {
			job.Progress = progress
		}
		if message != "" {
			job.Message = message
		}
		return nil
	})
}

func (s *SQLiteStore) Complete(ctx context.Context, id, outputRef, message string) error {
	return s.guarded(ctx, id, func(job *domain.Job) error {
		if !validTransition(job.Status, domain.JobStatusCompleted) {
			return transitionError(id, job.Status, domain.JobStatusCompleted)
		}
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		job.OutputRef = outputRef
		job.Message = message
		return nil
	})
}

func (s *SQLiteStore) Fail(ctx context.Context, id, errorMessage string) error {
	return s.guarded(ctx, id, func(job *domain.Job) error {
		if !validTransition(job.Status, domain.JobStatusFailed) {
			return transitionError(id, job.Status, domain.JobStatusFailed)
		}
		job.Status = domain.JobStatusFailed
		job.Error = errorMessage
		job.Message = "conversion failed"
		return nil
	})
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// guarded applies a read-modify-write inside one transaction so the state
// machine check and the update cannot interleave with another writer.
func (s *SQLiteStore) guarded(ctx context.Context, id string, apply func(*domain.Job) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, status, progress, message, error, output_ref, policy, created_at, updated_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return err
	}
	if err := apply(&job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ?, message = ?, error = ?, output_ref = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), job.Progress, job.Message, job.Error, job.OutputRef, job.UpdatedAt, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var job domain.Job
	var status, policy string
	err := row.Scan(&job.ID, &status, &job.Progress, &job.Message, &job.Error,
		&job.OutputRef, &policy, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, ErrNotFound
	}
	if err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	job.Policy = domain.ReconstructionPolicy(policy)
	return job, nil
}
