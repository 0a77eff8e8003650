package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"voice-converter/internal/domain"
)

// MemoryStore keeps jobs in a mutex-guarded map. Suitable for single
// process deployments; state is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]domain.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}
	if job.Status == "" {
		job.Status = domain.JobStatusQueued
	}
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status domain.JobStatus, message string) error {
	return s.update(id, func(job *domain.Job) error {
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

func (s *MemoryStore) SetProgress(_ context.Context, id string, progress float64, message string) error {
	return s.update(id, func(job *domain.Job) error {
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

func (s *MemoryStore) Complete(_ context.Context, id, outputRef, message string) error {
	return s.update(id, func(job *domain.Job) error {
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

func (s *MemoryStore) Fail(_ context.Context, id, errorMessage string) error {
	return s.update(id, func(job *domain.Job) error {
		if !validTransition(job.Status, domain.JobStatusFailed) {
			return transitionError(id, job.Status, domain.JobStatusFailed)
		}
		job.Status = domain.JobStatusFailed
		job.Error = errorMessage
		job.Message = "conversion failed"
		return nil
	})
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) update(id string, apply func(*domain.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if err := apply(&job); err != nil {
		return err
	}
	job.UpdatedAt = s.now().UTC()
	s.jobs[id] = job
	return nil
}
