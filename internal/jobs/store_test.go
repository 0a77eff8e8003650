package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"voice-converter/internal/domain"
)

// storeFactories lets every contract test run against both backends.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

// TestStoreLifecycle verifies the normal progression to completed.
func TestStoreLifecycle(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			job := domain.Job{ID: "job-1", Policy: domain.PolicyOriginal}
			if err := store.Create(ctx, job); err != nil {
				t.Fatalf("create: %v", err)
			}

			got, err := store.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != domain.JobStatusQueued {
				t.Fatalf("status = %s, want queued", got.Status)
			}
			if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
				t.Fatal("expected timestamps to be set")
			}

			if err := store.SetStatus(ctx, "job-1", domain.JobStatusProcessing, "starting"); err != nil {
				t.Fatalf("to processing: %v", err)
			}
			if err := store.SetProgress(ctx, "job-1", 30, "transcribed"); err != nil {
				t.Fatalf("progress: %v", err)
			}
			if err := store.Complete(ctx, "job-1", "job-1.wav", "done"); err != nil {
				t.Fatalf("complete: %v", err)
			}

			got, err = store.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != domain.JobStatusCompleted {
				t.Fatalf("status = %s, want completed", got.Status)
			}
			if got.Progress != 100 {
				t.Fatalf("progress = %v, want 100", got.Progress)
			}
			if got.OutputRef != "job-1.wav" {
				t.Fatalf("output ref = %q", got.OutputRef)
			}
			if got.Policy != domain.PolicyOriginal {
				t.Fatalf("policy = %q", got.Policy)
			}
		})
	}
}

// TestStoreRejectsInvalidTransitions checks the state machine edges.
func TestStoreRejectsInvalidTransitions(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			if err := store.Create(ctx, domain.Job{ID: "job-1"}); err != nil {
				t.Fatalf("create: %v", err)
			}

			// Completing a queued job skips processing.
			if err := store.Complete(ctx, "job-1", "x.wav", "done"); err == nil {
				t.Fatal("expected invalid transition error")
			}

			if err := store.SetStatus(ctx, "job-1", domain.JobStatusProcessing, ""); err != nil {
				t.Fatalf("to processing: %v", err)
			}
			if err := store.Fail(ctx, "job-1", "synthesis exploded"); err != nil {
				t.Fatalf("fail: %v", err)
			}

			// Terminal states accept no further transitions.
			if err := store.SetStatus(ctx, "job-1", domain.JobStatusProcessing, ""); err == nil {
				t.Fatal("expected error reviving a failed job")
			}

			got, err := store.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Error != "synthesis exploded" {
				t.Fatalf("error = %q", got.Error)
			}
		})
	}
}

// TestStoreProgressNeverMovesBackwards checks monotonic progress.
func TestStoreProgressNeverMovesBackwards(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			if err := store.Create(ctx, domain.Job{ID: "job-1"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.SetStatus(ctx, "job-1", domain.JobStatusProcessing, ""); err != nil {
				t.Fatalf("to processing: %v", err)
			}

			if err := store.SetProgress(ctx, "job-1", 50, "halfway"); err != nil {
				t.Fatalf("progress: %v", err)
			}
			if err := store.SetProgress(ctx, "job-1", 10, "stale update"); err != nil {
				t.Fatalf("progress: %v", err)
			}

			got, err := store.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Progress != 50 {
				t.Fatalf("progress = %v, want 50", got.Progress)
			}
			if got.Message != "stale update" {
				t.Fatalf("message = %q", got.Message)
			}
		})
	}
}

// TestStoreFailureKeepsProgress checks failures never roll progress back.
func TestStoreFailureKeepsProgress(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			if err := store.Create(ctx, domain.Job{ID: "job-1"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.SetStatus(ctx, "job-1", domain.JobStatusProcessing, ""); err != nil {
				t.Fatalf("to processing: %v", err)
			}
			if err := store.SetProgress(ctx, "job-1", 80, "reconstructing"); err != nil {
				t.Fatalf("progress: %v", err)
			}
			if err := store.Fail(ctx, "job-1", "disk full"); err != nil {
				t.Fatalf("fail: %v", err)
			}

			got, err := store.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Progress != 80 {
				t.Fatalf("progress = %v, want 80", got.Progress)
			}
			if got.Error == "" {
				t.Fatal("expected non-empty error")
			}
		})
	}
}

// TestStoreMissingAndDuplicateJobs checks sentinel error behavior.
func TestStoreMissingAndDuplicateJobs(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			if _, err := store.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("get error = %v, want ErrNotFound", err)
			}
			if err := store.SetProgress(ctx, "ghost", 10, ""); !errors.Is(err, ErrNotFound) {
				t.Fatalf("progress error = %v, want ErrNotFound", err)
			}

			if err := store.Create(ctx, domain.Job{ID: "job-1"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.Create(ctx, domain.Job{ID: "job-1"}); !errors.Is(err, ErrDuplicateJob) {
				t.Fatalf("create error = %v, want ErrDuplicateJob", err)
			}
		})
	}
}

// TestStoreConcurrentReadsNeverSeeTornProjection hammers Get while a
// writer advances progress and completes the job. Status and progress
// must always move together: a reader may never observe a processing
// job at 100, nor a completed job below 100.
func TestStoreConcurrentReadsNeverSeeTornProjection(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			if err := store.Create(ctx, domain.Job{ID: "job-1"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.SetStatus(ctx, "job-1", domain.JobStatusProcessing, ""); err != nil {
				t.Fatalf("to processing: %v", err)
			}

			done := make(chan struct{})
			var wg sync.WaitGroup
			for r := 0; r < 4; r++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						select {
						case <-done:
							return
						default:
						}
						got, err := store.Get(ctx, "job-1")
						if err != nil {
							continue
						}
						if got.Status == domain.JobStatusProcessing && got.Progress >= 100 {
							t.Errorf("observed processing job at progress %v", got.Progress)
							return
						}
						if got.Status == domain.JobStatusCompleted && got.Progress != 100 {
							t.Errorf("observed completed job at progress %v", got.Progress)
							return
						}
					}
				}()
			}

			for pct := 1; pct < 100; pct++ {
				if err := store.SetProgress(ctx, "job-1", float64(pct), "working"); err != nil {
					t.Errorf("progress %d: %v", pct, err)
					break
				}
			}
			if err := store.Complete(ctx, "job-1", "job-1.wav", "done"); err != nil {
				t.Errorf("complete: %v", err)
			}
			close(done)
			wg.Wait()

			got, err := store.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != domain.JobStatusCompleted || got.Progress != 100 {
				t.Fatalf("final state = %s/%v, want completed/100", got.Status, got.Progress)
			}
		})
	}
}

// TestStoreListNewestFirst checks list ordering.
func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, domain.Job{ID: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("len = %d, want 3", len(listed))
	}
}

// TestMemoryStoreReturnsSnapshots verifies reads are isolated from
// later mutation of the returned value.
func TestMemoryStoreReturnsSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snapshot, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	snapshot.Status = domain.JobStatusCompleted
	snapshot.Progress = 100

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusQueued || got.Progress != 0 {
		t.Fatalf("stored job mutated through snapshot: %+v", got)
	}
}
