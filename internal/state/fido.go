package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/fido"
	"github.com/codeGROOVE-dev/fido/pkg/store/cloudrun"
)

// jobTTL bounds how long a persisted job outlives its scheduled closure.
// Generous relative to the default 24h window so oversized configured
// windows still survive restarts.
const jobTTL = 30 * 24 * time.Hour

// jobQueue stores all scheduled jobs in a single persisted value, keeping
// the whole queue visible to ListJobs after a restart.
type jobQueue struct {
	Jobs map[string]PollJob `json:"jobs"`
}

const jobQueueKey = "queue" // Single key for all scheduled jobs

// FidoStore implements Store using fido with CloudRun backend.
//
// Requires the portero-jobs Datastore database when running on Cloud Run;
// elsewhere the backend auto-detects the environment.
type FidoStore struct {
	jobs *fido.TieredCache[string, jobQueue]
	mu   sync.Mutex // Serializes read-modify-write of the queue value
}

// FidoStoreOption configures a FidoStore.
type FidoStoreOption func(*fidoStoreOptions)

type fidoStoreOptions struct {
	jobStore fido.Store[string, jobQueue]
}

// WithJobStore sets a custom backing store for job data.
func WithJobStore(s fido.Store[string, jobQueue]) FidoStoreOption {
	return func(o *fidoStoreOptions) { o.jobStore = s }
}

// NewFidoStore creates a new fido-backed store.
// Use WithJobStore to inject a custom store for testing.
func NewFidoStore(ctx context.Context, opts ...FidoStoreOption) (*FidoStore, error) {
	var o fidoStoreOptions
	for _, opt := range opts {
		opt(&o)
	}

	jobStore := o.jobStore
	if jobStore == nil {
		var err error
		jobStore, err = cloudrun.New[string, jobQueue](ctx, "portero-jobs")
		if err != nil {
			return nil, fmt.Errorf("create job store: %w", err)
		}
	}

	jobs, err := fido.NewTiered(jobStore, fido.TTL(jobTTL))
	if err != nil {
		return nil, fmt.Errorf("create job cache: %w", err)
	}

	slog.Info("initialized fido store")
	return &FidoStore{jobs: jobs}, nil
}

// SaveJob stores a job under its name.
func (s *FidoStore) SaveJob(ctx context.Context, job PollJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, _, err := s.jobs.Get(ctx, jobQueueKey)
	if err != nil {
		slog.Debug("job queue fetch error, starting fresh", "error", err)
	}
	if queue.Jobs == nil {
		queue.Jobs = make(map[string]PollJob)
	}

	queue.Jobs[job.Name()] = job

	return s.jobs.Set(ctx, jobQueueKey, queue)
}

// RemoveJob deletes a job by name. Removing an absent job is a no-op.
func (s *FidoStore) RemoveJob(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, _, err := s.jobs.Get(ctx, jobQueueKey)
	if err != nil {
		return nil // Queue doesn't exist, nothing to remove
	}
	if queue.Jobs == nil {
		return nil
	}

	delete(queue.Jobs, name)
	return s.jobs.Set(ctx, jobQueueKey, queue)
}

// ListJobs returns all stored jobs.
func (s *FidoStore) ListJobs(ctx context.Context) ([]PollJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, _, err := s.jobs.Get(ctx, jobQueueKey)
	if err != nil {
		slog.Debug("job queue fetch error", "error", err)
		return nil, nil
	}

	jobs := make([]PollJob, 0, len(queue.Jobs))
	for name := range queue.Jobs {
		jobs = append(jobs, queue.Jobs[name])
	}
	return jobs, nil
}

// Close releases resources.
func (s *FidoStore) Close() error {
	if err := s.jobs.Close(); err != nil {
		return fmt.Errorf("close jobs: %w", err)
	}
	return nil
}
