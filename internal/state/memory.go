package state

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryStore provides an in-memory implementation of Store. Jobs do not
// survive a restart; intended for tests and ephemeral deployments.
type MemoryStore struct {
	jobs map[string]PollJob
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]PollJob),
	}
}

// SaveJob stores a job under its name.
func (s *MemoryStore) SaveJob(_ context.Context, job PollJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.Name()] = job

	slog.Debug("saved job",
		"name", job.Name(),
		"chat_id", job.ChatID,
		"close_at", job.CloseAt)

	return nil
}

// RemoveJob deletes a job by name. Removing an absent job is a no-op.
func (s *MemoryStore) RemoveJob(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, name)
	return nil
}

// ListJobs returns all stored jobs.
func (s *MemoryStore) ListJobs(_ context.Context) ([]PollJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]PollJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Close closes the store (no-op for memory store).
func (*MemoryStore) Close() error {
	return nil
}
