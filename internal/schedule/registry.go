// Package schedule provides the process-wide registry of named, deferred
// poll-closure jobs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/portero/internal/state"
)

// closeTimeout bounds the platform calls made by a firing closure.
const closeTimeout = 2 * time.Minute

// ErrDuplicate is returned by Schedule when a job with the same name is
// already registered.
var ErrDuplicate = errors.New("job already scheduled")

// ErrStopped is returned by Schedule after the registry has shut down.
var ErrStopped = errors.New("registry stopped")

// Closer is invoked on its own goroutine when a job's window elapses.
type Closer func(ctx context.Context, job state.PollJob)

// entry pairs a job with its armed timer. The claimed flag resolves the
// race between timer fire and manual cancellation: whichever path claims
// the entry first proceeds, the other observes absence.
type entry struct {
	timer   *time.Timer
	job     state.PollJob
	claimed bool
}

// Registry owns every scheduled poll job. No other component reads or
// writes job state directly; the lifecycle manager holds only job names.
type Registry struct {
	store   state.Store
	closer  Closer
	logger  *slog.Logger
	entries map[string]*entry
	mu      sync.Mutex
	stopped bool
}

// New creates a registry backed by the given store. Scheduled jobs are
// written through so a restart can restore them.
func New(store state.Store, closer Closer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		store:   store,
		closer:  closer,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Schedule registers a one-shot timer that invokes the closer at the job's
// CloseAt. A job whose name is already registered is rejected with
// ErrDuplicate rather than silently re-armed.
func (r *Registry) Schedule(ctx context.Context, job state.PollJob) error {
	if err := r.arm(job); err != nil {
		return err
	}

	// Persistence is best-effort: a write failure only costs durability
	// across restarts, not the in-process timer.
	if err := r.store.SaveJob(ctx, job); err != nil {
		r.logger.Warn("failed to persist scheduled job",
			"name", job.Name(),
			"error", err)
	}

	r.logger.Info("scheduled poll closure",
		"name", job.Name(),
		"chat_id", job.ChatID,
		"close_at", job.CloseAt)

	return nil
}

// arm registers the timer without touching the store.
func (r *Registry) arm(job state.PollJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrStopped
	}

	name := job.Name()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}

	e := &entry{job: job}
	e.timer = time.AfterFunc(time.Until(job.CloseAt), func() {
		r.fire(name)
	})
	r.entries[name] = e

	return nil
}

// fire runs on the timer's goroutine when a job's window elapses.
func (r *Registry) fire(name string) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok || e.claimed {
		// Cancelled between timer fire and claim.
		r.mu.Unlock()
		return
	}
	e.claimed = true
	delete(r.entries, name)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := r.store.RemoveJob(ctx, name); err != nil {
		r.logger.Warn("failed to remove fired job from store",
			"name", name,
			"error", err)
	}

	r.logger.Info("poll closure window elapsed", "name", name)
	r.closer(ctx, e.job)
}

// FindByName returns the scheduled job with that name, if any.
func (r *Registry) FindByName(name string) (state.PollJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok || e.claimed {
		return state.PollJob{}, false
	}
	return e.job, true
}

// Jobs returns all currently scheduled jobs.
func (r *Registry) Jobs() []state.PollJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]state.PollJob, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.claimed {
			jobs = append(jobs, e.job)
		}
	}
	return jobs
}

// CancelByName disarms and removes a job. Returns the removed job and true
// if a job was found; false once the job has fired or was already
// cancelled, so a cancel racing the timer can never double-close a poll.
// Idempotent: a second call returns false.
func (r *Registry) CancelByName(ctx context.Context, name string) (state.PollJob, bool) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok || e.claimed {
		r.mu.Unlock()
		return state.PollJob{}, false
	}
	e.claimed = true
	e.timer.Stop()
	delete(r.entries, name)
	r.mu.Unlock()

	if err := r.store.RemoveJob(ctx, name); err != nil {
		r.logger.Warn("failed to remove cancelled job from store",
			"name", name,
			"error", err)
	}

	r.logger.Info("cancelled scheduled poll closure", "name", name)
	return e.job, true
}

// Restore loads persisted jobs from the store and re-arms their timers.
// Jobs whose window elapsed while the process was down fire immediately.
// Returns the number of restored jobs.
func (r *Registry) Restore(ctx context.Context) int {
	jobs, err := r.store.ListJobs(ctx)
	if err != nil {
		r.logger.Warn("failed to list persisted jobs", "error", err)
		return 0
	}

	restored := 0
	for _, job := range jobs {
		if err := r.arm(job); err != nil {
			r.logger.Warn("failed to restore job",
				"name", job.Name(),
				"error", err)
			continue
		}
		restored++
	}

	if restored > 0 {
		r.logger.Info("restored persisted jobs", "count", restored)
	}
	return restored
}

// Stop disarms all timers without firing them. Persisted jobs stay in the
// store so the next process can restore them.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for name, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, name)
	}

	r.logger.Info("registry stopped")
}
