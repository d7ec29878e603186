// Package state provides persistent state management for scheduled vote jobs.
package state

import (
	"context"
	"fmt"
	"time"
)

// PollJob represents one scheduled invite vote and its eventual auto-closure.
// Immutable once scheduled; cancellation removes it rather than editing it.
type PollJob struct {
	CreatedAt   time.Time `json:"created_at"`
	CloseAt     time.Time `json:"close_at"`
	ID          string    `json:"id"`
	Username    string    `json:"username"` // with leading @
	ChatID      int64     `json:"chat_id"`
	RequesterID int64     `json:"requester_id"`
	MessageID   int       `json:"message_id"` // the pinned poll message
}

// Name returns the registry key for the job. One invite vote may be active
// per (chat, username) pair at a time.
func (j PollJob) Name() string {
	return JobName(j.ChatID, j.Username)
}

// JobName derives the registry key for a (chat, username) pair.
func JobName(chatID int64, username string) string {
	return fmt.Sprintf("%d:%s", chatID, username)
}

// Store persists scheduled vote jobs so a restart can re-arm their timers.
type Store interface {
	SaveJob(ctx context.Context, job PollJob) error
	RemoveJob(ctx context.Context, name string) error
	ListJobs(ctx context.Context) ([]PollJob, error)
	Close() error
}
