// Package vote orchestrates the lifecycle of group-invitation polls:
// creation, timed auto-closure, result announcement, and cancellation.
package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/portero/internal/schedule"
	"github.com/codeGROOVE-dev/portero/internal/state"
	"github.com/codeGROOVE-dev/portero/internal/telegram"
)

// Error taxonomy for user-triggered operations. Matched with errors.Is at
// the handler boundary and converted to chat-visible messages.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyActive    = errors.New("vote already active")
)

// PermissionError carries the user-visible reason an action was denied.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Reason
}

// Is makes errors.Is(err, ErrPermissionDenied) match.
func (*PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

const defaultWindow = 86400 * time.Second

const questionTemplate = "¿Dejamos entrar a %s al grupo?"

// pollOptions are the fixed answers, in the order they are sent, tallied,
// and announced.
var pollOptions = []string{"Sí", "No sé si sí", "No sé si no", "No"}

// Messenger defines the platform operations the lifecycle manager needs.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	SendPoll(ctx context.Context, chatID int64, question string, options []string) (int, error)
	PinMessage(ctx context.Context, chatID int64, messageID int) error
	UnpinMessage(ctx context.Context, chatID int64, messageID int) error
	StopPoll(ctx context.Context, chatID int64, messageID int) ([]telegram.OptionCount, error)
}

// Checker validates that the bot may create an invite poll in a chat.
type Checker interface {
	CanCreateInvitePoll(ctx context.Context, chatID int64) (ok bool, reason string, err error)
}

// Scheduler is the registry surface the manager uses. The manager holds
// only job names, never registry entries.
type Scheduler interface {
	Schedule(ctx context.Context, job state.PollJob) error
	FindByName(name string) (state.PollJob, bool)
	CancelByName(ctx context.Context, name string) (state.PollJob, bool)
}

// Manager orchestrates invite poll creation, closure, and cancellation.
type Manager struct {
	messenger Messenger
	checker   Checker
	scheduler Scheduler
	logger    *slog.Logger
	window    time.Duration
}

// ManagerConfig holds configuration for creating a manager.
type ManagerConfig struct {
	Messenger Messenger
	Checker   Checker
	Scheduler Scheduler
	Logger    *slog.Logger
	Window    time.Duration
}

// NewManager creates a poll lifecycle manager. A zero window defaults to
// 24 hours.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}

	return &Manager{
		messenger: cfg.Messenger,
		checker:   cfg.Checker,
		scheduler: cfg.Scheduler,
		logger:    logger,
		window:    window,
	}
}

// parseUsername validates that raw is exactly one @-prefixed username token.
func parseUsername(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) != 1 {
		return "", fmt.Errorf("%w: expected exactly one @username argument", ErrInvalidArgument)
	}

	username := fields[0]
	if !strings.HasPrefix(username, "@") || len(username) < 2 {
		return "", fmt.Errorf("%w: username must start with @", ErrInvalidArgument)
	}
	return username, nil
}

// CreatePoll sends a pinned, anonymous invite poll for the named user and
// schedules its auto-closure.
func (m *Manager) CreatePoll(ctx context.Context, chatID, requesterID int64, rawArgs string) (state.PollJob, error) {
	username, err := parseUsername(rawArgs)
	if err != nil {
		return state.PollJob{}, err
	}

	// Reject duplicates before touching the platform: a second /invite for
	// the same user mid-vote must not send another poll. Schedule rejects
	// again below, closing the check-then-act window.
	if _, active := m.scheduler.FindByName(state.JobName(chatID, username)); active {
		return state.PollJob{}, fmt.Errorf("%w: %s", ErrAlreadyActive, username)
	}

	ok, reason, err := m.checker.CanCreateInvitePoll(ctx, chatID)
	if err != nil {
		return state.PollJob{}, fmt.Errorf("could not verify bot permissions: %w", err)
	}
	if !ok {
		return state.PollJob{}, &PermissionError{Reason: reason}
	}

	question := fmt.Sprintf(questionTemplate, username)
	messageID, err := m.messenger.SendPoll(ctx, chatID, question, pollOptions)
	if err != nil {
		return state.PollJob{}, fmt.Errorf("failed to send poll: %w", err)
	}

	if err := m.messenger.PinMessage(ctx, chatID, messageID); err != nil {
		// The poll is already live; a failed pin is not retried.
		m.logger.Warn("failed to pin poll message",
			"chat_id", chatID,
			"message_id", messageID,
			"error", err)
	}

	now := time.Now()
	job := state.PollJob{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		MessageID:   messageID,
		Username:    username,
		RequesterID: requesterID,
		CreatedAt:   now,
		CloseAt:     now.Add(m.window),
	}

	if err := m.scheduler.Schedule(ctx, job); err != nil {
		if errors.Is(err, schedule.ErrDuplicate) {
			return state.PollJob{}, fmt.Errorf("%w: %s", ErrAlreadyActive, username)
		}
		return state.PollJob{}, fmt.Errorf("failed to schedule poll closure: %w", err)
	}

	m.logger.Info("invite poll created",
		"chat_id", chatID,
		"username", username,
		"requester_id", requesterID,
		"message_id", messageID,
		"close_at", job.CloseAt)

	return job, nil
}

// ClosePoll stops voting, unpins the poll, and announces per-option results
// in the original option order. Invoked only by the registry when a job's
// window elapses; the timer, not a user, triggers it, so there is no
// authorization check.
func (m *Manager) ClosePoll(ctx context.Context, job state.PollJob) {
	counts, err := m.messenger.StopPoll(ctx, job.ChatID, job.MessageID)
	if err != nil {
		m.logger.Error("failed to stop poll",
			"chat_id", job.ChatID,
			"message_id", job.MessageID,
			"username", job.Username,
			"error", err)
		return
	}

	if err := m.messenger.UnpinMessage(ctx, job.ChatID, job.MessageID); err != nil {
		// The results still go out even if the unpin fails.
		m.logger.Warn("failed to unpin closed poll",
			"chat_id", job.ChatID,
			"message_id", job.MessageID,
			"error", err)
	}

	if _, err := m.messenger.SendMessage(ctx, job.ChatID, resultsMessage(job.Username, counts)); err != nil {
		m.logger.Error("failed to announce poll results",
			"chat_id", job.ChatID,
			"username", job.Username,
			"error", err)
		return
	}

	m.logger.Info("invite poll closed",
		"chat_id", job.ChatID,
		"username", job.Username,
		"message_id", job.MessageID)
}

// CancelPoll removes an active invite poll early. Only the user who started
// the vote may cancel it.
func (m *Manager) CancelPoll(ctx context.Context, chatID, requesterID int64, rawArgs string) error {
	username, err := parseUsername(rawArgs)
	if err != nil {
		return err
	}

	name := state.JobName(chatID, username)
	job, found := m.scheduler.FindByName(name)
	if !found {
		return fmt.Errorf("%w: no active vote for %s", ErrNotFound, username)
	}
	if job.RequesterID != requesterID {
		return &PermissionError{Reason: "solo quien inició la votación puede cancelarla"}
	}

	claimed, ok := m.scheduler.CancelByName(ctx, name)
	if !ok {
		// The timer fired between lookup and cancel; closure owns the poll.
		return fmt.Errorf("%w: no active vote for %s", ErrNotFound, username)
	}

	if err := m.messenger.UnpinMessage(ctx, claimed.ChatID, claimed.MessageID); err != nil {
		m.logger.Warn("failed to unpin cancelled poll",
			"chat_id", claimed.ChatID,
			"message_id", claimed.MessageID,
			"error", err)
	}

	m.logger.Info("invite poll cancelled",
		"chat_id", chatID,
		"username", username,
		"requester_id", requesterID)

	return nil
}

func resultsMessage(username string, counts []telegram.OptionCount) string {
	var b strings.Builder
	fmt.Fprintf(&b, "La votación para invitar a %s ha terminado. Resultados:", username)
	for _, c := range counts {
		fmt.Fprintf(&b, "\n%s: %d", c.Label, c.Count)
	}
	return b.String()
}
