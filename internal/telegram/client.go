// Package telegram provides Telegram Bot API client functionality.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"
	tele "gopkg.in/telebot.v4"
)

const longPollTimeout = 10 * time.Second

// Client wraps tele.Bot with a clean interface for bot operations.
type Client struct {
	bot *tele.Bot
}

// New creates a new Telegram client using long polling.
func New(token string) (*Client, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: longPollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Client{bot: bot}, nil
}

// retryableCtx wraps a function with standard retry configuration. Only used
// for idempotent queries; mutating calls stay at-most-once.
func retryableCtx(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
}

// Bot returns the underlying telebot instance for handler registration.
func (c *Client) Bot() *tele.Bot {
	return c.bot
}

// Start begins processing updates. Blocks until Stop is called.
func (c *Client) Start() {
	c.bot.Start()
}

// Stop stops the update poller.
func (c *Client) Stop() {
	c.bot.Stop()
}

// Member describes the bot's own standing in a chat.
type Member struct {
	Role           string
	CanPinMessages bool
	CanInviteUsers bool
}

// OptionCount pairs a poll option label with its final vote count.
type OptionCount struct {
	Label string
	Count int
}

// SendMessage sends a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := c.bot.Send(tele.ChatID(chatID), text)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}

	slog.Info("sent chat message",
		"chat_id", chatID,
		"message_id", msg.ID)

	return msg.ID, nil
}

// SendPoll sends an anonymous single-answer poll and returns its message ID.
func (c *Client) SendPoll(ctx context.Context, chatID int64, question string, options []string) (int, error) {
	poll := &tele.Poll{
		Type:      tele.PollRegular,
		Question:  question,
		Anonymous: true,
	}
	poll.AddOptions(options...)

	msg, err := c.bot.Send(tele.ChatID(chatID), poll)
	if err != nil {
		return 0, fmt.Errorf("failed to send poll: %w", err)
	}

	slog.Info("sent poll",
		"chat_id", chatID,
		"message_id", msg.ID,
		"question", question,
		"options", len(options))

	return msg.ID, nil
}

// PinMessage pins a message in a chat.
func (c *Client) PinMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.bot.Pin(storedMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to pin message: %w", err)
	}

	slog.Info("pinned message", "chat_id", chatID, "message_id", messageID)
	return nil
}

// UnpinMessage unpins a message in a chat.
func (c *Client) UnpinMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.bot.Unpin(tele.ChatID(chatID), messageID); err != nil {
		return fmt.Errorf("failed to unpin message: %w", err)
	}

	slog.Info("unpinned message", "chat_id", chatID, "message_id", messageID)
	return nil
}

// StopPoll stops further voting on a poll and returns the per-option vote
// counts in the poll's original option order.
func (c *Client) StopPoll(ctx context.Context, chatID int64, messageID int) ([]OptionCount, error) {
	poll, err := c.bot.StopPoll(storedMessage(chatID, messageID))
	if err != nil {
		return nil, fmt.Errorf("failed to stop poll: %w", err)
	}

	counts := optionCounts(poll)

	slog.Info("stopped poll",
		"chat_id", chatID,
		"message_id", messageID,
		"options", len(counts))

	return counts, nil
}

// BotMember returns the bot's own membership in a chat. The query is
// idempotent and retried on transient failures.
func (c *Client) BotMember(ctx context.Context, chatID int64) (Member, error) {
	var member *tele.ChatMember
	err := retryableCtx(ctx, func() error {
		var err error
		member, err = c.bot.ChatMemberOf(tele.ChatID(chatID), c.bot.Me)
		return err
	})
	if err != nil {
		return Member{}, fmt.Errorf("failed to fetch bot membership: %w", err)
	}

	m := memberFrom(member)

	slog.Debug("fetched bot membership",
		"chat_id", chatID,
		"role", m.Role,
		"can_pin_messages", m.CanPinMessages,
		"can_invite_users", m.CanInviteUsers)

	return m, nil
}

func storedMessage(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
}

func memberFrom(member *tele.ChatMember) Member {
	return Member{
		Role:           string(member.Role),
		CanPinMessages: member.Rights.CanPinMessages,
		CanInviteUsers: member.Rights.CanInviteUsers,
	}
}

func optionCounts(poll *tele.Poll) []OptionCount {
	counts := make([]OptionCount, 0, len(poll.Options))
	for _, opt := range poll.Options {
		counts = append(counts, OptionCount{
			Label: opt.Text,
			Count: opt.VoterCount,
		})
	}
	return counts
}
