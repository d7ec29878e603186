// Package bot wires Telegram updates to the moderation core and converts
// errors into chat-visible replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/codeGROOVE-dev/portero/internal/dialog"
	"github.com/codeGROOVE-dev/portero/internal/rules"
	"github.com/codeGROOVE-dev/portero/internal/telegram"
	"github.com/codeGROOVE-dev/portero/internal/vote"
)

// handlerTimeout bounds the platform calls made by a single update.
const handlerTimeout = 30 * time.Second

// User-visible replies.
const (
	startReply     = "Bot inicializado"
	noRulesReply   = "Todavía no hay reglas establecidas"
	cancelledReply = "Votación cancelada"

	inviteUsageReply       = "Uso: /invite @usuario"
	cancelInviteUsageReply = "Uso: /cancelinvite @usuario"
	alreadyActiveReply     = "Ya hay una votación activa para ese usuario"
	noActiveVoteReply      = "No hay ninguna votación activa para ese usuario"
	genericFailureReply    = "Ha ocurrido un error, inténtalo de nuevo más tarde"
)

// Router binds bot commands and events to the vote manager and the rules
// dialog machine.
type Router struct {
	client *telegram.Client
	votes  *vote.Manager
	dialog *dialog.Machine
	rules  *rules.Store
	logger *slog.Logger
}

// RouterConfig holds configuration for creating a router.
type RouterConfig struct {
	Client *telegram.Client
	Votes  *vote.Manager
	Dialog *dialog.Machine
	Rules  *rules.Store
	Logger *slog.Logger
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		client: cfg.Client,
		votes:  cfg.Votes,
		dialog: cfg.Dialog,
		rules:  cfg.Rules,
		logger: logger,
	}
}

// Register binds every command and event handler on the bot. Non-text
// updates other than member joins have no handler and are dropped by the
// dispatcher, so they can never reach the rules dialog.
func (r *Router) Register() {
	b := r.client.Bot()

	b.Handle("/start", r.handleStart)
	b.Handle("/rules", r.handleRules)
	b.Handle("/changerules", r.handleChangeRules)
	b.Handle("/cancel", r.handleCancel)
	b.Handle("/invite", r.handleInvite)
	b.Handle("/cancelinvite", r.handleCancelInvite)
	b.Handle(tele.OnText, r.handleText)
	b.Handle(tele.OnUserJoined, r.handleUserJoined)

	r.logger.Info("command handlers registered")
}

func (r *Router) handleStart(c tele.Context) error {
	return c.Send(startReply)
}

func (r *Router) handleRules(c tele.Context) error {
	text := r.rules.Read()
	if text == "" {
		text = noRulesReply
	}
	return c.Send(text)
}

func (r *Router) handleChangeRules(c tele.Context) error {
	reply, _ := r.dialog.ChangeRules(c.Sender().ID, c.Chat().ID)
	return c.Send(reply)
}

func (r *Router) handleCancel(c tele.Context) error {
	reply, handled := r.dialog.Cancel(c.Sender().ID, c.Chat().ID)
	if !handled {
		return nil
	}
	return c.Send(reply)
}

func (r *Router) handleText(c tele.Context) error {
	// Commands without a registered handler fall through to the text
	// handler. They are never rules text: an unrecognized command mid-dialog
	// leaves the dialog state and the rules document untouched.
	if isCommand(c.Text()) {
		return nil
	}

	reply, handled := r.dialog.ReceiveRules(c.Sender().ID, c.Chat().ID, c.Text())
	if !handled {
		return nil
	}
	return c.Send(reply)
}

func (r *Router) handleInvite(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	// On success the pinned poll itself is the user feedback.
	if _, err := r.votes.CreatePoll(ctx, c.Chat().ID, c.Sender().ID, c.Message().Payload); err != nil {
		r.logger.Warn("invite poll rejected",
			"chat_id", c.Chat().ID,
			"user_id", c.Sender().ID,
			"error", err)
		return c.Send(userMessage(err, inviteUsageReply))
	}
	return nil
}

func (r *Router) handleCancelInvite(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := r.votes.CancelPoll(ctx, c.Chat().ID, c.Sender().ID, c.Message().Payload); err != nil {
		r.logger.Warn("invite cancellation rejected",
			"chat_id", c.Chat().ID,
			"user_id", c.Sender().ID,
			"error", err)
		return c.Send(userMessage(err, cancelInviteUsageReply))
	}
	return c.Send(cancelledReply)
}

func (r *Router) handleUserJoined(c tele.Context) error {
	joined := joinedUsers(c.Message())
	if len(joined) == 0 {
		return nil
	}

	r.logger.Info("users joined chat",
		"chat_id", c.Chat().ID,
		"count", len(joined))

	return c.Send(welcomeMessage(joined, r.rules.Read()))
}

// isCommand reports whether text is a bot command rather than plain text.
func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// joinedUsers normalizes the two shapes a join update can take.
func joinedUsers(msg *tele.Message) []tele.User {
	if len(msg.UsersJoined) > 0 {
		return msg.UsersJoined
	}
	if msg.UserJoined != nil {
		return []tele.User{*msg.UserJoined}
	}
	return nil
}

func welcomeMessage(joined []tele.User, rulesText string) string {
	names := make([]string, 0, len(joined))
	for _, u := range joined {
		names = append(names, displayName(u))
	}

	greeting := fmt.Sprintf("¡Hola, %s! Bienvenido al grupo.", strings.Join(names, ", "))
	if rulesText == "" {
		return greeting
	}
	return greeting + "\n\nEstas son las reglas:\n" + rulesText
}

func displayName(u tele.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}

// userMessage converts a vote error into a chat-visible reply. Unknown
// errors get a generic failure message rather than leaking internals.
func userMessage(err error, usage string) string {
	var pe *vote.PermissionError
	if errors.As(err, &pe) {
		return "No se puede hacer eso: " + pe.Reason
	}

	switch {
	case errors.Is(err, vote.ErrInvalidArgument):
		return usage
	case errors.Is(err, vote.ErrAlreadyActive):
		return alreadyActiveReply
	case errors.Is(err, vote.ErrNotFound):
		return noActiveVoteReply
	default:
		return genericFailureReply
	}
}
