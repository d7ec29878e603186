// Package perm validates acting principals before privileged actions.
package perm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeGROOVE-dev/portero/internal/telegram"
)

// Chat member roles as reported by the platform.
const (
	roleAdministrator = "administrator"
	roleCreator       = "creator"
)

// Capability descriptions surfaced to users when a check fails.
const (
	ReasonNotAdmin     = "el bot necesita ser administrador del grupo"
	ReasonCannotPin    = "el bot necesita poder fijar mensajes (can_pin_messages)"
	ReasonCannotInvite = "el bot necesita poder invitar usuarios (can_invite_users)"
)

// MemberLookup queries the bot's own membership in a chat.
type MemberLookup interface {
	BotMember(ctx context.Context, chatID int64) (telegram.Member, error)
}

// Checker validates administrator identity and bot capabilities.
type Checker struct {
	members MemberLookup
	logger  *slog.Logger
	adminID int64
}

// New creates a permission checker for the configured administrator.
func New(adminID int64, members MemberLookup, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		adminID: adminID,
		members: members,
		logger:  logger,
	}
}

// IsAuthorizedAdmin reports whether userID is the configured administrator.
func (c *Checker) IsAuthorizedAdmin(userID int64) bool {
	return userID == c.adminID
}

// CanCreateInvitePoll reports whether the bot can run an invite vote in the
// chat: it must be an administrator that can pin messages and invite users.
// When the check fails, reason names the first missing capability. A non-nil
// error means the answer is undeterminable, never an implicit denial.
func (c *Checker) CanCreateInvitePoll(ctx context.Context, chatID int64) (ok bool, reason string, err error) {
	member, err := c.members.BotMember(ctx, chatID)
	if err != nil {
		return false, "", fmt.Errorf("could not determine bot capabilities: %w", err)
	}

	if member.Role != roleAdministrator && member.Role != roleCreator {
		c.logger.Warn("bot is not a chat administrator",
			"chat_id", chatID,
			"role", member.Role)
		return false, ReasonNotAdmin, nil
	}
	if !member.CanPinMessages {
		return false, ReasonCannotPin, nil
	}
	if !member.CanInviteUsers {
		return false, ReasonCannotInvite, nil
	}

	return true, "", nil
}
