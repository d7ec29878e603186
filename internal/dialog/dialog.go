// Package dialog manages the admin-only rules replacement conversation as
// a keyed finite-state machine.
package dialog

import (
	"log/slog"
	"sync"
)

// Reply strings. The bot speaks Spanish to its groups.
const (
	promptReply = "Responde a este mensaje con las nuevas reglas, o pon /cancel para cancelar"
	deniedReply = "Solo el administrador puede cambiar las reglas"
	savedReply  = "Reglas guardadas correctamente"
	failedReply = "Ha ocurrido un error guardando las reglas"
	cancelReply = "Operación cancelada"
)

// Admin reports whether a user is the configured administrator.
type Admin interface {
	IsAuthorizedAdmin(userID int64) bool
}

// RulesWriter overwrites the rules document. Returns false on I/O failure.
type RulesWriter interface {
	Write(content string) bool
}

// stateKey scopes a conversation to one user in one chat.
type stateKey struct {
	userID int64
	chatID int64
}

// Machine tracks at most one awaiting-rules conversation per (user, chat)
// pair. The only non-idle state is "awaiting rules text"; idle pairs have
// no record.
type Machine struct {
	admin   Admin
	rules   RulesWriter
	logger  *slog.Logger
	waiting map[stateKey]struct{}
	mu      sync.Mutex
}

// NewMachine creates a conversation state machine.
func NewMachine(admin Admin, rules RulesWriter, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		admin:   admin,
		rules:   rules,
		logger:  logger,
		waiting: make(map[stateKey]struct{}),
	}
}

// ChangeRules starts (or re-prompts) the rules dialog. Non-administrators
// get a denial and no state is created. Entering the dialog while already
// in it re-prompts without stacking.
func (m *Machine) ChangeRules(userID, chatID int64) (reply string, ok bool) {
	if !m.admin.IsAuthorizedAdmin(userID) {
		m.logger.Warn("unauthorized rules change attempt",
			"user_id", userID,
			"chat_id", chatID)
		return deniedReply, false
	}

	m.mu.Lock()
	m.waiting[stateKey{userID: userID, chatID: chatID}] = struct{}{}
	m.mu.Unlock()

	m.logger.Info("awaiting new rules text",
		"user_id", userID,
		"chat_id", chatID)

	return promptReply, true
}

// ReceiveRules consumes a text reply while awaiting rules. handled is false
// when the pair has no active dialog, so the router ignores the message.
// The state is cleared regardless of the write outcome.
func (m *Machine) ReceiveRules(userID, chatID int64, text string) (reply string, handled bool) {
	key := stateKey{userID: userID, chatID: chatID}

	m.mu.Lock()
	if _, awaiting := m.waiting[key]; !awaiting {
		m.mu.Unlock()
		return "", false
	}
	delete(m.waiting, key)
	m.mu.Unlock()

	if !m.rules.Write(text) {
		m.logger.Error("rules write failed",
			"user_id", userID,
			"chat_id", chatID)
		return failedReply, true
	}

	m.logger.Info("rules replaced",
		"user_id", userID,
		"chat_id", chatID,
		"bytes", len(text))

	return savedReply, true
}

// Cancel abandons an active rules dialog without writing anything. handled
// is false when the pair has no active dialog.
func (m *Machine) Cancel(userID, chatID int64) (reply string, handled bool) {
	key := stateKey{userID: userID, chatID: chatID}

	m.mu.Lock()
	_, awaiting := m.waiting[key]
	delete(m.waiting, key)
	m.mu.Unlock()

	if !awaiting {
		return "", false
	}

	m.logger.Info("rules dialog cancelled",
		"user_id", userID,
		"chat_id", chatID)

	return cancelReply, true
}

// Awaiting reports whether the pair has an active rules dialog.
func (m *Machine) Awaiting(userID, chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, awaiting := m.waiting[stateKey{userID: userID, chatID: chatID}]
	return awaiting
}
