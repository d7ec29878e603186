package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/codeGROOVE-dev/portero/internal/dialog"
	"github.com/codeGROOVE-dev/portero/internal/vote"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// soleAdmin authorizes a single user ID.
type soleAdmin struct {
	adminID int64
}

func (a *soleAdmin) IsAuthorizedAdmin(userID int64) bool { return userID == a.adminID }

// recordingWriter records rules writes.
type recordingWriter struct {
	written []string
}

func (w *recordingWriter) Write(content string) bool {
	w.written = append(w.written, content)
	return true
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "invalid argument shows usage",
			err:  fmt.Errorf("%w: expected exactly one @username argument", vote.ErrInvalidArgument),
			want: inviteUsageReply,
		},
		{
			name: "already active",
			err:  fmt.Errorf("%w: @bob", vote.ErrAlreadyActive),
			want: alreadyActiveReply,
		},
		{
			name: "not found",
			err:  fmt.Errorf("%w: no active vote for @bob", vote.ErrNotFound),
			want: noActiveVoteReply,
		},
		{
			name: "permission denied carries reason",
			err:  &vote.PermissionError{Reason: "el bot necesita ser administrador del grupo"},
			want: "No se puede hacer eso: el bot necesita ser administrador del grupo",
		},
		{
			name: "unknown error stays generic",
			err:  errors.New("datastore timeout"),
			want: genericFailureReply,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := userMessage(tt.err, inviteUsageReply); got != tt.want {
				t.Errorf("userMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCommand(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{text: "/foo", want: true},
		{text: "/foo bar", want: true},
		{text: "  /cancel", want: true},
		{text: "hello", want: false},
		{text: "1. No spam.\n2. Use /report for abuse.", want: false},
		{text: "", want: false},
	}
	for _, tt := range tests {
		if got := isCommand(tt.text); got != tt.want {
			t.Errorf("isCommand(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestHandleText_CommandsDoNotReachDialog(t *testing.T) {
	const (
		adminID = int64(100)
		chatID  = int64(-100500)
	)

	// Unknown commands have no handler of their own and the dispatcher
	// delivers them to the text handler.
	b, err := tele.NewBot(tele.Settings{Synchronous: true, Offline: true})
	if err != nil {
		t.Fatalf("NewBot() error = %v", err)
	}

	writer := &recordingWriter{}
	machine := dialog.NewMachine(&soleAdmin{adminID: adminID}, writer, testLogger())
	router := NewRouter(RouterConfig{Dialog: machine, Logger: testLogger()})

	if _, ok := machine.ChangeRules(adminID, chatID); !ok {
		t.Fatal("ChangeRules() ok = false")
	}

	c := b.NewContext(tele.Update{Message: &tele.Message{
		Text:   "/foo bar",
		Sender: &tele.User{ID: adminID},
		Chat:   &tele.Chat{ID: chatID},
	}})
	if err := router.handleText(c); err != nil {
		t.Fatalf("handleText() error = %v", err)
	}

	if !machine.Awaiting(adminID, chatID) {
		t.Error("dialog state lost after stray command")
	}
	if len(writer.written) != 0 {
		t.Errorf("rules document overwritten with %q", writer.written)
	}
}

func TestWelcomeMessage(t *testing.T) {
	bob := tele.User{ID: 1, Username: "bob"}
	anon := tele.User{ID: 2, FirstName: "Ana"}

	t.Run("single user without rules", func(t *testing.T) {
		got := welcomeMessage([]tele.User{bob}, "")
		want := "¡Hola, @bob! Bienvenido al grupo."
		if got != want {
			t.Errorf("welcomeMessage() = %q, want %q", got, want)
		}
	})

	t.Run("single user with rules", func(t *testing.T) {
		got := welcomeMessage([]tele.User{bob}, "1. No spam.")
		want := "¡Hola, @bob! Bienvenido al grupo.\n\nEstas son las reglas:\n1. No spam."
		if got != want {
			t.Errorf("welcomeMessage() = %q, want %q", got, want)
		}
	})

	t.Run("multiple users", func(t *testing.T) {
		got := welcomeMessage([]tele.User{bob, anon}, "")
		want := "¡Hola, @bob, Ana! Bienvenido al grupo."
		if got != want {
			t.Errorf("welcomeMessage() = %q, want %q", got, want)
		}
	})
}

func TestDisplayName(t *testing.T) {
	if got := displayName(tele.User{Username: "bob", FirstName: "Bob"}); got != "@bob" {
		t.Errorf("displayName() = %q, want %q", got, "@bob")
	}
	if got := displayName(tele.User{FirstName: "Ana"}); got != "Ana" {
		t.Errorf("displayName() = %q, want %q", got, "Ana")
	}
}

func TestJoinedUsers(t *testing.T) {
	bob := tele.User{ID: 1, Username: "bob"}
	ana := tele.User{ID: 2, Username: "ana"}

	t.Run("batch field wins", func(t *testing.T) {
		msg := &tele.Message{UsersJoined: []tele.User{bob, ana}, UserJoined: &bob}
		if got := joinedUsers(msg); len(got) != 2 {
			t.Errorf("joinedUsers() returned %d users, want 2", len(got))
		}
	})

	t.Run("single field", func(t *testing.T) {
		msg := &tele.Message{UserJoined: &bob}
		got := joinedUsers(msg)
		if len(got) != 1 || got[0].ID != bob.ID {
			t.Errorf("joinedUsers() = %v, want [bob]", got)
		}
	})

	t.Run("neither field", func(t *testing.T) {
		if got := joinedUsers(&tele.Message{}); len(got) != 0 {
			t.Errorf("joinedUsers() returned %d users, want 0", len(got))
		}
	})
}
