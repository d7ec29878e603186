package vote

import (
	"context"
	"sync"

	"github.com/codeGROOVE-dev/portero/internal/telegram"
)

// mockMessenger records platform calls and returns programmable results.
type mockMessenger struct {
	mu sync.Mutex

	sendPollErr error
	pinErr      error
	unpinErr    error
	stopPollErr error
	sendMsgErr  error

	nextMessageID int
	stopResults   []telegram.OptionCount

	polls    []sentPoll
	pinned   []int
	unpinned []int
	stopped  []int
	messages []string
}

type sentPoll struct {
	question string
	options  []string
	chatID   int64
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{nextMessageID: 1000}
}

func (m *mockMessenger) SendMessage(_ context.Context, _ int64, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendMsgErr != nil {
		return 0, m.sendMsgErr
	}
	m.messages = append(m.messages, text)
	m.nextMessageID++
	return m.nextMessageID, nil
}

func (m *mockMessenger) SendPoll(_ context.Context, chatID int64, question string, options []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendPollErr != nil {
		return 0, m.sendPollErr
	}
	m.polls = append(m.polls, sentPoll{chatID: chatID, question: question, options: options})
	m.nextMessageID++
	return m.nextMessageID, nil
}

func (m *mockMessenger) PinMessage(_ context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinErr != nil {
		return m.pinErr
	}
	m.pinned = append(m.pinned, messageID)
	return nil
}

func (m *mockMessenger) UnpinMessage(_ context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unpinErr != nil {
		return m.unpinErr
	}
	m.unpinned = append(m.unpinned, messageID)
	return nil
}

func (m *mockMessenger) StopPoll(_ context.Context, _ int64, messageID int) ([]telegram.OptionCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopPollErr != nil {
		return nil, m.stopPollErr
	}
	m.stopped = append(m.stopped, messageID)
	return m.stopResults, nil
}

// mockChecker returns a canned capability verdict.
type mockChecker struct {
	reason string
	err    error
	ok     bool
}

func (m *mockChecker) CanCreateInvitePoll(_ context.Context, _ int64) (bool, string, error) {
	return m.ok, m.reason, m.err
}
