package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
)

// Mock implementations

type oracleCall struct {
	System string
	User   string
	Opts   repo.InvokeOptions
}

// mockOracle replays scripted replies in order; the last reply repeats
type mockOracle struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   []oracleCall
}

func (m *mockOracle) Invoke(ctx context.Context, system, user string, opts repo.InvokeOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.calls)
	m.calls = append(m.calls, oracleCall{System: system, User: user, Opts: opts})

	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return m.replies[i], nil
}

func (m *mockOracle) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockOracle) call(i int) oracleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

type mockHistoryRepo struct {
	history []domain.Message
	err     error
}

func (m *mockHistoryRepo) GetChatHistory(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > len(m.history) {
		limit = len(m.history)
	}
	return m.history[len(m.history)-limit:], nil
}

type mockRosterRepo struct {
	roster map[string]domain.Participant
	err    error
	calls  int
}

func (m *mockRosterRepo) GetRoster(ctx context.Context, chatID string) (map[string]domain.Participant, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.roster, nil
}
