package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/bc-dunia/cortexdx/internal/conversation/llmadapter"
)

func newTestManager(t *testing.T, idleTimeout time.Duration) *Manager {
	t.Helper()
	m := NewManager(llmadapter.NewNullAdapter(llmadapter.Script{}), nil, ManagerConfig{
		IdleTimeout:   idleTimeout,
		HistoryWindow: 3,
	})
	t.Cleanup(m.Close)
	return m
}

func TestCreateSessionStartsInInitialization(t *testing.T) {
	m := newTestManager(t, time.Hour)
	s := m.CreateSession("intermediate", llmadapter.HintDebugging, nil)
	if s.Phase != PhaseInitialization {
		t.Errorf("expected initialization phase, got %s", s.Phase)
	}
	if got, ok := m.Get(s.ID); !ok || got != s {
		t.Fatal("expected Get to return the created session")
	}
}

func TestEndRemovesSessionImmediately(t *testing.T) {
	m := newTestManager(t, time.Hour)
	s := m.CreateSession("novice", llmadapter.HintLearning, nil)
	m.End(s.ID)
	if _, ok := m.Get(s.ID); ok {
		t.Fatal("expected session to be gone after End")
	}
}

func TestGetUnknownSessionReportsNotFound(t *testing.T) {
	m := newTestManager(t, time.Hour)
	if _, ok := m.Get("does-not-exist"); ok {
		t.Fatal("expected ok=false for an unknown session id")
	}
}

func TestIdleSweepEvictsStaleSessions(t *testing.T) {
	m := newTestManager(t, 0)
	m.cfg.IdleTimeout = 20 * time.Millisecond
	s := m.CreateSession("intermediate", llmadapter.HintDevelopment, nil)

	s.mu.Lock()
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	m.sweepIdle()

	if _, ok := m.Get(s.ID); ok {
		t.Fatal("expected idle session to be evicted")
	}
}

func TestSweepIdleKeepsActiveSessions(t *testing.T) {
	m := newTestManager(t, time.Hour)
	s := m.CreateSession("intermediate", llmadapter.HintDevelopment, nil)
	m.sweepIdle()
	if _, ok := m.Get(s.ID); !ok {
		t.Fatal("expected an active session to survive a sweep")
	}
}

func TestHistoryWindowBoundsRetainedMessages(t *testing.T) {
	m := newTestManager(t, time.Hour)
	s := m.CreateSession("intermediate", llmadapter.HintDevelopment, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := m.Turn(ctx, s.ID, "message"); err != nil {
			t.Fatalf("Turn() error: %v", err)
		}
	}

	history := s.History()
	if len(history) > m.cfg.HistoryWindow {
		t.Fatalf("expected history bounded to %d, got %d", m.cfg.HistoryWindow, len(history))
	}
}
