package conversation

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/bc-dunia/cortexdx/internal/config"
	"github.com/bc-dunia/cortexdx/internal/conversation/llmadapter"
	"github.com/bc-dunia/cortexdx/internal/events"
)

// ErrSessionNotFound is returned for any request against an id that was
// never created, already ended, or was evicted by the idle sweep — the
// caller cannot and must not distinguish these cases.
var ErrSessionNotFound = errors.New("conversation: session not found")

// ManagerConfig bounds a Manager's session lifecycle and prompt cost.
type ManagerConfig struct {
	// IdleTimeout is how long a session survives without activity before
	// the background sweep destroys it. Zero means
	// config.DefaultConversationIdleTimeoutMs.
	IdleTimeout time.Duration

	// HistoryWindow bounds the retained message count per session. Zero
	// means config.DefaultConversationHistoryWindow.
	HistoryWindow int

	// PromptTokenCap bounds worst-case prompt construction cost. Zero
	// means config.DefaultPromptTokenCap.
	PromptTokenCap int

	// AuditWriter receives the hash-chained audit trail. Nil discards it.
	AuditWriter io.Writer
}

func (c ManagerConfig) resolve() ManagerConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Duration(config.DefaultConversationIdleTimeoutMs) * time.Millisecond
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = config.DefaultConversationHistoryWindow
	}
	if c.PromptTokenCap <= 0 {
		c.PromptTokenCap = config.DefaultPromptTokenCap
	}
	return c
}

// Manager owns the session registry: a map behind a mutex plus a
// background idle-timeout sweep, the same shape as the rate limiter's
// per-key queue registry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	adapter llmadapter.Adapter
	logger  *events.EventLogger
	audit   *auditLog
	cfg     ManagerConfig

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewManager builds a Manager bound to adapter. A nil logger falls back
// to the package's shared no-op event logger.
func NewManager(adapter llmadapter.Adapter, logger *events.EventLogger, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	cfg = cfg.resolve()
	m := &Manager{
		sessions:  make(map[string]*Session),
		adapter:   adapter,
		logger:    logger,
		audit:     newAuditLog(cfg.AuditWriter),
		cfg:       cfg,
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Close stops the background idle sweep. Safe to call more than once.
func (m *Manager) Close() {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		idle := s.idleSince(now)
		if idle >= m.cfg.IdleTimeout {
			delete(m.sessions, id)
			m.logger.LogSessionSwept(id, idle.Milliseconds())
			m.audit.logSwept(id)
		}
	}
}

// CreateSession starts a new conversational session in the
// initialization phase. A non-nil deterministicSeed pins temperature 0
// and a reproducible random seed for every LLM call this session makes.
func (m *Manager) CreateSession(expertiseLevel string, hint llmadapter.SessionTypeHint, deterministicSeed *int64) *Session {
	id := newSessionID()
	deterministic := deterministicSeed != nil
	var seed int64
	if deterministic {
		seed = *deterministicSeed
	}
	s := newSession(id, expertiseLevel, hint, deterministic, seed)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for id. Callers must treat ok==false
// identically whether the session never existed or was evicted by the
// idle sweep — "session not found" either way.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End explicitly destroys a session before its idle timeout would.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count reports the number of live sessions, for tests and diagnostics.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func newSessionID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return "conv_" + hex.EncodeToString(buf[:])
}
