// Package conversation implements the conversational session manager: a
// multi-turn state machine per session that binds findings to an LLM
// adapter and a library of fix templates.
package conversation

import (
	"sync"
	"time"

	"github.com/bc-dunia/cortexdx/internal/conversation/llmadapter"
)

// SuggestedAction is an action the manager infers from lexical signals in
// an assistant response.
type SuggestedAction string

const (
	ActionCodeGeneration SuggestedAction = "code_generation"
	ActionFileCreation   SuggestedAction = "file_creation"
	ActionConfiguration  SuggestedAction = "configuration"
	ActionValidation     SuggestedAction = "validation"
)

// Message is one turn of a session's bounded history.
type Message struct {
	Role    string
	Content string
	At      time.Time
}

// analysisKey is the cache key for LLM-enriched finding analysis:
// duplicate findings in the same session reuse the cached result.
type analysisKey struct {
	findingID    string
	findingTitle string
}

// analysisResult is a cached enrichment outcome for one (finding id,
// title) pair.
type analysisResult struct {
	llmAnalysis     string
	rootCause       string
	filesToModify   []string
	codeChanges     string
	validationSteps []string
	riskLevel       string
	canAutoFix      bool
}

// Session is one conversational session: its phase, bounded message
// history, and per-session state the manager mutates under its own lock.
type Session struct {
	mu sync.Mutex

	ID                string
	ExpertiseLevel    string
	Hint              llmadapter.SessionTypeHint
	Phase             Phase
	Deterministic     bool
	DeterministicSeed int64

	history  []Message
	analysis map[analysisKey]analysisResult

	startedAt    time.Time
	lastActivity time.Time
}

func newSession(id, expertiseLevel string, hint llmadapter.SessionTypeHint, deterministic bool, seed int64) *Session {
	now := time.Now()
	return &Session{
		ID:                id,
		ExpertiseLevel:    expertiseLevel,
		Hint:              hint,
		Phase:             PhaseInitialization,
		Deterministic:     deterministic,
		DeterministicSeed: seed,
		analysis:          make(map[analysisKey]analysisResult),
		startedAt:         now,
		lastActivity:      now,
	}
}

// idleSince reports how long the session has been inactive, as of now.
func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// CurrentPhase returns the session's phase under lock, for callers outside
// the package (e.g. the HTTP surface) that only need a point-in-time read.
func (s *Session) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Phase
}

// History returns a copy of the session's bounded message history.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// appendMessage appends msg to history, trimming to the last window
// messages when the bound is exceeded.
func (s *Session) appendMessage(msg Message, window int) {
	s.history = append(s.history, msg)
	if window > 0 && len(s.history) > window {
		s.history = s.history[len(s.history)-window:]
	}
}
