package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AuditEvent is one append-only, hash-chained entry in a session's audit
// trail: a phase transition or an LLM adapter call.
type AuditEvent struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	FromPhase string    `json:"from_phase,omitempty"`
	ToPhase   string    `json:"to_phase,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	FindingID string    `json:"finding_id,omitempty"`
	PromptLen int       `json:"prompt_len,omitempty"`
	Error     string    `json:"error,omitempty"`
	PrevHash  string    `json:"prev_hash"`
	EventHash string    `json:"event_hash"`
}

// auditLog emits hash-chained audit events over zerolog, one chain per
// process. Each event's hash binds the previous event's hash, so a
// tampered or reordered log entry breaks the chain from that point on.
type auditLog struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	prevHash []byte
	sequence uint64
}

// newAuditLog builds an audit log writing to w. A nil w discards events
// while still advancing the hash chain, so callers can always log
// unconditionally.
func newAuditLog(w io.Writer) *auditLog {
	if w == nil {
		w = io.Discard
	}
	return &auditLog{logger: zerolog.New(w).With().Timestamp().Logger()}
}

func (a *auditLog) logPhaseTransition(sessionID, from, to, reason string) {
	a.record(&AuditEvent{
		SessionID: sessionID,
		EventType: "session.phase_transition",
		FromPhase: from,
		ToPhase:   to,
		Reason:    reason,
	})
}

func (a *auditLog) logLLMCall(sessionID, findingID string, promptLen int, callErr error) {
	event := &AuditEvent{
		SessionID: sessionID,
		EventType: "session.llm_call",
		FindingID: findingID,
		PromptLen: promptLen,
	}
	if callErr != nil {
		event.Error = callErr.Error()
	}
	a.record(event)
}

func (a *auditLog) logSwept(sessionID string) {
	a.record(&AuditEvent{
		SessionID: sessionID,
		EventType: "session.swept",
	})
}

func (a *auditLog) record(event *AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sequence++
	event.Sequence = a.sequence
	event.Timestamp = time.Now().UTC()
	event.PrevHash = hex.EncodeToString(a.prevHash)

	clone := *event
	clone.EventHash = ""
	payload, err := json.Marshal(clone)
	if err != nil {
		a.logger.Error().Err(err).Msg("audit: marshal event")
		return
	}

	sum := sha256.Sum256(append(a.prevHash, payload...))
	a.prevHash = sum[:]
	event.EventHash = hex.EncodeToString(sum[:])

	a.logger.Info().
		Uint64("seq", event.Sequence).
		Str("session_id", event.SessionID).
		Str("event_type", event.EventType).
		Str("from_phase", event.FromPhase).
		Str("to_phase", event.ToPhase).
		Str("reason", event.Reason).
		Str("finding_id", event.FindingID).
		Int("prompt_len", event.PromptLen).
		Str("error", event.Error).
		Str("prev_hash", event.PrevHash).
		Str("event_hash", event.EventHash).
		Send()
}
