// Package events provides structured logging for key lifecycle events in
// cortexdx: transport handshakes, rate-limit transitions, pattern-memory
// writes, probe execution, and conversational session phase changes.
package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger wraps a *slog.Logger with run-scoped attributes and typed
// Log* methods for the events this package names.
type EventLogger struct {
	logger    *slog.Logger
	runID     string
	component string
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
// It includes base attributes: run_id and component.
func NewEventLogger(runID, component string) *EventLogger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With(
		"run_id", runID,
		"component", component,
	)
	return &EventLogger{
		logger:    logger,
		runID:     runID,
		component: component,
	}
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to a
// custom writer. Useful for testing or redirecting output.
func NewEventLoggerWithWriter(runID, component string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With(
		"run_id", runID,
		"component", component,
	)
	return &EventLogger{
		logger:    logger,
		runID:     runID,
		component: component,
	}
}

// Logger exposes the underlying structured logger for callers that need
// to attach additional fields ad hoc.
func (el *EventLogger) Logger() *slog.Logger {
	return el.logger
}

// LogHandshake logs the single C1 initialize exchange.
// event: "transport.handshake"
func (el *EventLogger) LogHandshake(endpoint string, ok bool, latencyMs int64, errMsg string) {
	attrs := []any{"endpoint", endpoint, "ok", ok, "latency_ms", latencyMs}
	if errMsg != "" {
		attrs = append(attrs, "error", errMsg)
	}
	if ok {
		el.logger.Info("transport.handshake", attrs...)
	} else {
		el.logger.Error("transport.handshake", attrs...)
	}
}

// LogProbeStart logs the start of a probe worker.
// event: "probe.start"
func (el *EventLogger) LogProbeStart(probeID string, ordinal int) {
	el.logger.Info("probe.start", "probe_id", probeID, "ordinal", ordinal)
}

// LogProbeFinish logs the completion of a probe worker.
// event: "probe.finish"
func (el *EventLogger) LogProbeFinish(probeID string, findingCount int, durationMs int64) {
	el.logger.Info("probe.finish",
		"probe_id", probeID,
		"finding_count", findingCount,
		"duration_ms", durationMs,
	)
}

// LogProbeTimeout logs a probe wall-clock budget exceeded.
// event: "probe.timeout"
func (el *EventLogger) LogProbeTimeout(probeID string, budgetMs int64) {
	el.logger.Warn("probe.timeout", "probe_id", probeID, "budget_ms", budgetMs)
}

// LogProbeCrash logs a probe worker that failed with an unrecoverable error.
// event: "probe.crash"
func (el *EventLogger) LogProbeCrash(probeID, errMsg string) {
	el.logger.Error("probe.crash", "probe_id", probeID, "error", errMsg)
}

// LogRateLimitTransition logs a C2 queue state transition.
// event: "ratelimit.transition"
// state is one of: accepted, waiting, running, succeeded, retrying, failed.
func (el *EventLogger) LogRateLimitTransition(correlationID, key, state string, queueLength, attempt int) {
	el.logger.Info("ratelimit.transition",
		"correlation_id", correlationID,
		"key", key,
		"state", state,
		"queue_length", queueLength,
		"attempt", attempt,
	)
}

// LogPatternWrite logs a C3 pattern-memory persist operation.
// event: "pattern.write"
func (el *EventLogger) LogPatternWrite(patternID, problemType string, confidence float64) {
	el.logger.Info("pattern.write",
		"pattern_id", patternID,
		"problem_type", problemType,
		"confidence", confidence,
	)
}

// LogPatternDecryptFailure logs a C3 decryption failure, surfaced once per
// record id.
// event: "pattern.decrypt_failure"
func (el *EventLogger) LogPatternDecryptFailure(patternID, errMsg string) {
	el.logger.Error("pattern.decrypt_failure", "pattern_id", patternID, "error", errMsg)
}

// LogSessionPhaseTransition logs a C5 conversational session phase change.
// event: "session.phase_transition"
func (el *EventLogger) LogSessionPhaseTransition(sessionID, fromPhase, toPhase, reason string) {
	el.logger.Info("session.phase_transition",
		"session_id", sessionID,
		"from_phase", fromPhase,
		"to_phase", toPhase,
		"reason", reason,
	)
}

// LogSessionSwept logs a C5 idle-timeout sweep eviction.
// event: "session.swept"
func (el *EventLogger) LogSessionSwept(sessionID string, idleMs int64) {
	el.logger.Info("session.swept", "session_id", sessionID, "idle_ms", idleMs)
}

// Global logger management.
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
	noopOnce     sync.Once
	noopLogger   *EventLogger
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a shared no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns a singleton event logger that discards all
// events. Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	noopOnce.Do(func() {
		handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
		noopLogger = &EventLogger{logger: slog.New(handler)}
	})
	return noopLogger
}
