package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bc-dunia/cortexdx/internal/orchestrator"
	"github.com/bc-dunia/cortexdx/internal/patternmemory"
)

// EnrichFinding augments f with LLM-derived fields, binding it to
// sessionID's conversation. Enrichment fields are append-only: probes and
// the orchestrator's normalization pass never set them, only this method
// does. Duplicate findings (same id and title) within the same session
// reuse the cached analysis; the adapter is never invoked twice for the
// same key within a session.
func (m *Manager) EnrichFinding(ctx context.Context, sessionID string, f *orchestrator.Finding) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	key := analysisKey{findingID: f.ID, findingTitle: f.Title}

	s.mu.Lock()
	cached, hit := s.analysis[key]
	s.mu.Unlock()

	if !hit {
		prompt := buildAnalysisPrompt(f, m.cfg.PromptTokenCap)
		response, err := m.adapter.Complete(ctx, prompt, m.cfg.PromptTokenCap)
		m.audit.logLLMCall(sessionID, f.ID, len(prompt), err)
		if err != nil {
			return fmt.Errorf("conversation: enrich finding %s: %w", f.ID, err)
		}
		cached = parseAnalysisResponse(response)

		s.mu.Lock()
		s.analysis[key] = cached
		s.lastActivity = time.Now()
		s.mu.Unlock()
	}

	f.LLMAnalysis = cached.llmAnalysis
	f.RootCause = cached.rootCause
	f.FilesToModify = cached.filesToModify
	f.CodeChanges = cached.codeChanges
	f.ValidationSteps = cached.validationSteps
	f.RiskLevel = cached.riskLevel
	f.CanAutoFix = cached.canAutoFix
	return nil
}

// buildAnalysisPrompt renders a bounded prompt describing f. Truncated to
// tokenCap*4 bytes as a rough token-to-byte bound so the cache can never
// be bypassed into an unbounded-cost call.
func buildAnalysisPrompt(f *orchestrator.Finding, tokenCap int) string {
	prompt := fmt.Sprintf(
		"Finding %s (%s, severity %s): %s\nDescribe the root cause, files to modify, code changes, validation steps, and risk level.",
		f.ID, f.Area, f.Severity, f.Title+": "+f.Description,
	)
	maxBytes := tokenCap * 4
	if maxBytes > 0 && len(prompt) > maxBytes {
		prompt = prompt[:maxBytes]
	}
	return prompt
}

// parseAnalysisResponse turns the adapter's free-text response into
// analysisResult fields. The adapter contract returns prose, not
// structured data, so this is a best-effort line-oriented split rather
// than a strict parser.
func parseAnalysisResponse(response string) analysisResult {
	result := analysisResult{llmAnalysis: response, riskLevel: "unknown"}

	lower := strings.ToLower(response)
	switch {
	case strings.Contains(lower, "risk: high") || strings.Contains(lower, "high risk"):
		result.riskLevel = "high"
	case strings.Contains(lower, "risk: low") || strings.Contains(lower, "low risk"):
		result.riskLevel = "low"
	case strings.Contains(lower, "risk: medium") || strings.Contains(lower, "medium risk"):
		result.riskLevel = "medium"
	}
	result.canAutoFix = strings.Contains(lower, "can be automatically fixed") || strings.Contains(lower, "auto-fixable")

	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToLower(trimmed), "root cause:"):
			result.rootCause = strings.TrimSpace(trimmed[len("root cause:"):])
		case strings.HasPrefix(strings.ToLower(trimmed), "files:"):
			for _, f := range strings.Split(trimmed[len("files:"):], ",") {
				if f := strings.TrimSpace(f); f != "" {
					result.filesToModify = append(result.filesToModify, f)
				}
			}
		case strings.HasPrefix(strings.ToLower(trimmed), "validation:"):
			for _, v := range strings.Split(trimmed[len("validation:"):], ";") {
				if v := strings.TrimSpace(v); v != "" {
					result.validationSteps = append(result.validationSteps, v)
				}
			}
		}
	}
	return result
}

// RecordResolution writes a finding's outcome back to pattern memory: a
// conversational session that resolves a finding teaches future
// diagnostic runs to recommend the same fix. A nil store makes this a
// no-op, since pattern memory is optional.
//
// The pattern id is deterministic in the finding id so repeated
// resolutions of the same finding accumulate feedback on one record
// instead of creating duplicates; RecordFeedback (not a second
// SavePattern) is used after the first save so success/failure counts
// accumulate rather than get overwritten.
func (m *Manager) RecordResolution(store *patternmemory.Store, f orchestrator.Finding, succeeded bool, resolveDuration time.Duration) error {
	if store == nil {
		return nil
	}

	patternID := "resolution_" + f.ID
	now := time.Now()
	fb := patternmemory.FeedbackEntry{Succeeded: succeeded, At: now}

	if err := store.RecordFeedback(patternID, fb); err != nil {
		pattern := patternmemory.Pattern{
			ID:            patternID,
			ProblemType:   f.Area,
			Signature:     f.Title + ": " + f.Description,
			Solution:      f.CodeChanges,
			MeanResolveMs: resolveDuration.Milliseconds(),
			LastUsed:      now,
		}
		if saveErr := store.SavePattern(pattern); saveErr != nil {
			return saveErr
		}
		return store.RecordFeedback(patternID, fb)
	}
	return nil
}
