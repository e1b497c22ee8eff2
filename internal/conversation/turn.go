package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bc-dunia/cortexdx/internal/conversation/llmadapter"
)

// TurnResult is one Turn call's outcome.
type TurnResult struct {
	Response         string
	Phase            Phase
	SuggestedActions []SuggestedAction
}

// tutorialCues and implementationCues are the lexical signals that move a
// session out of planning: asking to understand something routes to
// tutorial, asking to act on it routes to implementation.
var tutorialCues = []string{"explain", "how does", "what is", "teach me", "why does"}
var implementationCues = []string{"fix", "implement", "apply the fix", "write the code", "generate the patch"}
var validationCues = []string{"i tried it", "i ran it", "let's verify", "did it work", "check if"}

// Turn runs one user turn against sessionID: append the message, build a
// phase-scoped system prompt, invoke the adapter, advance the phase, and
// infer suggested actions from the response.
func (m *Manager) Turn(ctx context.Context, sessionID, userMessage string) (TurnResult, error) {
	s, ok := m.Get(sessionID)
	if !ok {
		return TurnResult{}, ErrSessionNotFound
	}

	s.mu.Lock()
	s.appendMessage(Message{Role: "user", Content: userMessage, At: time.Now()}, m.cfg.HistoryWindow)
	fromPhase := s.Phase
	nextPhase := advancePhase(fromPhase, userMessage)
	history := make([]Message, len(s.history))
	copy(history, s.history)
	expertise := s.ExpertiseLevel
	hint := s.Hint
	deterministic := s.Deterministic
	seed := s.DeterministicSeed
	s.mu.Unlock()

	systemPrompt := buildSystemPrompt(expertise, nextPhase, m.cfg.PromptTokenCap)
	messages := make([]llmadapter.Message, 0, len(history)+1)
	messages = append(messages, llmadapter.Message{Role: "system", Content: systemPrompt})
	for _, h := range history {
		messages = append(messages, llmadapter.Message{Role: h.Role, Content: h.Content})
	}

	opts := llmadapter.Options{
		SystemPrompt:      systemPrompt,
		Deterministic:     deterministic,
		DeterministicSeed: seed,
		SessionHint:       hint,
	}
	if deterministic {
		opts.Temperature = 0
	}

	response, err := m.adapter.Chat(ctx, messages, opts)
	if err != nil {
		return TurnResult{}, fmt.Errorf("conversation: chat: %w", err)
	}

	if nextPhase == PhaseValidation && hasTerminalMarker(response) {
		nextPhase = PhaseCompleted
	}

	s.mu.Lock()
	s.appendMessage(Message{Role: "assistant", Content: response, At: time.Now()}, m.cfg.HistoryWindow)
	s.Phase = nextPhase
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if nextPhase != fromPhase {
		m.logger.LogSessionPhaseTransition(sessionID, string(fromPhase), string(nextPhase), "turn")
		m.audit.logPhaseTransition(sessionID, string(fromPhase), string(nextPhase), "turn")
	}

	return TurnResult{
		Response:         response,
		Phase:            nextPhase,
		SuggestedActions: inferSuggestedActions(response),
	}, nil
}

// advancePhase applies the lexical-cue transition table to from given the
// latest user message. It never returns a phase from is not allowed to
// reach; when no cue matches, from is returned unchanged.
func advancePhase(from Phase, userMessage string) Phase {
	lower := strings.ToLower(userMessage)

	switch from {
	case PhaseInitialization:
		if CanTransition(from, PhasePlanning) {
			return PhasePlanning
		}
	case PhasePlanning:
		if containsAny(lower, implementationCues) && CanTransition(from, PhaseImplementation) {
			return PhaseImplementation
		}
		if containsAny(lower, tutorialCues) && CanTransition(from, PhaseTutorial) {
			return PhaseTutorial
		}
	case PhaseTutorial, PhaseImplementation:
		if containsAny(lower, validationCues) && CanTransition(from, PhaseValidation) {
			return PhaseValidation
		}
	}
	return from
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// buildSystemPrompt renders a phase- and expertise-parameterized system
// prompt, truncated to tokenCap*4 bytes as a rough token-to-byte bound so
// worst-case prompt construction never grows unbounded.
func buildSystemPrompt(expertiseLevel string, phase Phase, tokenCap int) string {
	prompt := fmt.Sprintf(
		"You are assisting a %s-level user who is currently in the %s phase of diagnosing an MCP server issue. Respond accordingly.",
		nonEmpty(expertiseLevel, "intermediate"), phase,
	)
	maxBytes := tokenCap * 4
	if maxBytes > 0 && len(prompt) > maxBytes {
		prompt = prompt[:maxBytes]
	}
	return prompt
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// inferSuggestedActions scans response for lexical signals of follow-up
// actions the user might take next.
func inferSuggestedActions(response string) []SuggestedAction {
	lower := strings.ToLower(response)
	var actions []SuggestedAction

	if strings.Contains(lower, "```") || strings.Contains(lower, "func ") || strings.Contains(lower, "class ") {
		actions = append(actions, ActionCodeGeneration)
	}
	if strings.Contains(lower, "create a file") || strings.Contains(lower, "new file") {
		actions = append(actions, ActionFileCreation)
	}
	if strings.Contains(lower, "config") || strings.Contains(lower, ".env") || strings.Contains(lower, "set the") {
		actions = append(actions, ActionConfiguration)
	}
	if strings.Contains(lower, "run the test") || strings.Contains(lower, "verify") || strings.Contains(lower, "validate") {
		actions = append(actions, ActionValidation)
	}
	return actions
}
