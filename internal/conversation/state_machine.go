package conversation

import "strings"

// Phase is a conversational session's position in its lifecycle.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhasePlanning       Phase = "planning"
	PhaseTutorial       Phase = "tutorial"
	PhaseImplementation Phase = "implementation"
	PhaseValidation     Phase = "validation"
	PhaseCompleted      Phase = "completed"
)

var allowedTransitions = map[Phase]map[Phase]struct{}{
	PhaseInitialization: {
		PhasePlanning: {},
	},
	PhasePlanning: {
		PhaseTutorial:       {},
		PhaseImplementation: {},
	},
	PhaseTutorial: {
		PhaseValidation: {},
		PhasePlanning:   {},
	},
	PhaseImplementation: {
		PhaseValidation: {},
		PhasePlanning:   {},
	},
	PhaseValidation: {
		PhaseCompleted:      {},
		PhaseImplementation: {},
		PhaseTutorial:       {},
	},
}

// CanTransition reports whether a phase transition is valid.
func CanTransition(from, to Phase) bool {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// terminalMarkers are substrings whose presence in the latest assistant
// message, while the session is in validation, auto-transitions it to
// completed.
var terminalMarkers = []string{"complete", "finished", "resolved"}

// hasTerminalMarker reports whether text contains a terminal marker,
// matched case-insensitively.
func hasTerminalMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range terminalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
