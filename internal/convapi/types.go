package convapi

import "github.com/bc-dunia/cortexdx/internal/conversation/llmadapter"

// CreateSessionRequest is the request body for POST /sessions.
type CreateSessionRequest struct {
	ExpertiseLevel    string                     `json:"expertise_level"`
	Hint              llmadapter.SessionTypeHint `json:"hint"`
	Deterministic     bool                       `json:"deterministic"`
	DeterministicSeed int64                      `json:"deterministic_seed"`
}

// CreateSessionResponse is the response body for POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
}

// TurnRequest is the request body for POST /sessions/{id}/turns.
type TurnRequest struct {
	Message string `json:"message"`
}

// TurnResponse is the response body for POST /sessions/{id}/turns.
type TurnResponse struct {
	Response         string   `json:"response"`
	Phase            string   `json:"phase"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// ErrorResponse is the response body for any failed request.
type ErrorResponse struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Retryable    bool   `json:"retryable"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
