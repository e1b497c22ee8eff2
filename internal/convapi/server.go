// Package convapi exposes the conversational session manager (C5) as an
// HTTP surface: create a session, drive it one turn at a time, gated by
// internal/auth API-key authentication and role-based access control.
package convapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bc-dunia/cortexdx/internal/auth"
	"github.com/bc-dunia/cortexdx/internal/conversation"
)

// Server serves the conversational session HTTP surface.
type Server struct {
	manager *conversation.Manager
	addr    string

	authConfig *auth.Config
	authMW     *auth.Middleware

	mu       sync.Mutex
	running  bool
	server   *http.Server
	listener net.Listener
}

// NewServer builds a Server bound to addr, serving sessions from manager.
// A nil authConfig defaults to auth.DefaultConfig() (API-key required).
func NewServer(addr string, manager *conversation.Manager, authConfig *auth.Config) *Server {
	if authConfig == nil {
		authConfig = auth.DefaultConfig()
	}
	return &Server{manager: manager, addr: addr, authConfig: authConfig}
}

func (s *Server) middleware() *auth.Middleware {
	if s.authMW == nil {
		s.authMW = auth.NewMiddleware(s.authConfig, auth.NewAPIKeyAuthenticator(s.authConfig))
	}
	return s.authMW
}

// Start binds the listener and serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	mux := http.NewServeMux()
	mw := s.middleware()
	requireWrite := mw.RequireRoles(auth.RoleAdmin, auth.RoleOperator)

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/sessions", mw.Handler(requireWrite(http.HandlerFunc(s.handleCreateSession))))
	mux.Handle("/sessions/", mw.Handler(http.HandlerFunc(s.routeSession)))

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true
	s.mu.Unlock()

	return s.server.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.server == nil {
		return nil
	}
	s.running = false
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, "POST")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "MALFORMED_BODY", "could not decode request body")
		return
	}

	var seed *int64
	if req.Deterministic {
		seed = &req.DeterministicSeed
	}
	session := s.manager.CreateSession(req.ExpertiseLevel, req.Hint, seed)
	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: session.ID,
		Phase:     string(session.CurrentPhase()),
	})
}

// routeSession dispatches /sessions/{id}/turns.
func (s *Server) routeSession(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path[len("/sessions/"):]
	const turnsSuffix = "/turns"
	if len(path) <= len(turnsSuffix) || path[len(path)-len(turnsSuffix):] != turnsSuffix {
		writeError(w, http.StatusNotFound, "not_found", "UNKNOWN_ROUTE", "no such route")
		return
	}
	sessionID := path[:len(path)-len(turnsSuffix)]
	s.handleTurn(w, r, sessionID)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, "POST")
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "MALFORMED_BODY", "could not decode request body")
		return
	}

	result, err := s.manager.Turn(r.Context(), sessionID, req.Message)
	if err != nil {
		if err == conversation.ErrSessionNotFound {
			writeError(w, http.StatusNotFound, "not_found", "SESSION_NOT_FOUND", "no such session")
			return
		}
		writeError(w, http.StatusBadGateway, "upstream_error", "LLM_ADAPTER_FAILED", err.Error())
		return
	}

	actions := make([]string, len(result.SuggestedActions))
	for i, a := range result.SuggestedActions {
		actions[i] = string(a)
	}
	writeJSON(w, http.StatusOK, TurnResponse{
		Response:         result.Response,
		Phase:            string(result.Phase),
		SuggestedActions: actions,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, errCode, message string) {
	writeJSON(w, status, ErrorResponse{
		ErrorType:    errType,
		ErrorCode:    errCode,
		ErrorMessage: message,
		Retryable:    false,
	})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "invalid_argument", "METHOD_NOT_ALLOWED", "method not allowed")
}
