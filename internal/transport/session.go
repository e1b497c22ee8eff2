package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Session holds one logical MCP connection per diagnostic run so every probe
// observes the same negotiated state. The initialize handshake is performed
// exactly once, guarded by a one-shot gate; every other operation may proceed
// concurrently once that gate has opened.
type Session struct {
	endpoint string
	adapter  Adapter
	conn     Connection

	initOnce   sync.Once
	initErr    error
	initResult *OperationOutcome

	mu       sync.Mutex
	exchange []ExchangeEntry
	seq      atomic.Int64

	httpClient *http.Client
}

// ExchangeEntry records one JSON-RPC call against the session: its method,
// outcome, and a monotonic sequence number assigned at append time.
type ExchangeEntry struct {
	Seq     int64
	Method  string
	Outcome *OperationOutcome
}

// Transcript is a consistent snapshot of the initialize exchange plus the
// tail of the exchange log.
type Transcript struct {
	Initialize *OperationOutcome
	Tail       []ExchangeEntry
}

// NewSession constructs a session bound to one endpoint. The underlying
// connection is established lazily on the first Initialize call.
func NewSession(endpoint string, adapter Adapter) *Session {
	return &Session{
		endpoint:   endpoint,
		adapter:    adapter,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Initialize performs the MCP initialize handshake exactly once regardless
// of how many callers invoke it concurrently; later callers observe the
// first caller's cached result.
func (s *Session) Initialize(ctx context.Context, cfg *TransportConfig) (*OperationOutcome, error) {
	s.initOnce.Do(func() {
		conn, err := s.adapter.Connect(ctx, cfg)
		if err != nil {
			s.initErr = err
			return
		}
		s.conn = conn

		outcome, err := conn.Initialize(ctx, nil)
		if err != nil {
			s.initErr = err
			s.initResult = outcome
			return
		}
		s.initResult = outcome
		if outcome != nil && outcome.SessionID != "" {
			conn.SetSessionID(outcome.SessionID)
		}

		if _, err := conn.SendInitialized(ctx); err != nil {
			s.initErr = err
		}
	})
	return s.initResult, s.initErr
}

// Call sends one JSON-RPC operation through the shared connection, appends
// its outcome to the exchange log, and returns it. It never fails the
// session as a whole: a per-call error is recorded with its status and
// returned to the caller, but subsequent calls proceed normally.
func (s *Session) Call(ctx context.Context, method OperationType, fn func(conn Connection) (*OperationOutcome, error)) (*OperationOutcome, error) {
	if s.conn == nil {
		return nil, &OperationError{
			Type:    ErrorTypeProtocol,
			Code:    CodeInvalidJSONRPC,
			Message: "session not initialized",
		}
	}

	outcome, err := fn(s.conn)
	s.append(string(method), outcome)
	return outcome, err
}

// ToolsCall is a thin convenience wrapper around Call for the common
// tools/call operation probes use.
func (s *Session) ToolsCall(ctx context.Context, name string, args map[string]interface{}) (*OperationOutcome, error) {
	return s.Call(ctx, OpToolsCall, func(conn Connection) (*OperationOutcome, error) {
		return conn.ToolsCall(ctx, &ToolsCallParams{Name: name, Arguments: args})
	})
}

// ToolsList is a thin convenience wrapper around Call.
func (s *Session) ToolsList(ctx context.Context, cursor *string) (*OperationOutcome, error) {
	return s.Call(ctx, OpToolsList, func(conn Connection) (*OperationOutcome, error) {
		return conn.ToolsList(ctx, cursor)
	})
}

// ResourcesList is a thin convenience wrapper around Call.
func (s *Session) ResourcesList(ctx context.Context, cursor *string) (*OperationOutcome, error) {
	return s.Call(ctx, OpResourcesList, func(conn Connection) (*OperationOutcome, error) {
		return conn.ResourcesList(ctx, cursor)
	})
}

// ResourcesRead is a thin convenience wrapper around Call.
func (s *Session) ResourcesRead(ctx context.Context, uri string) (*OperationOutcome, error) {
	return s.Call(ctx, OpResourcesRead, func(conn Connection) (*OperationOutcome, error) {
		return conn.ResourcesRead(ctx, &ResourcesReadParams{URI: uri})
	})
}

// PromptsList is a thin convenience wrapper around Call.
func (s *Session) PromptsList(ctx context.Context, cursor *string) (*OperationOutcome, error) {
	return s.Call(ctx, OpPromptsList, func(conn Connection) (*OperationOutcome, error) {
		return conn.PromptsList(ctx, cursor)
	})
}

// PromptsGet is a thin convenience wrapper around Call.
func (s *Session) PromptsGet(ctx context.Context, name string, args map[string]interface{}) (*OperationOutcome, error) {
	return s.Call(ctx, OpPromptsGet, func(conn Connection) (*OperationOutcome, error) {
		return conn.PromptsGet(ctx, &PromptsGetParams{Name: name, Arguments: args})
	})
}

// Ping is a thin convenience wrapper around Call.
func (s *Session) Ping(ctx context.Context) (*OperationOutcome, error) {
	return s.Call(ctx, OpPing, func(conn Connection) (*OperationOutcome, error) {
		return conn.Ping(ctx)
	})
}

func (s *Session) append(method string, outcome *OperationOutcome) {
	seq := s.seq.Add(1)
	s.mu.Lock()
	s.exchange = append(s.exchange, ExchangeEntry{Seq: seq, Method: method, Outcome: outcome})
	s.mu.Unlock()
}

// SSEProbeResult is the outcome of a bounded SSE inspection.
type SSEProbeResult struct {
	Text         string
	EventCount   int
	LastEventID  string
	RetryMs      int
	TruncatedAt  string
	ConnectError *OperationError
}

// SSEProbeOptions bounds the head read performed by SSEProbe.
type SSEProbeOptions struct {
	MaxBytes    int
	MaxDuration time.Duration
	Headers     map[string]string
}

// SSEProbe opens a streaming GET against url, reads at most a small head
// (bounded by byte count or wall-clock duration, whichever triggers first),
// and decodes it as a text/event-stream. It is used by probes that inspect
// retry/id directives and reconnection semantics without consuming a full
// stream.
func (s *Session) SSEProbe(ctx context.Context, url string, opts SSEProbeOptions) *SSEProbeResult {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 64 * 1024
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, opts.MaxDuration)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &SSEProbeResult{ConnectError: MapError(err)}
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &SSEProbeResult{ConnectError: MapError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SSEProbeResult{ConnectError: MapHTTPStatus(resp.StatusCode)}
	}

	decoder := NewSSEDecoder(resp.Body, opts.MaxDuration)
	defer decoder.Close()

	result := &SSEProbeResult{}
	var textLen int
	for {
		evt, err := decoder.ReadEvent()
		if err != nil {
			if textLen == 0 {
				result.TruncatedAt = err.Error()
			}
			break
		}
		if evt == nil {
			continue
		}
		result.EventCount++
		if evt.ID != "" {
			result.LastEventID = evt.ID
		}
		if evt.Retry > 0 {
			result.RetryMs = evt.Retry
		}
		result.Text += evt.Data + "\n"
		textLen += len(evt.Data)
		if textLen >= opts.MaxBytes {
			result.TruncatedAt = "max_bytes"
			break
		}
		select {
		case <-ctx.Done():
			result.TruncatedAt = "max_duration"
			return result
		default:
		}
	}
	return result
}

// Transcript returns a consistent snapshot of the initialize exchange plus
// the most recent n entries of the exchange log. A non-positive n returns
// the entire log.
func (s *Session) Transcript(n int) Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail := s.exchange
	if n > 0 && len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	cp := make([]ExchangeEntry, len(tail))
	copy(cp, tail)

	return Transcript{
		Initialize: s.initResult,
		Tail:       cp,
	}
}

// Close releases the underlying connection, if one was established.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// SessionID returns the server-issued session id cached from the handshake,
// or the empty string if none was issued.
func (s *Session) SessionID() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.SessionID()
}

