package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeConnection struct {
	mu          sync.Mutex
	sessionID   string
	lastEventID string
	calls       int64
}

func (c *fakeConnection) Initialize(ctx context.Context, params *InitializeParams) (*OperationOutcome, error) {
	atomic.AddInt64(&c.calls, 1)
	return &OperationOutcome{Operation: OpInitialize, OK: true, SessionID: "sess-1"}, nil
}

func (c *fakeConnection) SendInitialized(ctx context.Context) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpInitialized, OK: true}, nil
}

func (c *fakeConnection) ToolsList(ctx context.Context, cursor *string) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpToolsList, OK: true}, nil
}

func (c *fakeConnection) ToolsCall(ctx context.Context, params *ToolsCallParams) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpToolsCall, OK: true, ToolName: params.Name}, nil
}

func (c *fakeConnection) Ping(ctx context.Context) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpPing, OK: true}, nil
}

func (c *fakeConnection) ResourcesList(ctx context.Context, cursor *string) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpResourcesList, OK: true}, nil
}

func (c *fakeConnection) ResourcesRead(ctx context.Context, params *ResourcesReadParams) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpResourcesRead, OK: true}, nil
}

func (c *fakeConnection) PromptsList(ctx context.Context, cursor *string) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpPromptsList, OK: true}, nil
}

func (c *fakeConnection) PromptsGet(ctx context.Context, params *PromptsGetParams) (*OperationOutcome, error) {
	return &OperationOutcome{Operation: OpPromptsGet, OK: true}, nil
}

func (c *fakeConnection) Close() error { return nil }

func (c *fakeConnection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *fakeConnection) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *fakeConnection) SetLastEventID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEventID = id
}

type fakeAdapter struct {
	conn    *fakeConnection
	connect int64
}

func (a *fakeAdapter) ID() string { return "fake" }

func (a *fakeAdapter) Connect(ctx context.Context, cfg *TransportConfig) (Connection, error) {
	atomic.AddInt64(&a.connect, 1)
	return a.conn, nil
}

func TestSessionInitializeIdempotent(t *testing.T) {
	conn := &fakeConnection{}
	adapter := &fakeAdapter{conn: conn}
	session := NewSession("https://example.test/mcp", adapter)

	const callers = 20
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if _, err := session.Initialize(context.Background(), &TransportConfig{Endpoint: "https://example.test/mcp"}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if adapter.connect != 1 {
		t.Errorf("expected exactly one Connect call, got %d", adapter.connect)
	}
	if conn.calls != 1 {
		t.Errorf("expected exactly one initialize network call, got %d", conn.calls)
	}
	if session.SessionID() != "sess-1" {
		t.Errorf("expected cached session id, got %q", session.SessionID())
	}
}

func TestSessionCallAppendsExchangeLog(t *testing.T) {
	conn := &fakeConnection{}
	adapter := &fakeAdapter{conn: conn}
	session := NewSession("https://example.test/mcp", adapter)

	if _, err := session.Initialize(context.Background(), &TransportConfig{}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := session.Ping(context.Background()); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
	}

	snap := session.Transcript(0)
	if snap.Initialize == nil || !snap.Initialize.OK {
		t.Fatal("expected initialize outcome in transcript")
	}
	if len(snap.Tail) != 3 {
		t.Fatalf("expected 3 exchange entries, got %d", len(snap.Tail))
	}
	for i, entry := range snap.Tail {
		if entry.Method != string(OpPing) {
			t.Errorf("entry %d: expected method %q, got %q", i, OpPing, entry.Method)
		}
	}
	if snap.Tail[0].Seq >= snap.Tail[1].Seq || snap.Tail[1].Seq >= snap.Tail[2].Seq {
		t.Error("expected strictly increasing sequence numbers")
	}
}

func TestSessionTranscriptTailBound(t *testing.T) {
	conn := &fakeConnection{}
	adapter := &fakeAdapter{conn: conn}
	session := NewSession("https://example.test/mcp", adapter)

	if _, err := session.Initialize(context.Background(), &TransportConfig{}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := session.Ping(context.Background()); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
	}

	snap := session.Transcript(2)
	if len(snap.Tail) != 2 {
		t.Fatalf("expected tail bounded to 2 entries, got %d", len(snap.Tail))
	}
}

func TestSessionCallBeforeInitializeFails(t *testing.T) {
	conn := &fakeConnection{}
	adapter := &fakeAdapter{conn: conn}
	session := NewSession("https://example.test/mcp", adapter)

	if _, err := session.Ping(context.Background()); err == nil {
		t.Error("expected error calling before initialize")
	}
}
