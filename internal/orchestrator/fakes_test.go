package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/bc-dunia/cortexdx/internal/transport"
)

// fakeConnection is a minimal stub implementing transport.Connection:
// canned per-method outcomes with no real network activity.
type fakeConnection struct {
	initErr error
	toolsListResult json.RawMessage
	pingLatencyMs   int64
	sessionID       string
}

func (c *fakeConnection) Initialize(ctx context.Context, params *transport.InitializeParams) (*transport.OperationOutcome, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}
	return &transport.OperationOutcome{OK: true, SessionID: "fake-session"}, nil
}

func (c *fakeConnection) SendInitialized(ctx context.Context) (*transport.OperationOutcome, error) {
	return &transport.OperationOutcome{OK: true}, nil
}

func (c *fakeConnection) ToolsList(ctx context.Context, cursor *string) (*transport.OperationOutcome, error) {
	result := c.toolsListResult
	if result == nil {
		result = json.RawMessage(`{"tools":[{"name":"fetch-data","inputSchema":{}}]}`)
	}
	return &transport.OperationOutcome{Operation: transport.OpToolsList, OK: true, Result: result}, nil
}

func (c *fakeConnection) ToolsCall(ctx context.Context, params *transport.ToolsCallParams) (*transport.OperationOutcome, error) {
	return &transport.OperationOutcome{Operation: transport.OpToolsCall, OK: true}, nil
}

func (c *fakeConnection) Ping(ctx context.Context) (*transport.OperationOutcome, error) {
	return &transport.OperationOutcome{Operation: transport.OpPing, OK: true, LatencyMs: c.pingLatencyMs}, nil
}

func (c *fakeConnection) ResourcesList(ctx context.Context, cursor *string) (*transport.OperationOutcome, error) {
	return &transport.OperationOutcome{Operation: transport.OpResourcesList, OK: true}, nil
}

func (c *fakeConnection) ResourcesRead(ctx context.Context, params *transport.ResourcesReadParams) (*transport.OperationOutcome, error) {
	return &transport.OperationOutcome{Operation: transport.OpResourcesRead, OK: true}, nil
}

func (c *fakeConnection) PromptsList(ctx context.Context, cursor *string) (*transport.OperationOutcome, error) {
	return &transport.OperationOutcome{Operation: transport.OpPromptsList, OK: true}, nil
}

func (c *fakeConnection) PromptsGet(ctx context.Context, params *transport.PromptsGetParams) (*transport.OperationOutcome, error) {
	return &transport.OperationOutcome{Operation: transport.OpPromptsGet, OK: true}, nil
}

func (c *fakeConnection) Close() error { return nil }

func (c *fakeConnection) SessionID() string { return c.sessionID }

func (c *fakeConnection) SetSessionID(sessionID string) { c.sessionID = sessionID }

func (c *fakeConnection) SetLastEventID(eventID string) {}

// fakeAdapter hands out a single fakeConnection, or fails to connect at all.
type fakeAdapter struct {
	conn       *fakeConnection
	connectErr error
}

func (a *fakeAdapter) ID() string { return "fake" }

func (a *fakeAdapter) Connect(ctx context.Context, cfg *transport.TransportConfig) (transport.Connection, error) {
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	if a.conn == nil {
		a.conn = &fakeConnection{}
	}
	return a.conn, nil
}
