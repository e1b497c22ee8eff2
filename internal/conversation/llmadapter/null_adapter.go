package llmadapter

import (
	"context"
	"fmt"
	"sync"
)

// Script is a scripted response queue a NullAdapter drains in order: tests
// configure fixed, deterministic responses instead of reaching a real
// model.
type Script struct {
	Responses []string
	Model     ModelInfo
}

// DefaultScript returns a script with one canned response, suitable when a
// test only cares that *an* adapter is wired, not what it says.
func DefaultScript() Script {
	return Script{
		Responses: []string{"acknowledged"},
		Model: ModelInfo{
			Name:          "null-model",
			Version:       "test",
			Capabilities:  []string{"chat", "complete"},
			ContextWindow: 8192,
		},
	}
}

// NullAdapter is a deterministic Adapter test double. It never calls out
// to a network and returns responses from its Script in order, repeating
// the last one once exhausted.
type NullAdapter struct {
	mu       sync.Mutex
	script   Script
	calls    []Message
	position int
}

// NewNullAdapter builds a NullAdapter from script. A zero-value Script
// falls back to DefaultScript.
func NewNullAdapter(script Script) *NullAdapter {
	if len(script.Responses) == 0 {
		script = DefaultScript()
	}
	return &NullAdapter{script: script}
}

func (a *NullAdapter) next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.position >= len(a.script.Responses) {
		return a.script.Responses[len(a.script.Responses)-1]
	}
	r := a.script.Responses[a.position]
	a.position++
	return r
}

// Complete returns the next scripted response, ignoring prompt and
// maxTokens beyond recording them for CallCount/LastPrompt-style
// inspection in tests.
func (a *NullAdapter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	a.mu.Lock()
	a.calls = append(a.calls, Message{Role: "user", Content: prompt})
	a.mu.Unlock()
	return a.next(), nil
}

// Chat returns the next scripted response.
func (a *NullAdapter) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	a.mu.Lock()
	a.calls = append(a.calls, messages...)
	a.mu.Unlock()
	return a.next(), nil
}

// Stream emits the next scripted response as a single chunk followed by a
// done chunk.
func (a *NullAdapter) Stream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	text, err := a.Chat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Text: text}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// GetModelInfo returns the script's configured model metadata.
func (a *NullAdapter) GetModelInfo() ModelInfo {
	return a.script.Model
}

// CallCount reports how many messages have been passed to Complete/Chat,
// for test assertions.
func (a *NullAdapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// FailingAdapter is an Adapter that always errors, for testing a
// session's handling of a dead LLM backend.
type FailingAdapter struct {
	Err error
}

func (a *FailingAdapter) err() error {
	if a.Err != nil {
		return a.Err
	}
	return fmt.Errorf("llmadapter: adapter unavailable")
}

func (a *FailingAdapter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", a.err()
}

func (a *FailingAdapter) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	return "", a.err()
}

func (a *FailingAdapter) Stream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	return nil, a.err()
}

func (a *FailingAdapter) GetModelInfo() ModelInfo {
	return ModelInfo{Name: "failing-model"}
}
