// Package llmadapter defines the LLM contract the conversational session
// manager drives, plus a scriptable fake for tests.
package llmadapter

import "context"

// SessionTypeHint steers model selection: development sessions favor a
// code-oriented model, debugging a reasoning-oriented one, learning an
// explanation-oriented one.
type SessionTypeHint string

const (
	HintDevelopment SessionTypeHint = "development"
	HintDebugging   SessionTypeHint = "debugging"
	HintLearning    SessionTypeHint = "learning"
)

// Message is one turn of chat history.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Options configures a chat/stream/complete call.
type Options struct {
	MaxTokens         int
	Temperature       float64
	SystemPrompt      string
	Deterministic     bool
	DeterministicSeed int64
	SessionHint       SessionTypeHint
}

// ModelInfo describes the model an adapter is currently bound to.
type ModelInfo struct {
	Name          string
	Version       string
	Capabilities  []string
	ContextWindow int
}

// StreamChunk is one increment of a streamed response.
type StreamChunk struct {
	Text string
	Done bool
}

// Adapter is the LLM contract a conversational session drives: a required
// one-shot Complete, plus the Chat/Stream/GetModelInfo extensions a
// multi-turn session needs.
type Adapter interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
	Stream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error)
	GetModelInfo() ModelInfo
}
