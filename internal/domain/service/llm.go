package service

import "context"

// ProviderConfig carries everything one LLM call needs: the endpoint,
// credentials, model and prompt. DatabaseID optionally names a
// knowledge base whose content the adapter appends to the system
// prompt.
type ProviderConfig struct {
	APIURL       string
	APIKey       string
	Model        string
	SystemPrompt string
	DatabaseID   string
}

// Exchange is one stored user/assistant pair, replayed as memory.
type Exchange struct {
	UserMessage string
	AIResponse  string
}

// ChatRequest is a single conversational turn: prior exchanges in
// chronological order, then the current user message.
type ChatRequest struct {
	Config  ProviderConfig
	History []Exchange
	Message string
}

// StreamChunk is one fragment of a streamed reply. Done marks the end
// of the stream; Err, when set, explains a mid-stream failure.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// LLMClient is the port to external language-model providers. It
// decouples the chat flow from provider wire formats.
type LLMClient interface {
	// Complete sends the request and blocks for the full reply. On
	// provider failure the returned text is a user-facing description
	// of the problem and err carries the cause; the text is always
	// safe to forward to the chat.
	Complete(ctx context.Context, req ChatRequest) (string, error)

	// Stream sends the request and returns a channel of chunks. The
	// channel is closed after the Done chunk. Providers that cannot
	// stream deliver one chunk with the whole reply.
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}
