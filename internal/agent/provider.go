package agent

import (
	"context"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// Provider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of one provider's wire protocol while
// presenting the neutral message model to the agent loop. Implementations
// must be safe for concurrent use; the loop itself serializes calls within
// one run.
type Provider interface {
	// Invoke sends the prepared input and returns the final completion.
	Invoke(ctx context.Context, req *Request) (*messages.Completion, error)

	// Name returns the stable lowercase provider identifier.
	Name() string

	// DefaultModel returns the model used when a request does not
	// specify one.
	DefaultModel() string
}

// Request contains all parameters for one LLM invocation.
type Request struct {
	// Messages is the conversation history in chronological order.
	Messages []messages.Message `json:"messages"`

	// Tools are the definitions advertised to the model.
	Tools []messages.ToolDefinition `json:"tools,omitempty"`

	// ToolChoice is "auto", "required", "none", or a tool name.
	// Empty means provider default.
	ToolChoice string `json:"tool_choice,omitempty"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// SessionKey is a caller-provided stable identifier binding requests
	// to a prompt-cache / response-chain slot. Providers that keep
	// per-session state (the OpenAI WebSocket path) require it.
	SessionKey string `json:"session_key,omitempty"`

	// Options carries provider-specific knobs (reasoning effort, ...).
	Options map[string]any `json:"options,omitempty"`
}
