package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// Tool defines the interface for executable agent tools.
//
// Execute receives the raw JSON argument text as the model produced it. When
// the text is not valid JSON the loop wraps it as {"_raw": "..."} and the
// tool decides validity itself.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema (draft-07) for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Returning a *TaskComplete error ends the
	// current turn with the signal's final message.
	Execute(ctx context.Context, args json.RawMessage, tc *ToolContext) (*ToolOutput, error)
}

// ToolOutput is the result of a tool execution. Exactly one of Text, Parts,
// or JSON should be set; JSON values are stringified into the tool message.
type ToolOutput struct {
	Text    string
	Parts   []messages.ContentPart
	JSON    any
	IsError bool
}

// Content renders the output as tool-message content parts.
func (o *ToolOutput) Content() []messages.ContentPart {
	switch {
	case o == nil:
		return []messages.ContentPart{messages.Text("")}
	case len(o.Parts) > 0:
		return o.Parts
	case o.JSON != nil:
		b, err := json.Marshal(o.JSON)
		if err != nil {
			return []messages.ContentPart{messages.Text(fmt.Sprintf("%v", o.JSON))}
		}
		return []messages.ContentPart{messages.Text(string(b))}
	default:
		return []messages.ContentPart{messages.Text(o.Text)}
	}
}

// TaskComplete is the control signal a tool returns (as an error) to end the
// turn. It is not a failure; the loop converts it to a final event.
type TaskComplete struct {
	FinalMessage string
}

func (t *TaskComplete) Error() string { return "task complete" }

// Dependency identifies a lazily-constructed per-turn resource shared between
// tools, such as a browser session or a database handle. Each key is built at
// most once per turn.
type Dependency struct {
	ID  string
	New func(ctx context.Context) (any, error)
}

// ToolContext is the per-call execution context handed to tools.
type ToolContext struct {
	// Now returns the current wall clock. Tests substitute a fixed clock.
	Now func() time.Time

	// Logger is never nil; it defaults to a discarding logger.
	Logger *slog.Logger

	mu    sync.Mutex
	built map[string]any
}

// NewToolContext creates a context with default clock and logger.
func NewToolContext(logger *slog.Logger) *ToolContext {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ToolContext{
		Now:    time.Now,
		Logger: logger,
		built:  make(map[string]any),
	}
}

// Resolve returns the dependency's value, constructing it on first use and
// memoizing it for the remainder of the turn.
func (tc *ToolContext) Resolve(ctx context.Context, dep Dependency) (any, error) {
	tc.mu.Lock()
	if v, ok := tc.built[dep.ID]; ok {
		tc.mu.Unlock()
		return v, nil
	}
	tc.mu.Unlock()

	v, err := dep.New(ctx)
	if err != nil {
		return nil, err
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if prior, ok := tc.built[dep.ID]; ok {
		return prior, nil
	}
	tc.built[dep.ID] = v
	return v, nil
}

// FuncTool adapts plain functions into the Tool interface, the common way
// callers register tools without defining a type.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolSchema      json.RawMessage
	Fn              func(ctx context.Context, args json.RawMessage, tc *ToolContext) (*ToolOutput, error)
}

func (t *FuncTool) Name() string             { return t.ToolName }
func (t *FuncTool) Description() string      { return t.ToolDescription }
func (t *FuncTool) Schema() json.RawMessage  { return t.ToolSchema }
func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage, tc *ToolContext) (*ToolOutput, error) {
	return t.Fn(ctx, args, tc)
}
