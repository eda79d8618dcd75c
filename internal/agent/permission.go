package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// PermissionDecision is the outcome of a permission hook.
type PermissionDecision struct {
	// Allow grants execution. When false the call is denied.
	Allow bool

	// Reason explains a denial to the model.
	Reason string

	// StopTurn additionally terminates the current turn with a fixed
	// final message instead of letting the model continue.
	StopTurn bool
}

// PermissionHook evaluates a pending tool call before execution. A hook
// error is treated as a denial carrying the error message.
type PermissionHook func(ctx context.Context, call messages.ToolCall, args json.RawMessage, tc *ToolContext) (PermissionDecision, error)

// stopTurnFinal is the final-event content emitted when a denial stops
// the turn.
const stopTurnFinal = "Permission request was denied. Turn stopped. Please send your next input to continue."
