package agent

import "github.com/haasonsaas/agentcore/pkg/messages"

// History is the append-only view of a conversation owned by one agent.
// The agent loop is the only writer; Snapshot returns the current list
// without copy-on-read guarantees beyond slice semantics.
type History struct {
	msgs      []messages.Message
	hasSystem bool
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// EnqueueSystem appends a system message. At most one system message is
// accepted; repeated enqueues are ignored.
func (h *History) EnqueueSystem(text string) {
	if h.hasSystem || text == "" {
		return
	}
	h.msgs = append(h.msgs, messages.System(text))
	h.hasSystem = true
}

// EnqueueUser appends a user message built from content parts.
func (h *History) EnqueueUser(parts []messages.ContentPart) {
	h.msgs = append(h.msgs, messages.UserParts(parts))
}

// EnqueueToolResult appends a tool message.
func (h *History) EnqueueToolResult(msg messages.Message) {
	msg.Role = messages.RoleTool
	h.msgs = append(h.msgs, msg)
}

// Commit appends the messages of a model response.
func (h *History) Commit(msgs []messages.Message) {
	h.msgs = append(h.msgs, msgs...)
}

// PrepareInput returns a copy of the history suitable for one invocation.
func (h *History) PrepareInput() []messages.Message {
	out := make([]messages.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Snapshot returns the current message list.
func (h *History) Snapshot() []messages.Message { return h.msgs }

// Replace swaps the entire history, used by compaction and trimming.
func (h *History) Replace(msgs []messages.Message) {
	h.msgs = msgs
	h.hasSystem = false
	for _, m := range msgs {
		if m.Role == messages.RoleSystem {
			h.hasSystem = true
			break
		}
	}
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.msgs) }
