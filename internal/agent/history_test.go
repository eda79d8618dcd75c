package agent

import (
	"testing"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

func TestHistory_SingleSystemMessage(t *testing.T) {
	h := NewHistory()
	h.EnqueueSystem("first")
	h.EnqueueSystem("second")
	h.EnqueueSystem("")

	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
	if got := h.Snapshot()[0].TextContent(); got != "first" {
		t.Errorf("system = %q, want first", got)
	}
}

func TestHistory_PrepareInputIsACopy(t *testing.T) {
	h := NewHistory()
	h.EnqueueUser([]messages.ContentPart{messages.Text("hi")})

	input := h.PrepareInput()
	input[0].SetText("mutated")
	if h.Snapshot()[0].TextContent() != "hi" {
		t.Error("PrepareInput must not alias history messages")
	}
}

func TestHistory_EnqueueToolResultForcesRole(t *testing.T) {
	h := NewHistory()
	msg := messages.Assistant("oops")
	h.EnqueueToolResult(msg)
	if h.Snapshot()[0].Role != messages.RoleTool {
		t.Error("tool result role not forced")
	}
}

func TestHistory_ReplaceRecomputesSystem(t *testing.T) {
	h := NewHistory()
	h.EnqueueSystem("sys")

	h.Replace([]messages.Message{messages.User("only user")})
	h.EnqueueSystem("new sys")
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}

	h.Replace([]messages.Message{messages.System("kept"), messages.User("u")})
	h.EnqueueSystem("ignored")
	if h.Len() != 2 {
		t.Error("system flag not recomputed on Replace")
	}
}

func TestUsageAccountant(t *testing.T) {
	a := NewUsageAccountant()
	if a.Last() != nil {
		t.Error("Last before any call should be nil")
	}
	a.Record(nil)
	if a.Calls() != 0 {
		t.Error("nil usage should be ignored")
	}

	a.Record(&messages.Usage{Model: "m", InputTokens: 10, OutputTokens: 5, TotalTokens: 15})
	a.Record(&messages.Usage{Model: "m", InputTokens: 20, OutputTokens: 5, TotalTokens: 25})

	if a.Calls() != 2 {
		t.Errorf("Calls = %d", a.Calls())
	}
	if total := a.Total(); total.TotalTokens != 40 || total.InputTokens != 30 {
		t.Errorf("Total = %+v", total)
	}
	last := a.Last()
	if last.TotalTokens != 25 {
		t.Errorf("Last = %+v", last)
	}
	last.TotalTokens = 0
	if a.Last().TotalTokens != 25 {
		t.Error("Last must return a copy")
	}
}
