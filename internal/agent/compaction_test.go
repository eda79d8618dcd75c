package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/internal/catalog"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

func testRegistry() *catalog.Registry {
	r := catalog.NewRegistry()
	r.Register(catalog.ModelSpec{ID: "test-model", Provider: "fake", ContextWindow: 1000})
	return r
}

func TestCompactor_ShouldCompact_Threshold(t *testing.T) {
	p := &fakeProvider{name: "fake"}
	c := NewCompactor(DefaultCompactionConfig(), p, testRegistry(), nil)

	// floor(1000 * 0.8) = 800
	if c.ShouldCompact(&messages.Usage{Model: "test-model", TotalTokens: 799}) {
		t.Error("799 tokens should not trigger")
	}
	if !c.ShouldCompact(&messages.Usage{Model: "test-model", TotalTokens: 800}) {
		t.Error("800 tokens should trigger")
	}
	if c.ShouldCompact(nil) {
		t.Error("nil usage should not trigger")
	}
	if c.ShouldCompact(&messages.Usage{Model: "unknown-model", TotalTokens: 999999}) {
		t.Error("missing context limit should not trigger")
	}
}

func TestCompactor_ShouldCompact_DatedSnapshotFallsBack(t *testing.T) {
	p := &fakeProvider{name: "fake"}
	c := NewCompactor(DefaultCompactionConfig(), p, testRegistry(), nil)

	if !c.ShouldCompact(&messages.Usage{Model: "test-model-2025-06-01", TotalTokens: 900}) {
		t.Error("dated snapshot should resolve through the base model id")
	}
}

func TestCompactor_ShouldCompact_Disabled(t *testing.T) {
	cfg := DefaultCompactionConfig()
	cfg.Auto = false
	c := NewCompactor(cfg, &fakeProvider{name: "fake"}, testRegistry(), nil)
	if c.ShouldCompact(&messages.Usage{Model: "test-model", TotalTokens: 999}) {
		t.Error("auto=false should never trigger")
	}
}

func TestCompactor_Compact_Rebuild(t *testing.T) {
	p := &fakeProvider{script: []fakeStep{
		{resp: textCompletion("<retain>keep this code</retain>\n<summary>we discussed things</summary>", nil)},
	}}
	c := NewCompactor(DefaultCompactionConfig(), p, testRegistry(), nil)

	history := []messages.Message{
		messages.System("be helpful"),
		messages.User("first question"),
		messages.Assistant("first answer"),
		messages.User("second question"),
		messages.Assistant("second answer"),
	}
	got, err := c.Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}

	want := []struct {
		role messages.Role
		text string
	}{
		{messages.RoleSystem, "be helpful"},
		{messages.RoleUser, "keep this code"},
		{messages.RoleUser, "we discussed things"},
		{messages.RoleUser, "second question"},
		{messages.RoleAssistant, "second answer"},
	}
	if len(got) != len(want) {
		t.Fatalf("rebuilt length = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Role != w.role || got[i].TextContent() != w.text {
			t.Errorf("rebuilt[%d] = %s %q, want %s %q", i, got[i].Role, got[i].TextContent(), w.role, w.text)
		}
	}

	// The summarization request must not advertise tools.
	req := p.requests[0]
	if len(req.Tools) != 0 || req.ToolChoice != "none" {
		t.Errorf("summarization request carries tools: %+v", req)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != messages.RoleUser || !strings.Contains(last.TextContent(), "<summary>") {
		t.Errorf("missing compaction instruction: %+v", last)
	}
}

func TestCompactor_Compact_DropsTrailingToolCallAssistant(t *testing.T) {
	p := &fakeProvider{script: []fakeStep{
		{resp: textCompletion("<summary>s</summary>", nil)},
	}}
	c := NewCompactor(DefaultCompactionConfig(), p, testRegistry(), nil)

	history := []messages.Message{
		messages.User("go"),
		{Role: messages.RoleAssistant, ToolCalls: []messages.ToolCall{messages.NewToolCall("c1", "exec", "{}")}},
	}
	if _, err := c.Compact(context.Background(), history); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	for _, m := range p.requests[0].Messages {
		if m.HasToolCalls() {
			t.Error("trailing tool-call assistant message should be dropped from the summarization input")
		}
	}
}

func TestCompactor_Compact_NoTagsFallback(t *testing.T) {
	p := &fakeProvider{script: []fakeStep{
		{resp: textCompletion("  just a plain summary  ", nil)},
	}}
	c := NewCompactor(DefaultCompactionConfig(), p, testRegistry(), nil)

	got, err := c.Compact(context.Background(), []messages.Message{
		messages.User("q"),
		messages.Assistant("a"),
	})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	// summary + last turn
	if got[0].TextContent() != "just a plain summary" {
		t.Errorf("fallback summary = %q", got[0].TextContent())
	}
}

func TestCompactor_Compact_ErrorKeepsHistory(t *testing.T) {
	p := &fakeProvider{script: []fakeStep{{err: errors.New("rate limited")}}}
	c := NewCompactor(DefaultCompactionConfig(), p, testRegistry(), nil)

	history := []messages.Message{messages.User("q"), messages.Assistant("a")}
	got, err := c.Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("non-abort failure must not error: %v", err)
	}
	if len(got) != len(history) {
		t.Error("history should be returned uncompacted")
	}
}

func TestCompactor_Compact_AbortPropagates(t *testing.T) {
	p := &fakeProvider{script: []fakeStep{{err: context.Canceled}}}
	c := NewCompactor(DefaultCompactionConfig(), p, testRegistry(), nil)

	if _, err := c.Compact(context.Background(), []messages.Message{messages.User("q")}); !errors.Is(err, context.Canceled) {
		t.Errorf("abort should propagate, got %v", err)
	}
}

func TestCompactor_Compact_ModelOverride(t *testing.T) {
	cfg := DefaultCompactionConfig()
	cfg.Model = "cheap-model"
	p := &fakeProvider{script: []fakeStep{{resp: textCompletion("<summary>s</summary>", nil)}}}
	c := NewCompactor(cfg, p, testRegistry(), nil)

	if _, err := c.Compact(context.Background(), []messages.Message{messages.User("q")}); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if p.requests[0].Model != "cheap-model" {
		t.Errorf("model override not applied: %q", p.requests[0].Model)
	}
}
