package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/haasonsaas/agentcore/internal/toolstore"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

func newTestCache(cfg ToolOutputCacheConfig) (*ToolOutputCache, *toolstore.MemoryStore) {
	store := toolstore.NewMemoryStore()
	return NewToolOutputCache(cfg, store, nil), store
}

func TestToolOutputCache_ExactCapPassesThrough(t *testing.T) {
	cfg := DefaultToolOutputCacheConfig()
	cfg.MaxMessageBytes = 16
	cache, _ := newTestCache(cfg)

	content := strings.Repeat("a", 16)
	msg := messages.ToolResult("call_1", "exec", content, false)
	cache.ProcessToolMessage(context.Background(), &msg)

	if got := msg.TextContent(); got != content {
		t.Errorf("content at exact cap changed: %q", got)
	}
	if msg.OutputRef == "" {
		t.Error("full output should still be persisted")
	}
}

func TestToolOutputCache_OverCapTruncatesWithRef(t *testing.T) {
	cfg := DefaultToolOutputCacheConfig()
	cfg.MaxMessageBytes = 16
	cache, store := newTestCache(cfg)

	content := strings.Repeat("a", 17)
	msg := messages.ToolResult("call_1", "exec", content, false)
	cache.ProcessToolMessage(context.Background(), &msg)

	got := msg.TextContent()
	if !strings.Contains(got, "[tool output truncated; ref="+msg.OutputRef+"]") {
		t.Errorf("missing ref tag: %q", got)
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 16)) {
		t.Errorf("truncated body wrong: %q", got)
	}

	full, err := store.Read(context.Background(), msg.OutputRef, toolstore.ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if full != content {
		t.Error("store should hold the untruncated output")
	}
}

func TestToolOutputCache_BypassTools(t *testing.T) {
	cfg := DefaultToolOutputCacheConfig()
	cfg.MaxMessageBytes = 4
	cache, _ := newTestCache(cfg)

	for _, name := range []string{ToolOutputCacheName, ToolOutputCacheGrepName} {
		msg := messages.ToolResult("call_1", name, "long long output", false)
		cache.ProcessToolMessage(context.Background(), &msg)
		if msg.TextContent() != "long long output" {
			t.Errorf("%s output must not be truncated", name)
		}
		if msg.OutputRef != "" {
			t.Errorf("%s output must not be persisted", name)
		}
	}
}

func TestToolOutputCache_KeepsWholeLines(t *testing.T) {
	cfg := DefaultToolOutputCacheConfig()
	cfg.MaxMessageBytes = 10
	cache, _ := newTestCache(cfg)

	msg := messages.ToolResult("call_1", "exec", "abcd\nefgh\nijkl", false)
	cache.ProcessToolMessage(context.Background(), &msg)

	got := msg.TextContent()
	if !strings.HasPrefix(got, "abcd\nefgh\n\n[tool output truncated") {
		t.Errorf("line-bounded truncation wrong: %q", got)
	}
}

func TestToolOutputCache_MaxLineLength(t *testing.T) {
	cfg := DefaultToolOutputCacheConfig()
	cfg.MaxLineLength = 5
	cache, _ := newTestCache(cfg)

	msg := messages.ToolResult("call_1", "exec", "abcdefghij\nok", false)
	cache.ProcessToolMessage(context.Background(), &msg)

	got := msg.TextContent()
	if !strings.HasPrefix(got, "abcde\nok") {
		t.Errorf("line clipping wrong: %q", got)
	}
	if !strings.Contains(got, "[tool output truncated") {
		t.Errorf("clipped output should carry the tag: %q", got)
	}
}

func TestTruncateOutput_BacksOffToRuneBoundary(t *testing.T) {
	multi := strings.Repeat("é", 4) // two bytes per rune

	// A line cap landing inside a rune backs off to the previous boundary.
	got, cut := truncateOutput(multi, 100, 5)
	if !cut || got != "éé" {
		t.Errorf("line clip = %q, cut = %v", got, cut)
	}
	if !utf8.ValidString(got) {
		t.Errorf("line clip split a rune: %q", got)
	}

	// Same for a single line clipped by the byte cap.
	got, cut = truncateOutput(multi, 5, 0)
	if !cut || got != "éé" {
		t.Errorf("byte clip = %q, cut = %v", got, cut)
	}
	if !utf8.ValidString(got) {
		t.Errorf("byte clip split a rune: %q", got)
	}
}

func TestToolOutputCache_TrimHistory(t *testing.T) {
	cfg := DefaultToolOutputCacheConfig()
	cfg.ContextBudgetTokens = 70 // two 200-byte outputs are 100 tokens
	cache, _ := newTestCache(cfg)

	big := strings.Repeat("x", 200)
	msgs := []messages.Message{
		messages.User("question"),
		messages.ToolResult("call_1", "exec", big, false),
		messages.ToolResult("call_2", "exec", big, false),
	}
	for i := range msgs {
		cache.ProcessToolMessage(context.Background(), &msgs[i])
	}

	cache.TrimHistory(msgs, 0)

	if !msgs[1].Trimmed {
		t.Error("oldest tool message should be trimmed first")
	}
	if got := msgs[1].TextContent(); got != "[tool output trimmed; ref="+msgs[1].OutputRef+"]" {
		t.Errorf("trim placeholder wrong: %q", got)
	}
	if msgs[2].Trimmed {
		t.Error("second tool message should survive once within budget")
	}

	// Idempotence: a second pass changes nothing.
	snap := make([]messages.Message, len(msgs))
	copy(snap, msgs)
	cache.TrimHistory(msgs, 0)
	for i := range msgs {
		if msgs[i].TextContent() != snap[i].TextContent() || msgs[i].Trimmed != snap[i].Trimmed {
			t.Errorf("trim not idempotent at %d", i)
		}
	}
}

func TestToolOutputCache_TrimBudgetResolution(t *testing.T) {
	cache, _ := newTestCache(DefaultToolOutputCacheConfig())

	if got := cache.trimBudget(0); got != trimBudgetMin {
		t.Errorf("unknown window budget = %d, want %d", got, trimBudgetMin)
	}
	if got := cache.trimBudget(200_000); got != 50_000 {
		t.Errorf("200k window budget = %d, want 50000", got)
	}
	if got := cache.trimBudget(1_000_000); got != trimBudgetMax {
		t.Errorf("1M window budget = %d, want %d", got, trimBudgetMax)
	}
	if got := cache.trimBudget(40_000); got != trimBudgetMin {
		t.Errorf("small window budget = %d, want %d", got, trimBudgetMin)
	}

	cfgExplicit := DefaultToolOutputCacheConfig()
	cfgExplicit.ContextBudgetTokens = 12345
	explicit, _ := newTestCache(cfgExplicit)
	if got := explicit.trimBudget(200_000); got != 12345 {
		t.Errorf("explicit budget = %d, want 12345", got)
	}
}

func TestCacheReadTool(t *testing.T) {
	store := toolstore.NewMemoryStore()
	ref, _ := store.Save(context.Background(), toolstore.Record{Content: "l1\nl2\nl3"})

	tool := NewCacheReadTool(store)
	out, err := tool.Execute(context.Background(),
		json.RawMessage(`{"ref":"`+ref.ID+`","offset":1,"limit":1}`), NewToolContext(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Text != "l2" {
		t.Errorf("Text = %q, want l2", out.Text)
	}

	out, err = tool.Execute(context.Background(), json.RawMessage(`{"ref":"missing"}`), NewToolContext(nil))
	if err != nil {
		t.Fatalf("Execute unknown: %v", err)
	}
	if !out.IsError {
		t.Error("unknown ref should produce an error output")
	}
}

func TestCacheGrepTool(t *testing.T) {
	store := toolstore.NewMemoryStore()
	ref, _ := store.Save(context.Background(), toolstore.Record{Content: "alpha\nbeta\ngamma"})

	tool := NewCacheGrepTool(store)
	out, err := tool.Execute(context.Background(),
		json.RawMessage(`{"ref":"`+ref.ID+`","pattern":"beta"}`), NewToolContext(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.Text, "2:beta") {
		t.Errorf("Text = %q", out.Text)
	}
}
