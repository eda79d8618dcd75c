package providers

import (
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

func TestNewAnthropicProvider_RetryDelayDefaults(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.cfg.RetryDelay != time.Second || p.cfg.RetryMaxDelay != 30*time.Second {
		t.Errorf("retry delays = %v/%v", p.cfg.RetryDelay, p.cfg.RetryMaxDelay)
	}

	p, err = NewAnthropicProvider(AnthropicConfig{APIKey: "k", RetryMaxDelay: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.cfg.RetryMaxDelay != 5*time.Second {
		t.Errorf("explicit retry max delay = %v", p.cfg.RetryMaxDelay)
	}
}

func TestConsolidateSystem(t *testing.T) {
	msgs := []messages.Message{
		{Role: messages.RoleSystem, Content: []messages.ContentPart{messages.Text("first")}},
		{Role: messages.RoleUser, Content: []messages.ContentPart{messages.Text("hi")}},
		{Role: messages.RoleSystem, Content: []messages.ContentPart{messages.Text("second")}},
	}
	if got := consolidateSystem(msgs); got != "first\n\nsecond" {
		t.Errorf("consolidateSystem = %q", got)
	}
	if got := consolidateSystem(nil); got != "" {
		t.Errorf("empty history = %q", got)
	}
}

func TestAnthropicMessages_ReasoningDroppedSystemSkipped(t *testing.T) {
	msgs := []messages.Message{
		{Role: messages.RoleSystem, Content: []messages.ContentPart{messages.Text("sys")}},
		{Role: messages.RoleReasoning, Content: []messages.ContentPart{messages.Text("thinking")}},
		{Role: messages.RoleUser, Content: []messages.ContentPart{messages.Text("hi")}},
	}
	out, err := anthropicMessages(msgs)
	if err != nil {
		t.Fatalf("anthropicMessages: %v", err)
	}
	if len(out) != 1 || out[0].Role != anthropic.MessageParamRoleUser {
		t.Fatalf("messages = %+v", out)
	}
}

func TestAnthropicMessages_CoalescesConsecutiveAssistant(t *testing.T) {
	msgs := []messages.Message{
		{Role: messages.RoleUser, Content: []messages.ContentPart{messages.Text("go")}},
		{Role: messages.RoleAssistant, Content: []messages.ContentPart{messages.Text("part one")}},
		{Role: messages.RoleAssistant, Content: []messages.ContentPart{messages.Text("part two")}},
	}
	out, err := anthropicMessages(msgs)
	if err != nil {
		t.Fatalf("anthropicMessages: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d turns, want user + merged assistant", len(out))
	}
	if len(out[1].Content) != 2 {
		t.Errorf("merged assistant has %d blocks, want 2", len(out[1].Content))
	}
}

func TestAnthropicMessages_DropsOrphanToolUse(t *testing.T) {
	msgs := []messages.Message{
		{Role: messages.RoleUser, Content: []messages.ContentPart{messages.Text("go")}},
		{
			Role: messages.RoleAssistant,
			ToolCalls: []messages.ToolCall{
				messages.NewToolCall("call_answered", "lookup", `{"q":"a"}`),
				messages.NewToolCall("call_orphan", "lookup", `{"q":"b"}`),
			},
		},
		{Role: messages.RoleTool, ToolCallID: "call_answered", Content: []messages.ContentPart{messages.Text("found")}},
	}
	out, err := anthropicMessages(msgs)
	if err != nil {
		t.Fatalf("anthropicMessages: %v", err)
	}
	// user, assistant(one tool_use), user(tool_result)
	if len(out) != 3 {
		t.Fatalf("got %d turns: %+v", len(out), out)
	}
	if len(out[1].Content) != 1 {
		t.Errorf("assistant blocks = %d, want orphan dropped", len(out[1].Content))
	}
}

func TestAnthropicMessages_ToolResultBecomesUserTurn(t *testing.T) {
	msgs := []messages.Message{
		{Role: messages.RoleTool, ToolCallID: "call_1", IsError: true,
			Content: []messages.ContentPart{messages.Text("Error: boom")}},
	}
	out, err := anthropicMessages(msgs)
	if err != nil {
		t.Fatalf("anthropicMessages: %v", err)
	}
	if len(out) != 1 || out[0].Role != anthropic.MessageParamRoleUser {
		t.Fatalf("tool result turn = %+v", out)
	}
	if out[0].Content[0].OfToolResult == nil {
		t.Error("expected a tool_result block")
	}
}

func TestParseDataURL(t *testing.T) {
	mediaType, data, ok := parseDataURL("data:image/png;base64,aGVsbG8=")
	if !ok || mediaType != "image/png" || data != "aGVsbG8=" {
		t.Errorf("parseDataURL = %q %q %v", mediaType, data, ok)
	}
	if _, _, ok := parseDataURL("https://example.com/a.png"); ok {
		t.Error("plain URL should not parse as data URL")
	}
	if _, _, ok := parseDataURL("data:image/png,notbase64"); ok {
		t.Error("non-base64 data URL should not parse")
	}
}

func TestNormalizeAnthropicUsage(t *testing.T) {
	u := anthropic.Usage{
		InputTokens:              100,
		CacheReadInputTokens:     40,
		CacheCreationInputTokens: 10,
		OutputTokens:             25,
	}
	got := normalizeAnthropicUsage("claude-sonnet-4-20250514", u)
	if got.InputTokens != 150 {
		t.Errorf("input tokens = %d, want base+cache_read+cache_create", got.InputTokens)
	}
	if got.InputCachedTokens != 40 || got.InputCacheCreationTokens != 10 {
		t.Errorf("cache fields = %d/%d", got.InputCachedTokens, got.InputCacheCreationTokens)
	}
	if got.TotalTokens != 175 {
		t.Errorf("total = %d", got.TotalTokens)
	}
}

func TestAnthropicToolChoice(t *testing.T) {
	if anthropicToolChoice("") != nil {
		t.Error("empty choice should be nil")
	}
	if c := anthropicToolChoice("auto"); c.OfAuto == nil {
		t.Error("auto choice")
	}
	if c := anthropicToolChoice("required"); c.OfAny == nil {
		t.Error("required choice maps to any")
	}
	if c := anthropicToolChoice("none"); c.OfNone == nil {
		t.Error("none choice")
	}
	if c := anthropicToolChoice("lookup"); c.OfTool == nil || c.OfTool.Name != "lookup" {
		t.Error("named tool choice")
	}
}
