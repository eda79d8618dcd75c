package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// The Responses API consumes a flat item list. Items are kept as canonical
// JSON strings so the WebSocket path can compare histories for strict
// prefix extension.

// openaiInput serializes the non-system history to Responses input items.
// System messages are consolidated into the request's instructions field by
// the caller.
func openaiInput(msgs []messages.Message) ([]json.RawMessage, error) {
	var items []json.RawMessage
	push := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		items = append(items, b)
		return nil
	}

	for _, m := range msgs {
		switch m.Role {
		case messages.RoleSystem:
			continue

		case messages.RoleUser:
			content, err := openaiUserContent(m.Content)
			if err != nil {
				return nil, err
			}
			if len(content) == 0 {
				continue
			}
			if err := push(map[string]any{"type": "message", "role": "user", "content": content}); err != nil {
				return nil, err
			}

		case messages.RoleAssistant:
			content := openaiAssistantContent(m)
			if len(content) > 0 {
				if err := push(map[string]any{"type": "message", "role": "assistant", "content": content}); err != nil {
					return nil, err
				}
			}
			for _, call := range m.ToolCalls {
				if err := push(openaiFunctionCallItem(call)); err != nil {
					return nil, err
				}
			}

		case messages.RoleReasoning:
			// Reasoning replays only through its provider-native raw
			// item; without one there is nothing the API accepts.
			if len(m.RawItem) > 0 && m.RawItemProvider == "openai" {
				items = append(items, m.RawItem)
			}

		case messages.RoleTool:
			if err := push(map[string]any{
				"type":    "function_call_output",
				"call_id": m.ToolCallID,
				"output":  m.TextContent(),
			}); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

func openaiUserContent(parts []messages.ContentPart) ([]any, error) {
	var content []any
	for _, p := range parts {
		switch p.Type {
		case messages.PartText:
			content = append(content, map[string]any{"type": "input_text", "text": p.Text})

		case messages.PartImageURL:
			img := map[string]any{"type": "input_image", "image_url": p.URL}
			if p.Detail != "" {
				img["detail"] = p.Detail
			}
			content = append(content, img)

		case messages.PartDocument:
			content = append(content, map[string]any{
				"type":      "input_file",
				"filename":  "document.pdf",
				"file_data": "data:application/pdf;base64," + p.Data,
			})

		case messages.PartOther:
			if p.Provider == "openai" && len(p.Payload) > 0 {
				var raw any
				if err := json.Unmarshal(p.Payload, &raw); err != nil {
					return nil, fmt.Errorf("openai: invalid opaque payload: %w", err)
				}
				content = append(content, raw)
				continue
			}
			content = append(content, map[string]any{"type": "input_text", "text": p.Marker()})
		}
	}
	return content, nil
}

func openaiAssistantContent(m messages.Message) []any {
	var content []any
	for _, p := range m.Content {
		switch p.Type {
		case messages.PartText:
			content = append(content, map[string]any{"type": "output_text", "text": p.Text})
		case messages.PartOther:
			if p.Provider == "openai" && len(p.Payload) > 0 {
				var raw any
				if json.Unmarshal(p.Payload, &raw) == nil {
					content = append(content, raw)
					continue
				}
			}
			content = append(content, map[string]any{"type": "output_text", "text": p.Marker()})
		default:
			if t := p.AsText(); t != "" {
				content = append(content, map[string]any{"type": "output_text", "text": t})
			}
		}
	}
	if m.Refusal != "" {
		content = append(content, map[string]any{"type": "refusal", "refusal": m.Refusal})
	}
	return content
}

// openaiFunctionCallItem replays a tool call, stripping provider fields down
// to the accepted set. The item id survives only in its "fc"-prefixed form.
func openaiFunctionCallItem(call messages.ToolCall) map[string]any {
	item := map[string]any{
		"type":      "function_call",
		"call_id":   call.ID,
		"name":      call.Function.Name,
		"arguments": call.Function.Arguments,
	}
	if id, ok := call.ProviderMeta["id"].(string); ok && len(id) >= 2 && id[:2] == "fc" {
		item["id"] = id
	}
	if status, ok := call.ProviderMeta["status"].(string); ok && status != "" {
		item["status"] = status
	}
	return item
}

// openaiTools serializes tool definitions: functions in strict mode, and the
// provider-hosted web search tool with its filters.
func openaiTools(defs []messages.ToolDefinition) ([]any, error) {
	var tools []any
	for _, def := range defs {
		if def.IsHostedSearch() {
			tool := map[string]any{"type": "web_search"}
			filters := map[string]any{}
			if len(def.AllowedDomains) > 0 {
				filters["allowed_domains"] = def.AllowedDomains
			}
			if len(def.BlockedDomains) > 0 {
				filters["blocked_domains"] = def.BlockedDomains
			}
			if len(filters) > 0 {
				tool["filters"] = filters
			}
			if def.MaxUses > 0 {
				tool["max_uses"] = def.MaxUses
			}
			if loc := def.UserLocation; loc != nil {
				tool["user_location"] = map[string]any{
					"type":     "approximate",
					"country":  loc.Country,
					"region":   loc.Region,
					"city":     loc.City,
					"timezone": loc.Timezone,
				}
			}
			tools = append(tools, tool)
			continue
		}
		var params any
		if len(def.Parameters) > 0 {
			if err := json.Unmarshal(def.Parameters, &params); err != nil {
				return nil, fmt.Errorf("openai: invalid tool schema for %s: %w", def.Name, err)
			}
		}
		tools = append(tools, map[string]any{
			"type":        "function",
			"name":        def.Name,
			"description": def.Description,
			"parameters":  params,
			"strict":      def.Strict,
		})
	}
	return tools, nil
}

func hasHostedSearch(defs []messages.ToolDefinition) bool {
	for _, def := range defs {
		if def.IsHostedSearch() {
			return true
		}
	}
	return false
}

// openaiResponse is the subset of a Responses API response object the
// transport consumes.
type openaiResponse struct {
	ID     string            `json:"id"`
	Model  string            `json:"model"`
	Status string            `json:"status"`
	Output []json.RawMessage `json:"output"`
	Usage  *openaiUsage      `json:"usage"`
	Error  *openaiError      `json:"error"`
}

type openaiUsage struct {
	InputTokens        int `json:"input_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type openaiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type openaiOutputItem struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Status    string `json:"status"`
	Role      string `json:"role"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Content   []struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Refusal string `json:"refusal"`
	} `json:"content"`
	Summary []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"summary"`
}

// parseOpenAIOutput converts response output items back into the neutral
// model. Unrecognized item types are preserved as replayable raw items.
func parseOpenAIOutput(output []json.RawMessage) ([]messages.Message, error) {
	var out []messages.Message
	assistant := messages.Message{Role: messages.RoleAssistant}
	flush := func() {
		if len(assistant.Content) > 0 || len(assistant.ToolCalls) > 0 || assistant.Refusal != "" {
			out = append(out, assistant)
			assistant = messages.Message{Role: messages.RoleAssistant}
		}
	}

	for _, raw := range output {
		var item openaiOutputItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("openai: malformed output item: %w", err)
		}
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				switch c.Type {
				case "output_text":
					assistant.Content = append(assistant.Content, messages.Text(c.Text))
				case "refusal":
					assistant.Refusal = c.Refusal
				default:
					sub, _ := json.Marshal(c)
					assistant.Content = append(assistant.Content, messages.Other("openai", c.Type, sub))
				}
			}

		case "function_call":
			call := messages.NewToolCall(item.CallID, item.Name, item.Arguments)
			call.ProviderMeta = map[string]any{}
			if item.ID != "" {
				call.ProviderMeta["id"] = item.ID
			}
			if item.Status != "" {
				call.ProviderMeta["status"] = item.Status
			}
			assistant.ToolCalls = append(assistant.ToolCalls, call)

		case "reasoning":
			flush()
			msg := messages.Message{
				Role:            messages.RoleReasoning,
				RawItem:         raw,
				RawItemProvider: "openai",
			}
			for _, s := range item.Summary {
				if s.Text != "" {
					msg.Content = append(msg.Content, messages.Text(s.Text))
				}
			}
			out = append(out, msg)

		default:
			// web_search_call and anything newer replay verbatim and
			// surface to the loop through the raw item.
			flush()
			out = append(out, messages.Message{
				Role:            messages.RoleReasoning,
				RawItem:         raw,
				RawItemProvider: "openai",
			})
		}
	}
	flush()
	return out, nil
}

func parseOpenAIUsage(model string, u *openaiUsage) *messages.Usage {
	if u == nil {
		return nil
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	return &messages.Usage{
		Model:             model,
		InputTokens:       u.InputTokens,
		InputCachedTokens: u.InputTokensDetails.CachedTokens,
		OutputTokens:      u.OutputTokens,
		TotalTokens:       total,
	}
}

// hashJSON fingerprints a serializable value, used for the tools and
// instructions hashes of the WebSocket chain state.
func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalItems renders input items to comparable strings for the strict
// prefix-extension check.
func canonicalItems(items []json.RawMessage) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = string(item)
	}
	return out
}

// isPrefixExtension reports whether cur extends prev item for item.
func isPrefixExtension(prev, cur []string) bool {
	if len(cur) < len(prev) {
		return false
	}
	for i := range prev {
		if prev[i] != cur[i] {
			return false
		}
	}
	return true
}
