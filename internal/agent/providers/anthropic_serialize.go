package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// consolidateSystem joins all system messages into the single system string
// the Anthropic API expects.
func consolidateSystem(msgs []messages.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == messages.RoleSystem {
			if t := m.TextContent(); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// anthropicMessages serializes the neutral history to Anthropic message
// params. System messages are consolidated separately; reasoning messages are
// dropped entirely on replay. Consecutive assistant messages are coalesced
// into one turn, and tool_use blocks without a matching tool_result anywhere
// in the history are dropped.
func anthropicMessages(msgs []messages.Message) ([]anthropic.MessageParam, error) {
	resultIDs := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == messages.RoleTool && m.ToolCallID != "" {
			resultIDs[m.ToolCallID] = true
		}
	}

	var out []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case messages.RoleSystem, messages.RoleReasoning:
			continue

		case messages.RoleUser:
			blocks := userBlocks(m.Content)
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(blocks...))

		case messages.RoleAssistant:
			blocks, err := assistantBlocks(m, resultIDs)
			if err != nil {
				return nil, err
			}
			if len(blocks) == 0 {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleAssistant {
				out[n-1].Content = append(out[n-1].Content, blocks...)
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case messages.RoleTool:
			block := anthropic.NewToolResultBlock(m.ToolCallID, m.TextContent(), m.IsError)
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out, nil
}

func userBlocks(parts []messages.ContentPart) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch p.Type {
		case messages.PartText:
			if p.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}

		case messages.PartImageURL:
			if mediaType, data, ok := parseDataURL(p.URL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
				continue
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfURL: &anthropic.URLImageSourceParam{URL: p.URL},
					},
				},
			})

		case messages.PartDocument:
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfDocument: &anthropic.DocumentBlockParam{
					Source: anthropic.DocumentBlockParamSourceUnion{
						OfBase64: &anthropic.Base64PDFSourceParam{Data: p.Data},
					},
				},
			})

		case messages.PartOther:
			// Foreign-provider payloads degrade to the readable marker.
			if text := p.Marker(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
		}
	}
	return blocks
}

func assistantBlocks(m messages.Message, resultIDs map[string]bool) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if t := m.TextContent(); t != "" {
		blocks = append(blocks, anthropic.NewTextBlock(t))
	}
	if m.Refusal != "" {
		blocks = append(blocks, anthropic.NewTextBlock(m.Refusal))
	}
	for _, call := range m.ToolCalls {
		if !resultIDs[call.ID] {
			continue
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool call arguments for %s: %w", call.ID, err)
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Function.Name))
	}
	return blocks, nil
}

// parseDataURL splits a data: URL into media type and base64 payload.
func parseDataURL(raw string) (string, string, bool) {
	if !strings.HasPrefix(raw, "data:") {
		return "", "", false
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	mediaType := strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		return "", "", false
	}
	return mediaType, data, true
}

// parseAnthropicMessage converts an accumulated API message into neutral
// messages: a reasoning message per thinking block, then one assistant
// message carrying text and tool calls.
func parseAnthropicMessage(msg *anthropic.Message) []messages.Message {
	var out []messages.Message
	assistant := messages.Message{Role: messages.RoleAssistant}

	for _, block := range msg.Content {
		switch block.Type {
		case "thinking":
			thinking := block.AsThinking()
			out = append(out, messages.Message{
				Role:            messages.RoleReasoning,
				Content:         []messages.ContentPart{messages.Text(thinking.Thinking)},
				RawItem:         json.RawMessage(block.RawJSON()),
				RawItemProvider: "anthropic",
			})
		case "text":
			text := block.AsText()
			if text.Text != "" {
				assistant.Content = append(assistant.Content, messages.Text(text.Text))
			}
		case "tool_use":
			toolUse := block.AsToolUse()
			assistant.ToolCalls = append(assistant.ToolCalls,
				messages.NewToolCall(toolUse.ID, toolUse.Name, string(toolUse.Input)))
		}
	}

	if len(assistant.Content) > 0 || len(assistant.ToolCalls) > 0 {
		out = append(out, assistant)
	}
	return out
}

// normalizeAnthropicUsage folds cache reads and cache creation into
// input_tokens so context-window ratios are comparable across providers.
func normalizeAnthropicUsage(model string, u anthropic.Usage) *messages.Usage {
	input := int(u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens)
	return &messages.Usage{
		Model:                    model,
		InputTokens:              input,
		InputCachedTokens:        int(u.CacheReadInputTokens),
		InputCacheCreationTokens: int(u.CacheCreationInputTokens),
		OutputTokens:             int(u.OutputTokens),
		TotalTokens:              input + int(u.OutputTokens),
	}
}
