package messages

import "encoding/json"

// ToolCall represents an LLM's request to execute a tool. Arguments are kept
// as raw JSON text exactly as the provider produced them; parsing happens at
// the execution site so parse failures can be surfaced to the tool.
type ToolCall struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // always "function"
	Function     FunctionCall   `json:"function"`
	ProviderMeta map[string]any `json:"provider_meta,omitempty"`
}

// FunctionCall is the function name plus its raw JSON argument text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewToolCall builds a function tool call.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: arguments}}
}

// ToolDefinitionType tags a ToolDefinition variant.
type ToolDefinitionType string

const (
	ToolDefFunction     ToolDefinitionType = "function"
	ToolDefHostedSearch ToolDefinitionType = "hosted_search"
)

// ToolDefinition describes a tool advertised to the model: either a function
// with a JSON Schema, or a provider-hosted web search tool.
type ToolDefinition struct {
	Type        ToolDefinitionType `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`

	// function
	Parameters json.RawMessage `json:"parameters,omitempty"` // JSON Schema draft-07
	Strict     bool            `json:"strict,omitempty"`

	// hosted_search
	Provider       string        `json:"provider,omitempty"`
	AllowedDomains []string      `json:"allowed_domains,omitempty"`
	BlockedDomains []string      `json:"blocked_domains,omitempty"`
	MaxUses        int           `json:"max_uses,omitempty"`
	UserLocation   *UserLocation `json:"user_location,omitempty"`
}

// UserLocation narrows hosted search results geographically.
type UserLocation struct {
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	City     string `json:"city,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// IsHostedSearch reports whether the definition is a provider-hosted search tool.
func (d ToolDefinition) IsHostedSearch() bool { return d.Type == ToolDefHostedSearch }
