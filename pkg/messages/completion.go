package messages

// Usage reports token consumption for one LLM invocation.
//
// For Anthropic, InputTokens is normalized to include cache-read and
// cache-creation tokens so that ratios against a model's context window are
// comparable across providers.
type Usage struct {
	Model                    string `json:"model,omitempty"`
	InputTokens              int    `json:"input_tokens"`
	InputCachedTokens        int    `json:"input_cached_tokens,omitempty"`
	InputCacheCreationTokens int    `json:"input_cache_creation_tokens,omitempty"`
	OutputTokens             int    `json:"output_tokens"`
	TotalTokens              int    `json:"total_tokens"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.InputCachedTokens += other.InputCachedTokens
	u.InputCacheCreationTokens += other.InputCacheCreationTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ProviderMeta annotates a completion with transport-level details, primarily
// for the OpenAI WebSocket chaining path.
type ProviderMeta struct {
	ResponseID       string `json:"response_id,omitempty"`
	Transport        string `json:"transport,omitempty"` // "http" or "websocket"
	WebsocketMode    string `json:"websocket_mode,omitempty"`
	FallbackUsed     bool   `json:"fallback_used,omitempty"`
	ChainReset       bool   `json:"chain_reset,omitempty"`
	WsReconnectCount int    `json:"ws_reconnect_count,omitempty"`
	WsInputMode      string `json:"ws_input_mode,omitempty"`
}

// Completion is the provider-neutral result of one LLM invocation.
type Completion struct {
	Messages     []Message     `json:"messages"`
	Usage        *Usage        `json:"usage,omitempty"`
	StopReason   string        `json:"stop_reason,omitempty"`
	ProviderMeta *ProviderMeta `json:"provider_meta,omitempty"`
}
