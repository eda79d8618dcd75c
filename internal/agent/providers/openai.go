package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

// OpenAIConfig configures the OpenAI Responses transport.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint. Default: https://api.openai.com/v1.
	BaseURL string

	// DefaultModel is used when a request carries no model. Default: gpt-5.
	DefaultModel string

	// ReasoningEffort is the default reasoning effort ("low", "medium",
	// "high"). Requests may override it via options. Default: medium.
	ReasoningEffort string

	// WebsocketMode selects the transport policy: "off" (HTTP only),
	// "auto" (WebSocket with HTTP fallback), or "on" (WebSocket required).
	// Default: off.
	WebsocketMode string

	// WebsocketAPIVersion is "v1" or "v2". Only v2 chains requests by
	// previous_response_id. Default: v2.
	WebsocketAPIVersion string

	// ConnectTimeout bounds the WebSocket upgrade. Default: 30s.
	ConnectTimeout time.Duration

	// ResponseIdleTimeout bounds the wait for a response over an open
	// WebSocket. Default: 300s.
	ResponseIdleTimeout time.Duration

	// MaxRetries bounds HTTP transport retries. Default: 3.
	MaxRetries int

	// RetryBaseDelay is the base HTTP backoff delay. Default: 500ms.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the HTTP backoff delay. Default: 30s.
	RetryMaxDelay time.Duration

	// RetryableStatusCodes overrides the default set of HTTP statuses
	// that trigger a retry.
	RetryableStatusCodes []int

	// Headers are extra default headers forwarded on every request,
	// including the WebSocket upgrade.
	Headers map[string]string

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// OpenAIProvider implements agent.Provider on the OpenAI Responses API. The
// HTTP path is stateless and always available; when enabled, the WebSocket
// path chains requests by previous response id per session key.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	httpc  *http.Client
	logger *slog.Logger

	ws *wsState
}

// NewOpenAIProvider builds the transport.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-5"
	}
	if cfg.ReasoningEffort == "" {
		cfg.ReasoningEffort = "medium"
	}
	switch cfg.WebsocketMode {
	case "":
		cfg.WebsocketMode = "off"
	case "off", "auto", "on":
	default:
		return nil, errors.New("openai: websocket_mode must be off, auto, or on")
	}
	switch cfg.WebsocketAPIVersion {
	case "":
		cfg.WebsocketAPIVersion = "v2"
	case "v1", "v2":
	default:
		return nil, errors.New("openai: websocket_api_version must be v1 or v2")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.ResponseIdleTimeout <= 0 {
		cfg.ResponseIdleTimeout = 300 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}

	p := &OpenAIProvider{
		cfg:    cfg,
		httpc:  httpc,
		logger: cfg.Logger,
	}
	p.ws = newWsState(p)
	return p, nil
}

// Name implements agent.Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// DefaultModel implements agent.Provider.
func (p *OpenAIProvider) DefaultModel() string { return p.cfg.DefaultModel }

// Invoke implements agent.Provider. The WebSocket path requires a session
// key; without one the request goes over HTTP regardless of mode.
func (p *OpenAIProvider) Invoke(ctx context.Context, req *agent.Request) (*messages.Completion, error) {
	r, err := p.prepare(req)
	if err != nil {
		return nil, err
	}
	if p.cfg.WebsocketMode == "off" || req.SessionKey == "" {
		return p.invokeHTTP(ctx, r, nil)
	}
	return p.ws.invoke(ctx, req.SessionKey, r)
}

// preparedRequest is the provider-level request shared by both transports.
type preparedRequest struct {
	model           string
	instructions    string
	items           []json.RawMessage
	tools           []any
	toolChoice      any
	includeSearch   bool
	reasoningEffort string
}

func (p *OpenAIProvider) prepare(req *agent.Request) (*preparedRequest, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	items, err := openaiInput(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := openaiTools(req.Tools)
	if err != nil {
		return nil, err
	}
	r := &preparedRequest{
		model:           model,
		instructions:    consolidateSystem(req.Messages),
		items:           items,
		tools:           tools,
		toolChoice:      openaiToolChoice(req.ToolChoice),
		includeSearch:   hasHostedSearch(req.Tools),
		reasoningEffort: p.cfg.ReasoningEffort,
	}
	if effort, ok := req.Options["reasoning_effort"].(string); ok && effort != "" {
		r.reasoningEffort = effort
	}
	return r, nil
}

func openaiToolChoice(choice string) any {
	switch choice {
	case "":
		return nil
	case "auto", "none", "required":
		return choice
	default:
		return map[string]any{"type": "function", "name": choice}
	}
}

// body assembles the Responses request payload. include always carries
// reasoning.encrypted_content so a stateless replay can restore reasoning;
// web search sources and results are added only when the tool is advertised.
func (r *preparedRequest) body(input []json.RawMessage, previousResponseID string, stream bool) map[string]any {
	if input == nil {
		input = []json.RawMessage{}
	}
	include := []string{"reasoning.encrypted_content"}
	if r.includeSearch {
		include = append(include, "web_search_call.action.sources", "web_search_call.results")
	}
	body := map[string]any{
		"model":     r.model,
		"input":     input,
		"store":     false,
		"include":   include,
		"reasoning": map[string]any{"effort": r.reasoningEffort, "summary": "auto"},
	}
	if r.instructions != "" {
		body["instructions"] = r.instructions
	}
	if len(r.tools) > 0 {
		body["tools"] = r.tools
	}
	if r.toolChoice != nil {
		body["tool_choice"] = r.toolChoice
	}
	if previousResponseID != "" {
		body["previous_response_id"] = previousResponseID
	}
	if stream {
		body["stream"] = true
	}
	return body
}

// completion converts a final response object, stamping transport metadata.
func (p *OpenAIProvider) completion(resp *openaiResponse, meta messages.ProviderMeta) (*messages.Completion, error) {
	msgs, err := parseOpenAIOutput(resp.Output)
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	meta.ResponseID = resp.ID
	return &messages.Completion{
		Messages:     msgs,
		Usage:        parseOpenAIUsage(model, resp.Usage),
		StopReason:   resp.Status,
		ProviderMeta: &meta,
	}, nil
}
