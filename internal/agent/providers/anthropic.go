package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/retry"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

// AnthropicConfig configures the Anthropic transport.
type AnthropicConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// DefaultModel is used when a request carries no model.
	// Default: claude-sonnet-4-20250514.
	DefaultModel string

	// MaxTokens caps generation length. Default: 8192.
	MaxTokens int

	// MaxRetries bounds transport retries on retryable failures.
	// Default: 3.
	MaxRetries int

	// RetryDelay is the base backoff delay. Default: 1s.
	RetryDelay time.Duration

	// RetryMaxDelay caps the backoff delay. Default: 30s.
	RetryMaxDelay time.Duration

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// AnthropicProvider implements agent.Provider on Anthropic's Messages API.
// Responses are streamed and accumulated into the final message; the agent
// loop consumes completions, not deltas.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
	logger *slog.Logger
}

// NewAnthropicProvider builds the transport.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Name implements agent.Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// DefaultModel implements agent.Provider.
func (p *AnthropicProvider) DefaultModel() string { return p.cfg.DefaultModel }

// Invoke implements agent.Provider.
func (p *AnthropicProvider) Invoke(ctx context.Context, req *agent.Request) (*messages.Completion, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	params, err := p.buildParams(model, req)
	if err != nil {
		return nil, err
	}

	cfg := retry.Exponential(p.cfg.MaxRetries, p.cfg.RetryDelay, p.cfg.RetryMaxDelay)
	completion, result := retry.DoWithValue(ctx, cfg, func() (*messages.Completion, error) {
		c, streamErr := p.streamOnce(ctx, model, params)
		if streamErr != nil && !IsRetryable(streamErr) {
			return nil, retry.Permanent(streamErr)
		}
		return c, streamErr
	})
	if result.Err != nil {
		var perm *retry.PermanentError
		if errors.As(result.Err, &perm) {
			return nil, perm.Err
		}
		return nil, result.Err
	}
	return completion, nil
}

func (p *AnthropicProvider) buildParams(model string, req *agent.Request) (anthropic.MessageNewParams, error) {
	msgs, err := anthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgs,
		MaxTokens: int64(p.cfg.MaxTokens),
	}
	if system := consolidateSystem(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := anthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	if choice := anthropicToolChoice(req.ToolChoice); choice != nil {
		params.ToolChoice = *choice
	}
	return params, nil
}

func (p *AnthropicProvider) streamOnce(ctx context.Context, model string, params anthropic.MessageNewParams) (*messages.Completion, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	var acc anthropic.Message
	for stream.Next() {
		if err := acc.Accumulate(stream.Current()); err != nil {
			return nil, p.wrapError(err, model)
		}
	}
	if err := stream.Err(); err != nil {
		if agent.IsAbort(err) {
			return nil, err
		}
		return nil, p.wrapError(err, model)
	}

	return &messages.Completion{
		Messages:   parseAnthropicMessage(&acc),
		Usage:      normalizeAnthropicUsage(string(acc.Model), acc.Usage),
		StopReason: string(acc.StopReason),
		ProviderMeta: &messages.ProviderMeta{
			ResponseID: acc.ID,
			Transport:  "http",
		},
	}, nil
}

func anthropicTools(defs []messages.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, def := range defs {
		if def.IsHostedSearch() {
			// Provider-hosted search is an OpenAI Responses feature;
			// the Anthropic path advertises function tools only.
			continue
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", def.Name, err)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if tool.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool definition for %s", def.Name)
		}
		tool.OfTool.Description = anthropic.String(def.Description)
		out = append(out, tool)
	}
	return out, nil
}

func anthropicToolChoice(choice string) *anthropic.ToolChoiceUnionParam {
	switch choice {
	case "":
		return nil
	case "auto":
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	case "required":
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "none":
		return &anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	default:
		return &anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice}}
	}
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := (&ProviderError{
			Provider: "anthropic",
			Model:    model,
			Cause:    err,
			Reason:   FailUnknown,
		}).WithStatus(apiErr.StatusCode)

		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				if payload.Error.Message != "" {
					pe = pe.WithMessage(payload.Error.Message)
				}
				if payload.Error.Type != "" {
					pe = pe.WithCode(payload.Error.Type)
				}
				if payload.RequestID != "" {
					pe = pe.WithRequestID(payload.RequestID)
				}
			}
		}
		if pe.Message == "" {
			pe.Message = "anthropic request failed"
		}
		return pe
	}

	return NewProviderError("anthropic", model, err)
}
