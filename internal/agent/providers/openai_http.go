package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/retry"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

// invokeHTTP runs the stateless streaming path. meta carries transport
// annotations set by a WebSocket fallback; nil means a direct HTTP call.
func (p *OpenAIProvider) invokeHTTP(ctx context.Context, r *preparedRequest, meta *messages.ProviderMeta) (*messages.Completion, error) {
	base := messages.ProviderMeta{Transport: "http"}
	if meta != nil {
		base = *meta
		base.Transport = "http"
	}

	cfg := retry.Exponential(p.cfg.MaxRetries, p.cfg.RetryBaseDelay, p.cfg.RetryMaxDelay)
	resp, result := retry.DoWithValue(ctx, cfg, func() (*openaiResponse, error) {
		out, err := p.streamResponse(ctx, r)
		if err != nil && !p.retryableTransport(err) {
			return nil, retry.Permanent(err)
		}
		return out, err
	})
	if result.Err != nil {
		var perm *retry.PermanentError
		if errors.As(result.Err, &perm) {
			return nil, perm.Err
		}
		return nil, result.Err
	}
	return p.completion(resp, base)
}

// streamResponse performs one POST /responses call and reads server-sent
// events until the terminal frame.
func (p *OpenAIProvider) streamResponse(ctx context.Context, r *preparedRequest) (*openaiResponse, error) {
	payload, err := json.Marshal(r.body(r.items, "", true))
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range p.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.httpc.Do(httpReq)
	if err != nil {
		if agent.IsAbort(err) {
			return nil, err
		}
		return nil, NewProviderError("openai", r.model, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.httpError(httpResp, r.model)
	}

	resp, err := readSSE(httpResp.Body)
	if err != nil {
		if agent.IsAbort(err) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
		return nil, p.wrapOpenAIError(err, r.model)
	}
	return resp, nil
}

// sseEvent is the envelope of a Responses streaming frame. Delta frames are
// skipped; only the terminal response object is consumed.
type sseEvent struct {
	Type     string          `json:"type"`
	Response *openaiResponse `json:"response"`
	Error    *openaiError    `json:"error"`
}

func readSSE(body io.Reader) (*openaiResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "response.completed":
			if ev.Response == nil {
				return nil, errors.New("response.completed frame without response")
			}
			return ev.Response, nil
		case "response.failed", "response.incomplete":
			return nil, sseFailure(ev)
		case "error":
			if ev.Error != nil {
				return nil, fmt.Errorf("%s: %s", ev.Error.Code, ev.Error.Message)
			}
			return nil, errors.New("stream error frame")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream ended before response.completed")
}

func sseFailure(ev sseEvent) error {
	if ev.Response != nil && ev.Response.Error != nil {
		return fmt.Errorf("%s: %s", ev.Response.Error.Code, ev.Response.Error.Message)
	}
	if ev.Error != nil {
		return fmt.Errorf("%s: %s", ev.Error.Code, ev.Error.Message)
	}
	return fmt.Errorf("response %s", ev.Type)
}

type openaiErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) httpError(resp *http.Response, model string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	pe := (&ProviderError{
		Provider: "openai",
		Model:    model,
		Reason:   FailUnknown,
	}).WithStatus(resp.StatusCode)

	var payload openaiErrorPayload
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		pe = pe.WithMessage(payload.Error.Message)
		if payload.Error.Code != "" {
			pe = pe.WithCode(payload.Error.Code)
		} else if payload.Error.Type != "" {
			pe = pe.WithCode(payload.Error.Type)
		}
	} else if len(body) > 0 {
		pe = pe.WithMessage(string(body))
	}
	if id := resp.Header.Get("X-Request-Id"); id != "" {
		pe = pe.WithRequestID(id)
	}
	return pe
}

// retryableTransport prefers the concrete HTTP status over the message
// classification when one is present.
func (p *OpenAIProvider) retryableTransport(err error) bool {
	pe, ok := GetProviderError(err)
	if !ok || pe.Status == 0 {
		return IsRetryable(err)
	}
	if len(p.cfg.RetryableStatusCodes) > 0 {
		for _, code := range p.cfg.RetryableStatusCodes {
			if pe.Status == code {
				return true
			}
		}
		return false
	}
	return retry.RetryableStatus(pe.Status)
}

func (p *OpenAIProvider) wrapOpenAIError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}
	return NewProviderError("openai", model, err)
}
