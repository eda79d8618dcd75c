package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

func newHTTPTestProvider(t *testing.T, rt rtFunc) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:         "test-key",
		RetryBaseDelay: time.Millisecond,
		HTTPClient:     &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	return p
}

func okResponse(frame []byte) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(sseBody(frame))),
		Header:     http.Header{},
	}
}

func TestOpenAIHTTP_RequestShape(t *testing.T) {
	var captured map[string]any
	rt := rtFunc(func(r *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("request body: %v", err)
		}
		if r.URL.Path != "/responses" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		return okResponse(completedFrame("r1", "hello")), nil
	})
	p := newHTTPTestProvider(t, rt)

	req := &agent.Request{
		Messages: []messages.Message{
			{Role: messages.RoleSystem, Content: []messages.ContentPart{messages.Text("be brief")}},
			{Role: messages.RoleSystem, Content: []messages.ContentPart{messages.Text("be kind")}},
			{Role: messages.RoleUser, Content: []messages.ContentPart{messages.Text("hi")}},
		},
		Tools: []messages.ToolDefinition{
			{Type: messages.ToolDefHostedSearch, Name: "web_search"},
		},
	}
	c, err := p.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if captured["model"] != "gpt-5" || captured["store"] != false || captured["stream"] != true {
		t.Errorf("body basics = %v", captured)
	}
	if captured["instructions"] != "be brief\n\nbe kind" {
		t.Errorf("instructions = %v", captured["instructions"])
	}
	include := captured["include"].([]any)
	joined := ""
	for _, i := range include {
		joined += i.(string) + ","
	}
	for _, want := range []string{"reasoning.encrypted_content", "web_search_call.action.sources", "web_search_call.results"} {
		if !strings.Contains(joined, want) {
			t.Errorf("include missing %q: %v", want, include)
		}
	}
	reasoning := captured["reasoning"].(map[string]any)
	if reasoning["effort"] != "medium" || reasoning["summary"] != "auto" {
		t.Errorf("reasoning = %v", reasoning)
	}

	if c.ProviderMeta.Transport != "http" || c.ProviderMeta.ResponseID != "r1" {
		t.Errorf("meta = %+v", c.ProviderMeta)
	}
	if len(c.Messages) != 1 || c.Messages[0].TextContent() != "hello" {
		t.Errorf("messages = %+v", c.Messages)
	}
}

func TestNewOpenAIProvider_RetryDelayDefaults(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	if p.cfg.RetryBaseDelay != 500*time.Millisecond || p.cfg.RetryMaxDelay != 30*time.Second {
		t.Errorf("retry delays = %v/%v", p.cfg.RetryBaseDelay, p.cfg.RetryMaxDelay)
	}

	p, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k", RetryMaxDelay: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	if p.cfg.RetryMaxDelay != 5*time.Second {
		t.Errorf("explicit retry max delay = %v", p.cfg.RetryMaxDelay)
	}
}

func TestOpenAIHTTP_RetriesOn429(t *testing.T) {
	calls := 0
	rt := rtFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return &http.Response{
				StatusCode: http.StatusTooManyRequests,
				Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`)),
				Header:     http.Header{},
			}, nil
		}
		return okResponse(completedFrame("r2", "eventually")), nil
	})
	p := newHTTPTestProvider(t, rt)

	c, err := p.Invoke(context.Background(), userRequest("", "hi"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want a retry after 429", calls)
	}
	if c.Messages[0].TextContent() != "eventually" {
		t.Errorf("text = %q", c.Messages[0].TextContent())
	}
}

func TestOpenAIHTTP_InvalidRequestDoesNotRetry(t *testing.T) {
	calls := 0
	rt := rtFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"bad schema","type":"invalid_request_error"}}`)),
			Header:     http.Header{},
		}, nil
	})
	p := newHTTPTestProvider(t, rt)

	_, err := p.Invoke(context.Background(), userRequest("", "hi"))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, 400 must not retry", calls)
	}
	pe, ok := GetProviderError(err)
	if !ok || pe.Reason != FailInvalidRequest || pe.Status != 400 {
		t.Errorf("error = %+v", pe)
	}
	if !strings.Contains(pe.Message, "bad schema") {
		t.Errorf("message = %q", pe.Message)
	}
}

func TestOpenAIHTTP_ResponseFailedFrame(t *testing.T) {
	rt := rtFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(failedFrame("server_error")), nil
	})
	p := newHTTPTestProvider(t, rt)
	p.cfg.MaxRetries = 1

	_, err := p.Invoke(context.Background(), userRequest("", "hi"))
	if err == nil {
		t.Fatal("expected error from response.failed")
	}
	if !strings.Contains(err.Error(), "server_error") {
		t.Errorf("error = %v", err)
	}
}
