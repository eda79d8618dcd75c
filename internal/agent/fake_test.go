package agent

import (
	"context"
	"errors"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// fakeProvider replays a scripted sequence of completions, recording every
// request it receives.
type fakeProvider struct {
	name     string
	model    string
	script   []fakeStep
	requests []*Request
}

type fakeStep struct {
	resp *messages.Completion
	err  error
}

func (p *fakeProvider) Invoke(_ context.Context, req *Request) (*messages.Completion, error) {
	p.requests = append(p.requests, req)
	if len(p.script) == 0 {
		return nil, errors.New("fake provider: script exhausted")
	}
	step := p.script[0]
	p.script = p.script[1:]
	return step.resp, step.err
}

func (p *fakeProvider) Name() string {
	if p.name == "" {
		return "fake"
	}
	return p.name
}

func (p *fakeProvider) DefaultModel() string {
	if p.model == "" {
		return "fake-model"
	}
	return p.model
}

// textCompletion builds a completion with a single assistant text message.
func textCompletion(text string, usage *messages.Usage) *messages.Completion {
	return &messages.Completion{
		Messages:   []messages.Message{messages.Assistant(text)},
		Usage:      usage,
		StopReason: "stop",
	}
}

// toolCompletion builds a completion whose assistant message requests the
// given tool calls.
func toolCompletion(calls ...messages.ToolCall) *messages.Completion {
	return &messages.Completion{
		Messages: []messages.Message{{
			Role:      messages.RoleAssistant,
			ToolCalls: calls,
		}},
		StopReason: "tool_calls",
	}
}
