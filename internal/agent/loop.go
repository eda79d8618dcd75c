package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/catalog"
	"github.com/haasonsaas/agentcore/internal/toolstore"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

// Options configures an Agent.
type Options struct {
	// MaxIterations bounds the number of LLM turns per run. Default: 200.
	MaxIterations int

	// ToolChoice is forwarded to the provider: "auto", "required", "none",
	// or a tool name. Empty means provider default.
	ToolChoice string

	// RequireDoneTool keeps the loop running until a tool signals
	// TaskComplete (or the iteration cap); plain text responses do not
	// terminate the run.
	RequireDoneTool bool

	// SystemPrompt is enqueued once at the start of a run.
	SystemPrompt string

	// Model overrides the provider's default model.
	Model string

	// PermissionHook gates tool execution when set.
	PermissionHook PermissionHook

	// Compaction enables the history compaction service. Nil disables it
	// entirely.
	Compaction *CompactionConfig

	// ToolCache configures tool-output truncation and trimming. Nil uses
	// the default policy.
	ToolCache *ToolOutputCacheConfig

	// Store backs the tool-output cache. Nil means outputs are truncated
	// without readable refs.
	Store toolstore.Store

	// Models resolves context limits for compaction and trimming. Nil
	// falls back to the built-in catalog.
	Models *catalog.Registry

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// RunOptions are per-run knobs.
type RunOptions struct {
	// Session receives audit records when set.
	Session RecordSink

	// ForceCompaction runs compaction once and terminates without
	// contacting the model for a regular turn.
	ForceCompaction bool
}

// Agent drives the reason-act loop against one provider, one tool registry,
// and one conversation history.
type Agent struct {
	provider Provider
	tools    *ToolRegistry
	opts     Options

	history   *History
	usage     *UsageAccountant
	compactor *Compactor
	cache     *ToolOutputCache
	models    *catalog.Registry
	logger    *slog.Logger

	sessionKey string
	running    atomic.Bool
}

// New creates an agent. tools may be nil for a toolless agent.
func New(provider Provider, tools *ToolRegistry, opts Options) (*Agent, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if tools == nil {
		tools = NewToolRegistry()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 200
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Models == nil {
		opts.Models = catalog.Default()
	}

	a := &Agent{
		provider:   provider,
		tools:      tools,
		opts:       opts,
		history:    NewHistory(),
		usage:      NewUsageAccountant(),
		models:     opts.Models,
		logger:     opts.Logger,
		sessionKey: uuid.NewString(),
	}
	if opts.Compaction != nil {
		a.compactor = NewCompactor(*opts.Compaction, provider, a.models, opts.Logger)
	}
	cacheCfg := DefaultToolOutputCacheConfig()
	if opts.ToolCache != nil {
		cacheCfg = *opts.ToolCache
	}
	a.cache = NewToolOutputCache(cacheCfg, opts.Store, opts.Logger)
	return a, nil
}

// History exposes the conversation for inspection.
func (a *Agent) History() *History { return a.history }

// Usage exposes the usage accountant.
func (a *Agent) Usage() *UsageAccountant { return a.usage }

// Run executes one turn from plain text and returns the final event content.
func (a *Agent) Run(ctx context.Context, text string) (string, error) {
	return a.RunParts(ctx, []messages.ContentPart{messages.Text(text)}, nil)
}

// RunParts executes one turn from content parts, draining the stream.
func (a *Agent) RunParts(ctx context.Context, parts []messages.ContentPart, opts *RunOptions) (string, error) {
	events, err := a.RunStream(ctx, parts, opts)
	if err != nil {
		return "", err
	}
	final := ""
	for ev := range events {
		if ev.Err != nil {
			return "", ev.Err
		}
		if ev.Type == messages.EventFinal {
			final = ev.Content
		}
	}
	return final, nil
}

// RunStream executes one turn and returns the ordered event stream. The
// channel is closed when the run ends; a run that fails delivers the error as
// the last event's Err.
func (a *Agent) RunStream(ctx context.Context, parts []messages.ContentPart, opts *RunOptions) (<-chan *messages.AgentEvent, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	if opts == nil {
		opts = &RunOptions{}
	}
	ch := make(chan *messages.AgentEvent, 16)
	go func() {
		defer a.running.Store(false)
		defer close(ch)
		a.run(ctx, parts, opts, ch)
	}()
	return ch, nil
}

type runState struct {
	ctx  context.Context
	ch   chan<- *messages.AgentEvent
	opts *RunOptions

	runID string
	seq   int
	tc    *ToolContext
}

func (s *runState) emit(ev *messages.AgentEvent) {
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

func (s *runState) fail(err error) {
	s.emit(&messages.AgentEvent{Err: err})
}

func (s *runState) record(recType string, payload any) {
	if s.opts.Session == nil {
		return
	}
	s.seq++
	s.opts.Session.Append(Record{
		Type:    recType,
		RunID:   s.runID,
		Seq:     s.seq,
		Time:    time.Now(),
		Payload: payload,
	})
}

func (a *Agent) run(ctx context.Context, parts []messages.ContentPart, opts *RunOptions, ch chan<- *messages.AgentEvent) {
	s := &runState{
		ctx:   ctx,
		ch:    ch,
		opts:  opts,
		runID: uuid.NewString(),
		tc:    NewToolContext(a.logger),
	}

	if opts.ForceCompaction {
		if err := a.compact(s); err != nil {
			s.fail(err)
			return
		}
		s.emit(&messages.AgentEvent{Type: messages.EventFinal, Content: "Compaction run completed."})
		return
	}

	a.history.EnqueueSystem(a.opts.SystemPrompt)
	a.history.EnqueueUser(parts)

	for iter := 0; iter < a.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			s.fail(err)
			return
		}
		a.cache.TrimHistory(a.history.Snapshot(), a.contextWindow())

		input := a.history.PrepareInput()
		defs := a.tools.Definitions()
		s.record(RecordLLMRequest, map[string]any{"messages": len(input), "tools": len(defs)})

		resp, err := a.provider.Invoke(ctx, &Request{
			Messages:   input,
			Tools:      defs,
			ToolChoice: a.opts.ToolChoice,
			Model:      a.opts.Model,
			SessionKey: a.sessionKey,
		})
		if err != nil {
			s.fail(err)
			return
		}
		a.usage.Record(resp.Usage)
		a.history.Commit(resp.Messages)
		s.record(RecordLLMResponse, resp)

		var (
			reasoningTexts []string
			assistantTexts []string
			toolCalls      []messages.ToolCall
		)
		for _, m := range resp.Messages {
			switch m.Role {
			case messages.RoleReasoning:
				if t := m.TextContent(); t != "" {
					reasoningTexts = append(reasoningTexts, t)
				}
			case messages.RoleAssistant:
				if t := m.TextContent(); t != "" {
					assistantTexts = append(assistantTexts, t)
				}
				toolCalls = append(toolCalls, m.ToolCalls...)
			}
		}

		for _, t := range reasoningTexts {
			s.emit(&messages.AgentEvent{Type: messages.EventReasoning, Content: t})
		}
		emitHostedLifecycles(s, resp.Messages)

		if len(toolCalls) == 0 {
			if !a.opts.RequireDoneTool {
				// The final event carries the same text, so separate
				// text events would duplicate it.
				if err := a.compactIfDue(s); err != nil {
					s.fail(err)
					return
				}
				s.emit(&messages.AgentEvent{Type: messages.EventFinal, Content: strings.Join(assistantTexts, "\n")})
				return
			}
			for _, t := range assistantTexts {
				s.emit(&messages.AgentEvent{Type: messages.EventText, Content: t})
			}
			if err := a.compactIfDue(s); err != nil {
				s.fail(err)
				return
			}
			continue
		}

		for _, t := range assistantTexts {
			s.emit(&messages.AgentEvent{Type: messages.EventText, Content: t})
		}

		for _, call := range toolCalls {
			done, finalMsg, err := a.executeToolCall(s, call)
			if err != nil {
				s.fail(err)
				return
			}
			if done {
				if finalMsg == "" {
					finalMsg = strings.Join(assistantTexts, "\n")
				}
				s.emit(&messages.AgentEvent{Type: messages.EventFinal, Content: finalMsg})
				return
			}
		}

		if err := a.compactIfDue(s); err != nil {
			s.fail(err)
			return
		}
	}

	a.finishAtCap(s)
}

// executeToolCall runs one tool call end to end, feeding the result into
// history and emitting the step lifecycle. It returns done=true when the turn
// must end (TaskComplete or a stop-turn denial), with the final message to
// emit.
func (a *Agent) executeToolCall(s *runState, call messages.ToolCall) (done bool, finalMsg string, err error) {
	name := call.Function.Name
	s.emit(&messages.AgentEvent{Type: messages.EventStepStart, StepID: call.ID, ToolName: name})
	s.emit(&messages.AgentEvent{Type: messages.EventToolCall, StepID: call.ID, ToolName: name, ToolCall: &call})

	finish := func(content string, isError bool) {
		msg := messages.ToolResult(call.ID, name, content, isError)
		a.cache.ProcessToolMessage(s.ctx, &msg)
		a.history.EnqueueToolResult(msg)
		s.record(RecordToolOutput, msg)
		s.emit(&messages.AgentEvent{
			Type: messages.EventToolResult, StepID: call.ID, ToolName: name,
			Result: msg.TextContent(), IsError: isError,
		})
		status := messages.StepStatusOK
		if isError {
			status = messages.StepStatusError
		}
		s.emit(&messages.AgentEvent{Type: messages.EventStepComplete, StepID: call.ID, ToolName: name, Status: status})
	}

	tool, ok := a.tools.Get(name)
	if !ok {
		finish(fmt.Sprintf("Error: Unknown tool '%s'", name), true)
		return false, "", nil
	}

	// Invalid JSON is wrapped rather than rejected; the tool decides
	// validity of the raw text itself.
	rawArgs := json.RawMessage(call.Function.Arguments)
	var parsed any
	if unmarshalErr := json.Unmarshal(rawArgs, &parsed); unmarshalErr != nil {
		wrapped, _ := json.Marshal(map[string]string{"_raw": call.Function.Arguments})
		rawArgs = wrapped
		parsed = nil
	}

	if a.opts.PermissionHook != nil {
		decision, hookErr := a.opts.PermissionHook(s.ctx, call, rawArgs, s.tc)
		if hookErr != nil {
			if IsAbort(hookErr) {
				return false, "", hookErr
			}
			decision = PermissionDecision{Allow: false, Reason: hookErr.Error()}
		}
		if !decision.Allow {
			finish("Permission denied: "+decision.Reason, true)
			if decision.StopTurn {
				return true, stopTurnFinal, nil
			}
			return false, "", nil
		}
	}

	if parsed != nil {
		if valErr := a.tools.ValidateArgs(name, parsed); valErr != nil {
			finish("Error: "+valErr.Error(), true)
			return false, "", nil
		}
	}

	out, execErr := tool.Execute(s.ctx, rawArgs, s.tc)
	if execErr != nil {
		var taskComplete *TaskComplete
		if errors.As(execErr, &taskComplete) {
			finish("Task complete", false)
			return true, taskComplete.FinalMessage, nil
		}
		if IsAbort(execErr) {
			return false, "", execErr
		}
		finish("Error: "+execErr.Error(), true)
		return false, "", nil
	}

	msg := messages.Message{
		Role:       messages.RoleTool,
		ToolCallID: call.ID,
		ToolName:   name,
		Content:    out.Content(),
		IsError:    out != nil && out.IsError,
	}
	a.cache.ProcessToolMessage(s.ctx, &msg)
	a.history.EnqueueToolResult(msg)
	s.record(RecordToolOutput, msg)
	s.emit(&messages.AgentEvent{
		Type: messages.EventToolResult, StepID: call.ID, ToolName: name,
		Result: msg.TextContent(), IsError: msg.IsError,
	})
	status := messages.StepStatusOK
	if msg.IsError {
		status = messages.StepStatusError
	}
	s.emit(&messages.AgentEvent{Type: messages.EventStepComplete, StepID: call.ID, ToolName: name, Status: status})
	return false, "", nil
}

// compactIfDue runs compaction when the last usage crosses the threshold.
func (a *Agent) compactIfDue(s *runState) error {
	if a.compactor == nil || !a.compactor.ShouldCompact(a.usage.Last()) {
		return nil
	}
	return a.compact(s)
}

// compact runs one compaction pass with its surrounding events.
func (a *Agent) compact(s *runState) error {
	if a.compactor == nil {
		return nil
	}
	before := a.history.Len()
	s.emit(&messages.AgentEvent{Type: messages.EventCompactionStart})
	rebuilt, err := a.compactor.Compact(s.ctx, a.history.PrepareInput())
	if err != nil {
		return err
	}
	a.history.Replace(rebuilt)
	result := CompactionResult{Before: before, After: a.history.Len()}
	a.logger.Info("history compacted", "before", result.Before, "after", result.After)
	s.emit(&messages.AgentEvent{Type: messages.EventCompactionComplete, Content: result.String()})
	return nil
}

const maxIterationsPrefix = "[Max Iterations Reached]\n\n"

// finishAtCap makes one last toolless call asking for a summary of the
// unfinished work.
func (a *Agent) finishAtCap(s *runState) {
	input := a.history.PrepareInput()
	input = append(input, messages.User(
		"The maximum number of turns was reached before the task finished. "+
			"Summarize the current state of the task and what remains to be done."))

	resp, err := a.provider.Invoke(s.ctx, &Request{
		Messages:   input,
		Tools:      nil,
		ToolChoice: "none",
		Model:      a.opts.Model,
		SessionKey: a.sessionKey,
	})
	if err != nil {
		if IsAbort(err) {
			s.fail(err)
			return
		}
		a.logger.Warn("iteration-cap summary failed", "error", err)
		s.emit(&messages.AgentEvent{
			Type:    messages.EventFinal,
			Content: maxIterationsPrefix + "Summary unavailable due to an internal error.",
		})
		return
	}
	a.usage.Record(resp.Usage)
	s.emit(&messages.AgentEvent{
		Type:    messages.EventFinal,
		Content: maxIterationsPrefix + completionText(resp),
	})
}

// contextWindow resolves the active model's context limit, or 0 when unknown.
func (a *Agent) contextWindow() int {
	model := a.opts.Model
	if model == "" {
		model = a.provider.DefaultModel()
	}
	return a.models.ContextLimit(model, a.provider.Name())
}

// hostedCallItem is the subset of a provider-native web_search_call raw item
// the loop needs for lifecycle events.
type hostedCallItem struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Status string `json:"status"`
	Action struct {
		Type  string `json:"type"`
		Query string `json:"query"`
	} `json:"action"`
}

// emitHostedLifecycles derives step lifecycles from web_search_call raw items
// carried by reasoning messages. Duplicate ids within one turn collapse to a
// single lifecycle with the latest status, so in-progress followed by
// completed does not double-emit.
func emitHostedLifecycles(s *runState, msgs []messages.Message) {
	var order []string
	latest := make(map[string]hostedCallItem)
	for _, m := range msgs {
		if m.Role != messages.RoleReasoning || len(m.RawItem) == 0 {
			continue
		}
		var item hostedCallItem
		if err := json.Unmarshal(m.RawItem, &item); err != nil || item.Type != "web_search_call" || item.ID == "" {
			continue
		}
		if _, seen := latest[item.ID]; !seen {
			order = append(order, item.ID)
		}
		latest[item.ID] = item
	}

	for _, id := range order {
		item := latest[id]
		status := messages.StepStatusCompleted
		if item.Status != "" && item.Status != "completed" {
			status = messages.StepStatusInProgress
		}
		summary := item.Action.Query
		if summary == "" {
			summary = item.Action.Type
		}
		s.emit(&messages.AgentEvent{Type: messages.EventStepStart, StepID: id, ToolName: "web_search"})
		s.emit(&messages.AgentEvent{Type: messages.EventToolCall, StepID: id, ToolName: "web_search", Content: summary})
		s.emit(&messages.AgentEvent{Type: messages.EventToolResult, StepID: id, ToolName: "web_search", Result: item.Status})
		s.emit(&messages.AgentEvent{Type: messages.EventStepComplete, StepID: id, ToolName: "web_search", Status: status})
	}
}
