package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/haasonsaas/agentcore/internal/catalog"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

// CompactionConfig configures automatic history compaction.
type CompactionConfig struct {
	// Enabled turns the service on.
	Enabled bool

	// Auto triggers compaction from the loop when the threshold is
	// crossed. When false, compaction only runs on explicit request.
	Auto bool

	// ThresholdRatio is the fraction of the context limit at which
	// compaction triggers. Default: 0.8.
	ThresholdRatio float64

	// Model optionally overrides the model used for the summarization
	// call.
	Model string

	// SummaryPrompt and RetainPrompt override the built-in instruction
	// sections.
	SummaryPrompt string
	RetainPrompt  string

	// RetainLastTurns is how many trailing user-bounded turns survive
	// compaction verbatim. Default: 1.
	RetainLastTurns int

	// Directives are extra instructions appended to the compaction
	// request.
	Directives []string
}

// DefaultCompactionConfig returns the standard compaction policy.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Enabled:         true,
		Auto:            true,
		ThresholdRatio:  0.8,
		RetainLastTurns: 1,
	}
}

func (c CompactionConfig) sanitize() CompactionConfig {
	if c.ThresholdRatio <= 0 || c.ThresholdRatio > 1 {
		c.ThresholdRatio = 0.8
	}
	if c.RetainLastTurns < 0 {
		c.RetainLastTurns = 1
	}
	return c
}

const (
	defaultSummaryPrompt = "Summarize the conversation so far inside <summary></summary> tags. " +
		"Keep decisions, open questions, file paths, and anything needed to continue the work."
	defaultRetainPrompt = "If specific content must be preserved verbatim (code, identifiers, exact values), " +
		"place it inside <retain></retain> tags."
)

// Compactor rewrites a near-limit conversation into systems + summary +
// recent turns using a dedicated LLM call.
type Compactor struct {
	cfg      CompactionConfig
	provider Provider
	models   *catalog.Registry
	logger   *slog.Logger
}

// NewCompactor builds a compaction service. models may be nil, in which case
// the threshold can never resolve and ShouldCompact always reports false.
func NewCompactor(cfg CompactionConfig, provider Provider, models *catalog.Registry, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compactor{cfg: cfg.sanitize(), provider: provider, models: models, logger: logger}
}

// ShouldCompact reports whether the last usage crosses the compaction
// threshold for its model.
func (c *Compactor) ShouldCompact(usage *messages.Usage) bool {
	if c == nil || !c.cfg.Enabled || !c.cfg.Auto || usage == nil {
		return false
	}
	limit := c.contextLimit(usage.Model)
	if limit <= 0 {
		c.logger.Debug("compaction threshold unresolved: missing context limit", "model", usage.Model)
		return false
	}
	threshold := int(math.Floor(float64(limit) * c.cfg.ThresholdRatio))
	return usage.TotalTokens >= threshold
}

func (c *Compactor) contextLimit(model string) int {
	if c.models == nil || model == "" {
		return 0
	}
	provider := ""
	if c.provider != nil {
		provider = c.provider.Name()
	}
	return c.models.ContextLimit(model, provider)
}

var (
	retainRe  = regexp.MustCompile(`(?s)<retain>(.*?)</retain>`)
	summaryRe = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
)

// Compact runs the summarization call and rebuilds history as system
// messages, retained content, summary, and the last retained turns. Aborts
// propagate; any other failure returns the history unchanged so the turn can
// proceed.
func (c *Compactor) Compact(ctx context.Context, history []messages.Message) ([]messages.Message, error) {
	if c == nil || !c.cfg.Enabled || c.provider == nil || len(history) == 0 {
		return history, nil
	}

	working := make([]messages.Message, len(history))
	copy(working, history)

	// A trailing assistant message that only requests tools has no
	// summarizable content and would leave dangling calls.
	if last := working[len(working)-1]; last.Role == messages.RoleAssistant &&
		last.HasToolCalls() && last.TextContent() == "" {
		working = working[:len(working)-1]
	}

	working = append(working, messages.User(c.instruction()))

	resp, err := c.provider.Invoke(ctx, &Request{
		Messages:   working,
		Tools:      nil,
		ToolChoice: "none",
		Model:      c.cfg.Model,
	})
	if err != nil {
		if IsAbort(err) {
			return nil, err
		}
		c.logger.Warn("compaction call failed; keeping history", "error", err)
		return history, nil
	}

	text := completionText(resp)
	retain, summary := parseCompactionResponse(text)
	if summary == "" {
		c.logger.Warn("compaction produced no summary; keeping history")
		return history, nil
	}

	rebuilt := make([]messages.Message, 0, len(history))
	for _, m := range history {
		if m.Role == messages.RoleSystem {
			rebuilt = append(rebuilt, m)
		}
	}
	if retain != "" {
		rebuilt = append(rebuilt, messages.User(retain))
	}
	rebuilt = append(rebuilt, messages.User(summary))
	rebuilt = append(rebuilt, lastTurns(history, c.cfg.RetainLastTurns)...)
	return rebuilt, nil
}

func (c *Compactor) instruction() string {
	summary := c.cfg.SummaryPrompt
	if summary == "" {
		summary = defaultSummaryPrompt
	}
	retain := c.cfg.RetainPrompt
	if retain == "" {
		retain = defaultRetainPrompt
	}
	parts := []string{summary, retain}
	parts = append(parts, c.cfg.Directives...)
	return strings.Join(parts, "\n\n")
}

// parseCompactionResponse extracts the retain and summary blocks. When
// neither tag is present the whole cleaned text is accepted as the summary.
func parseCompactionResponse(text string) (retain, summary string) {
	if m := retainRe.FindStringSubmatch(text); m != nil {
		retain = strings.TrimSpace(m[1])
	}
	if m := summaryRe.FindStringSubmatch(text); m != nil {
		summary = strings.TrimSpace(m[1])
	}
	if retain == "" && summary == "" {
		summary = strings.TrimSpace(text)
	}
	return retain, summary
}

// lastTurns returns the trailing n user-bounded turns. A turn starts at a
// user message and runs until the next user message.
func lastTurns(history []messages.Message, n int) []messages.Message {
	if n <= 0 {
		return nil
	}
	starts := make([]int, 0, 8)
	for i, m := range history {
		if m.Role == messages.RoleUser {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}
	if n > len(starts) {
		n = len(starts)
	}
	return history[starts[len(starts)-n]:]
}

func completionText(resp *messages.Completion) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, m := range resp.Messages {
		if m.Role != messages.RoleAssistant {
			continue
		}
		if t := m.TextContent(); t != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(t)
		}
	}
	return b.String()
}

// CompactionResult summarizes what a compaction pass did, for logging and
// events.
type CompactionResult struct {
	Before int
	After  int
}

func (r CompactionResult) String() string {
	return fmt.Sprintf("compacted %d messages to %d", r.Before, r.After)
}
