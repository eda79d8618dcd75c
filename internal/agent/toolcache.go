package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/agentcore/internal/toolstore"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

// Names of the built-in read-back tools. Their own outputs bypass immediate
// truncation so a read-back is never re-truncated into uselessness.
const (
	ToolOutputCacheName     = "tool_output_cache"
	ToolOutputCacheGrepName = "tool_output_cache_grep"
)

// ToolOutputCacheConfig controls per-message truncation and whole-history
// trimming of tool outputs.
type ToolOutputCacheConfig struct {
	// Enabled turns the cache on. Disabled means tool messages pass through
	// untouched.
	Enabled bool

	// MaxMessageBytes is the per-message size cap after which output is
	// truncated. Defaults to 50 KiB.
	MaxMessageBytes int

	// MaxLineLength clips individual lines before the byte cap is applied.
	// Zero means no per-line clipping.
	MaxLineLength int

	// ContextBudgetTokens is an explicit token budget for whole-history
	// trimming. Zero derives the budget from the model's context window.
	ContextBudgetTokens int

	// TotalBudgetTrim enables whole-history trimming before each LLM call.
	TotalBudgetTrim bool
}

// DefaultToolOutputCacheConfig returns the standard cache policy.
func DefaultToolOutputCacheConfig() ToolOutputCacheConfig {
	return ToolOutputCacheConfig{
		Enabled:         true,
		MaxMessageBytes: 50 * 1024,
		TotalBudgetTrim: true,
	}
}

func (c ToolOutputCacheConfig) sanitize() ToolOutputCacheConfig {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 50 * 1024
	}
	if c.MaxLineLength < 0 {
		c.MaxLineLength = 0
	}
	if c.ContextBudgetTokens < 0 {
		c.ContextBudgetTokens = 0
	}
	return c
}

// Trim budget bounds when derived from the context window.
const (
	trimBudgetRatio = 0.25
	trimBudgetMin   = 20_000
	trimBudgetMax   = 100_000
)

// ToolOutputCache persists full tool outputs to a store and keeps the
// conversation's tool messages within byte and token budgets.
type ToolOutputCache struct {
	cfg    ToolOutputCacheConfig
	store  toolstore.Store
	logger *slog.Logger
}

// NewToolOutputCache builds a cache service. store may be nil, in which case
// messages are truncated without a readable ref.
func NewToolOutputCache(cfg ToolOutputCacheConfig, store toolstore.Store, logger *slog.Logger) *ToolOutputCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ToolOutputCache{cfg: cfg.sanitize(), store: store, logger: logger}
}

// Store exposes the backing store for the read-back tools.
func (c *ToolOutputCache) Store() toolstore.Store { return c.store }

// ProcessToolMessage persists the full output and truncates the message in
// place when it exceeds the per-message cap. Save failures are logged and the
// message proceeds without a ref.
func (c *ToolOutputCache) ProcessToolMessage(ctx context.Context, msg *messages.Message) {
	if !c.cfg.Enabled || msg == nil || msg.Role != messages.RoleTool {
		return
	}
	if msg.ToolName == ToolOutputCacheName || msg.ToolName == ToolOutputCacheGrepName {
		return
	}
	content := msg.TextContent()

	if c.store != nil {
		ref, err := c.store.Save(ctx, toolstore.Record{
			ToolCallID: msg.ToolCallID,
			ToolName:   msg.ToolName,
			Content:    content,
			IsError:    msg.IsError,
		})
		if err != nil {
			c.logger.Warn("tool output save failed", "tool", msg.ToolName, "error", err)
		} else {
			msg.OutputRef = ref.ID
		}
	}

	truncated, cut := truncateOutput(content, c.cfg.MaxMessageBytes, c.cfg.MaxLineLength)
	if !cut {
		return
	}
	if msg.OutputRef != "" {
		truncated += fmt.Sprintf("\n\n[tool output truncated; ref=%s]", msg.OutputRef)
	} else {
		truncated += "\n\n[tool output truncated]"
	}
	msg.SetText(truncated)
}

// TrimHistory replaces whole tool messages with trim placeholders, oldest
// first, until the approximate token total fits the budget. Already-trimmed
// messages and messages without a ref are left alone, which makes the pass
// idempotent.
func (c *ToolOutputCache) TrimHistory(msgs []messages.Message, contextWindow int) {
	if !c.cfg.Enabled || !c.cfg.TotalBudgetTrim {
		return
	}
	budget := c.trimBudget(contextWindow)

	total := 0
	for i := range msgs {
		if msgs[i].Role == messages.RoleTool {
			total += approxTokens(msgs[i].TextContent())
		}
	}
	if total <= budget {
		return
	}

	for i := range msgs {
		m := &msgs[i]
		if m.Role != messages.RoleTool || m.Trimmed || m.OutputRef == "" {
			continue
		}
		before := approxTokens(m.TextContent())
		m.SetText(fmt.Sprintf("[tool output trimmed; ref=%s]", m.OutputRef))
		m.Trimmed = true
		total += approxTokens(m.TextContent()) - before
		if total <= budget {
			return
		}
	}
}

// trimBudget resolves the token budget: an explicit budget wins, then a
// window-derived budget, then a conservative floor when the window is
// unknown.
func (c *ToolOutputCache) trimBudget(contextWindow int) int {
	if c.cfg.ContextBudgetTokens > 0 {
		return c.cfg.ContextBudgetTokens
	}
	if contextWindow <= 0 {
		return trimBudgetMin
	}
	budget := int(float64(contextWindow) * trimBudgetRatio)
	if budget < trimBudgetMin {
		return trimBudgetMin
	}
	if budget > trimBudgetMax {
		return trimBudgetMax
	}
	return budget
}

// approxTokens estimates tokens as bytes/4.
func approxTokens(s string) int { return len(s) / 4 }

// truncateOutput clips overlong lines and then keeps whole lines until the
// byte cap would be exceeded. Content of exactly maxBytes passes through
// untouched.
func truncateOutput(content string, maxBytes, maxLineLen int) (string, bool) {
	cut := false
	lines := strings.Split(content, "\n")
	if maxLineLen > 0 {
		for i, line := range lines {
			if len(line) > maxLineLen {
				lines[i] = cutAtRune(line, maxLineLen)
				cut = true
			}
		}
	}
	if !cut && len(content) <= maxBytes {
		return content, false
	}

	var b strings.Builder
	size := 0
	for i, line := range lines {
		add := len(line)
		if i > 0 {
			add++ // newline
		}
		if size+add > maxBytes {
			if i == 0 {
				// A single line larger than the cap is clipped rather
				// than dropped wholesale.
				b.WriteString(cutAtRune(line, maxBytes))
			}
			cut = true
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		size += add
	}
	return b.String(), cut
}

// cutAtRune clips s to at most max bytes, backing off so a multi-byte rune
// is never split.
func cutAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
