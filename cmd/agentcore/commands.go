package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/agent/providers"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/toolstore"
	"github.com/haasonsaas/agentcore/pkg/messages"
)

func newRootCmd() *cobra.Command {
	var (
		configPath      string
		model           string
		system          string
		recordPath      string
		forceCompaction bool
	)

	cmd := &cobra.Command{
		Use:   "agentcore [flags] <prompt...>",
		Short: "Run one agent turn and print the event stream",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !forceCompaction {
				return fmt.Errorf("a prompt is required")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model = model
			}
			if system != "" {
				cfg.SystemPrompt = system
			}
			return runTurn(cmd, cfg, strings.Join(args, " "), recordPath, forceCompaction)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default: built-in defaults)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().StringVarP(&system, "system", "s", "", "system prompt override")
	cmd.Flags().StringVar(&recordPath, "record", "", "write run records as JSONL to this file")
	cmd.Flags().BoolVar(&forceCompaction, "force-compaction", false, "compact the history and exit")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("AGENTCORE_CONFIG"); env != "" {
			path = env
		} else {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func runTurn(cmd *cobra.Command, cfg *config.Config, prompt, recordPath string, forceCompaction bool) error {
	logger := newLogger(cfg.Logging)

	store, err := newStore(cfg.Store)
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	tools := agent.NewToolRegistry()
	if err := tools.Register(agent.NewCacheReadTool(store)); err != nil {
		return err
	}
	if err := tools.Register(agent.NewCacheGrepTool(store)); err != nil {
		return err
	}

	a, err := agent.New(provider, tools, agentOptions(cfg, store, logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := &agent.RunOptions{ForceCompaction: forceCompaction}
	var sink *agent.MemorySink
	if recordPath != "" {
		sink = agent.NewMemorySink()
		runOpts.Session = sink
	}

	var parts []messages.ContentPart
	if prompt != "" {
		parts = []messages.ContentPart{messages.Text(prompt)}
	}
	events, err := a.RunStream(ctx, parts, runOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var runErr error
	for ev := range events {
		if ev.Err != nil {
			runErr = ev.Err
			continue
		}
		printEvent(out, ev)
	}
	if sink != nil {
		if err := writeRecords(recordPath, sink.Records()); err != nil {
			return err
		}
	}
	return runErr
}

func printEvent(out io.Writer, ev *messages.AgentEvent) {
	switch ev.Type {
	case messages.EventReasoning:
		fmt.Fprintf(out, "· %s\n", ev.Content)
	case messages.EventToolCall:
		args := ev.Content
		if ev.ToolCall != nil {
			args = ev.ToolCall.Function.Arguments
		}
		fmt.Fprintf(out, "→ %s %s\n", ev.ToolName, args)
	case messages.EventToolResult:
		fmt.Fprintf(out, "← %s\n", ev.Result)
	case messages.EventCompactionStart:
		fmt.Fprintln(out, "compacting history...")
	case messages.EventFinal:
		fmt.Fprintln(out, ev.Content)
	}
}

func agentOptions(cfg *config.Config, store toolstore.Store, logger *slog.Logger) agent.Options {
	opts := agent.Options{
		MaxIterations:   cfg.MaxIterations,
		ToolChoice:      cfg.ToolChoice,
		RequireDoneTool: cfg.RequireDoneTool,
		SystemPrompt:    cfg.SystemPrompt,
		Model:           cfg.Model,
		Store:           store,
		Logger:          logger,
	}
	if !cfg.Compaction.Null {
		opts.Compaction = compactionConfig(cfg.Compaction.Config)
	}
	opts.ToolCache = cacheConfig(cfg.ToolOutputCache)
	return opts
}

func compactionConfig(c config.CompactionConfig) *agent.CompactionConfig {
	out := agent.DefaultCompactionConfig()
	if c.Enabled != nil {
		out.Enabled = *c.Enabled
	}
	if c.Auto != nil {
		out.Auto = *c.Auto
	}
	if c.ThresholdRatio > 0 {
		out.ThresholdRatio = c.ThresholdRatio
	}
	if c.Model != "" {
		out.Model = c.Model
	}
	if c.SummaryPrompt != "" {
		out.SummaryPrompt = c.SummaryPrompt
	}
	if c.RetainPrompt != "" {
		out.RetainPrompt = c.RetainPrompt
	}
	if c.RetainLastTurns > 0 {
		out.RetainLastTurns = c.RetainLastTurns
	}
	out.Directives = c.Directives
	return &out
}

func cacheConfig(c config.ToolOutputCacheConfig) *agent.ToolOutputCacheConfig {
	out := agent.DefaultToolOutputCacheConfig()
	if c.Enabled != nil {
		out.Enabled = *c.Enabled
	}
	if c.ContextBudgetTokens > 0 {
		out.ContextBudgetTokens = c.ContextBudgetTokens
	}
	if c.TotalBudgetTrim != nil {
		out.TotalBudgetTrim = *c.TotalBudgetTrim
	}
	if c.MaxMessageBytes > 0 {
		out.MaxMessageBytes = c.MaxMessageBytes
	}
	if c.MaxLineLength > 0 {
		out.MaxLineLength = c.MaxLineLength
	}
	return &out
}

func newProvider(cfg *config.Config, logger *slog.Logger) (agent.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:               firstNonEmpty(cfg.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:              cfg.OpenAI.BaseURL,
			DefaultModel:         cfg.OpenAI.DefaultModel,
			ReasoningEffort:      cfg.OpenAI.ReasoningEffort,
			WebsocketMode:        cfg.OpenAI.WebsocketMode,
			WebsocketAPIVersion:  cfg.OpenAI.WebsocketAPIVersion,
			ConnectTimeout:       msDuration(cfg.OpenAI.WebsocketConnectTimeoutMs),
			ResponseIdleTimeout:  msDuration(cfg.OpenAI.WebsocketResponseIdleTimeoutMs),
			MaxRetries:           cfg.LLMMaxRetries,
			RetryBaseDelay:       msDuration(cfg.LLMRetryBaseDelayMs),
			RetryMaxDelay:        msDuration(cfg.LLMRetryMaxDelayMs),
			RetryableStatusCodes: cfg.LLMRetryableStatusCodes,
			Logger:               logger,
		})
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:        firstNonEmpty(cfg.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL:       cfg.Anthropic.BaseURL,
			DefaultModel:  cfg.Anthropic.DefaultModel,
			MaxTokens:     cfg.Anthropic.MaxTokens,
			MaxRetries:    cfg.LLMMaxRetries,
			RetryDelay:    msDuration(cfg.LLMRetryBaseDelayMs),
			RetryMaxDelay: msDuration(cfg.LLMRetryMaxDelayMs),
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newStore(cfg config.StoreConfig) (toolstore.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return toolstore.OpenSQLite(cfg.Path)
	default:
		return toolstore.NewMemoryStore(), nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func writeRecords(path string, recs []agent.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
