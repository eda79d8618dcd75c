package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/agentcore/internal/toolstore"
)

// CacheReadTool reads back a stored tool output by ref, optionally windowed
// by line offset and limit.
type CacheReadTool struct {
	store toolstore.Store
}

// NewCacheReadTool builds the tool_output_cache read-back tool.
func NewCacheReadTool(store toolstore.Store) *CacheReadTool {
	return &CacheReadTool{store: store}
}

func (t *CacheReadTool) Name() string { return ToolOutputCacheName }

func (t *CacheReadTool) Description() string {
	return "Read back a previously truncated or trimmed tool output by its ref id. " +
		"Use offset and limit to page through large outputs line by line."
}

func (t *CacheReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"ref": {"type": "string", "description": "Ref id from a truncation or trim marker"},
			"offset": {"type": "integer", "description": "First line to return, 0-based", "default": 0},
			"limit": {"type": "integer", "description": "Maximum lines to return, 0 for all", "default": 0}
		},
		"required": ["ref"]
	}`)
}

func (t *CacheReadTool) Execute(ctx context.Context, args json.RawMessage, _ *ToolContext) (*ToolOutput, error) {
	if t.store == nil {
		return &ToolOutput{Text: "Error: tool output store is not configured", IsError: true}, nil
	}
	var in struct {
		Ref    string `json:"ref"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	text, err := t.store.Read(ctx, in.Ref, toolstore.ReadOptions{Offset: in.Offset, Limit: in.Limit})
	if err != nil {
		return &ToolOutput{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	return &ToolOutput{Text: text}, nil
}

// CacheGrepTool searches a stored tool output by pattern.
type CacheGrepTool struct {
	store toolstore.Store
}

// NewCacheGrepTool builds the tool_output_cache_grep read-back tool.
func NewCacheGrepTool(store toolstore.Store) *CacheGrepTool {
	return &CacheGrepTool{store: store}
}

func (t *CacheGrepTool) Name() string { return ToolOutputCacheGrepName }

func (t *CacheGrepTool) Description() string {
	return "Search a previously stored tool output by substring or regular expression. " +
		"Matching lines are returned with 1-based line numbers plus optional context lines."
}

func (t *CacheGrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"ref": {"type": "string", "description": "Ref id from a truncation or trim marker"},
			"pattern": {"type": "string", "description": "Substring, or regular expression when regex is true"},
			"regex": {"type": "boolean", "default": false},
			"before": {"type": "integer", "description": "Context lines before each match", "default": 0},
			"after": {"type": "integer", "description": "Context lines after each match", "default": 0},
			"max_matches": {"type": "integer", "description": "Stop after this many matches, 0 for all", "default": 0}
		},
		"required": ["ref", "pattern"]
	}`)
}

func (t *CacheGrepTool) Execute(ctx context.Context, args json.RawMessage, _ *ToolContext) (*ToolOutput, error) {
	if t.store == nil {
		return &ToolOutput{Text: "Error: tool output store is not configured", IsError: true}, nil
	}
	var in struct {
		Ref        string `json:"ref"`
		Pattern    string `json:"pattern"`
		Regex      bool   `json:"regex"`
		Before     int    `json:"before"`
		After      int    `json:"after"`
		MaxMatches int    `json:"max_matches"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	text, err := t.store.Grep(ctx, in.Ref, toolstore.GrepOptions{
		Pattern:    in.Pattern,
		Regex:      in.Regex,
		Before:     in.Before,
		After:      in.After,
		MaxMatches: in.MaxMatches,
	})
	if err != nil {
		return &ToolOutput{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	return &ToolOutput{Text: text}, nil
}
