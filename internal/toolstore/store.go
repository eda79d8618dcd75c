// Package toolstore persists full tool outputs outside the conversation so
// the tool-output cache can truncate and trim messages while keeping the
// complete text addressable by reference id.
package toolstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Record is a tool output to persist.
type Record struct {
	ToolCallID string
	ToolName   string
	Content    string
	IsError    bool
}

// Ref addresses a persisted output.
type Ref struct {
	ID        string `json:"id"`
	ByteSize  int    `json:"byte_size,omitempty"`
	LineCount int    `json:"line_count,omitempty"`
}

// ReadOptions selects a line window of a stored output.
type ReadOptions struct {
	Offset int // first line, 0-based
	Limit  int // max lines, 0 = all
}

// GrepOptions filters a stored output by pattern.
type GrepOptions struct {
	Pattern    string
	Regex      bool
	Before     int
	After      int
	MaxMatches int
}

// Store is the tool-output cache store contract. Save failures are logged by
// the store and swallowed by the cache service; the message then proceeds
// without a ref.
type Store interface {
	Save(ctx context.Context, rec Record) (Ref, error)
	Read(ctx context.Context, refID string, opts ReadOptions) (string, error)
	Grep(ctx context.Context, refID string, opts GrepOptions) (string, error)
}

// readLines applies a line window to content.
func readLines(content string, opts ReadOptions) string {
	lines := strings.Split(content, "\n")
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Offset >= len(lines) {
		return ""
	}
	lines = lines[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(lines) {
		lines = lines[:opts.Limit]
	}
	return strings.Join(lines, "\n")
}

// grepLines filters content by pattern with optional context lines. Each
// match is prefixed with its 1-based line number, the conventional grep -n
// presentation tools already know how to read.
func grepLines(content string, opts GrepOptions) (string, error) {
	if opts.Pattern == "" {
		return "", fmt.Errorf("grep: pattern is required")
	}
	match := func(line string) bool { return strings.Contains(line, opts.Pattern) }
	if opts.Regex {
		re, err := regexp.Compile(opts.Pattern)
		if err != nil {
			return "", fmt.Errorf("grep: %w", err)
		}
		match = re.MatchString
	}

	lines := strings.Split(content, "\n")
	var out []string
	matches := 0
	emitted := make(map[int]bool)
	for i, line := range lines {
		if !match(line) {
			continue
		}
		matches++
		lo := max(0, i-opts.Before)
		hi := min(len(lines)-1, i+opts.After)
		for j := lo; j <= hi; j++ {
			if emitted[j] {
				continue
			}
			emitted[j] = true
			out = append(out, fmt.Sprintf("%d:%s", j+1, lines[j]))
		}
		if opts.MaxMatches > 0 && matches >= opts.MaxMatches {
			break
		}
	}
	if matches == 0 {
		return "no matches", nil
	}
	return strings.Join(out, "\n"), nil
}
