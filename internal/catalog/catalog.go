// Package catalog maps model ids and aliases to model specifications with
// context limits. The agent's context-management services consult it to
// decide when to compact and how much tool output to keep.
package catalog

import (
	"regexp"
	"strings"
	"sync"
)

// ModelSpec describes one model's identity and limits.
type ModelSpec struct {
	ID              string   `json:"id"`
	Provider        string   `json:"provider"`
	Aliases         []string `json:"aliases,omitempty"`
	ContextWindow   int      `json:"context_window,omitempty"`
	MaxInputTokens  int      `json:"max_input_tokens,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	SupportsTools   bool     `json:"supports_tools,omitempty"`
}

// ContextLimit returns the model's total input window, preferring
// ContextWindow over MaxInputTokens. Zero means unknown.
func (s ModelSpec) ContextLimit() int {
	if s.ContextWindow > 0 {
		return s.ContextWindow
	}
	return s.MaxInputTokens
}

// Registry resolves model ids and aliases to specs.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]ModelSpec
	aliases map[string]map[string]string // provider -> alias -> id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]ModelSpec),
		aliases: make(map[string]map[string]string),
	}
}

// Register adds a spec, indexing its aliases under its provider.
// A spec with an already-registered id replaces the previous entry.
func (r *Registry) Register(spec ModelSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[spec.ID] = spec
	if len(spec.Aliases) > 0 {
		m := r.aliases[spec.Provider]
		if m == nil {
			m = make(map[string]string)
			r.aliases[spec.Provider] = m
		}
		for _, a := range spec.Aliases {
			m[a] = spec.ID
		}
	}
}

var datedSuffix = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`)

// Resolve maps a model reference to a spec. The strategy, in order:
//
//  1. direct id match
//  2. alias within the given provider (when provider is non-empty)
//  3. alias unique across all providers
//  4. provider-qualified "provider/id" form
//  5. strip one trailing "-YYYY-MM-DD" snapshot suffix and retry direct
func (r *Registry) Resolve(ref, provider string) (ModelSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if spec, ok := r.byID[ref]; ok {
		return spec, true
	}

	if provider != "" {
		if id, ok := r.aliases[provider][ref]; ok {
			return r.byID[id], true
		}
	}

	var uniqueID string
	matches := 0
	for _, m := range r.aliases {
		if id, ok := m[ref]; ok {
			uniqueID = id
			matches++
		}
	}
	if matches == 1 {
		return r.byID[uniqueID], true
	}

	if prov, id, ok := strings.Cut(ref, "/"); ok {
		if spec, found := r.byID[id]; found && spec.Provider == prov {
			return spec, true
		}
		if aid, found := r.aliases[prov][id]; found {
			return r.byID[aid], true
		}
	}

	if stripped := datedSuffix.ReplaceAllString(ref, ""); stripped != ref {
		if spec, ok := r.byID[stripped]; ok {
			return spec, true
		}
	}

	return ModelSpec{}, false
}

// ContextLimit resolves ref and returns its context limit, or 0 if the
// model is unknown or carries no limits.
func (r *Registry) ContextLimit(ref, provider string) int {
	spec, ok := r.Resolve(ref, provider)
	if !ok {
		return 0
	}
	return spec.ContextLimit()
}

// Default returns a registry seeded with the models the built-in providers
// use by default.
func Default() *Registry {
	r := NewRegistry()
	for _, spec := range []ModelSpec{
		{ID: "claude-sonnet-4-20250514", Provider: "anthropic", Aliases: []string{"sonnet"}, ContextWindow: 200000, MaxOutputTokens: 64000, SupportsTools: true},
		{ID: "claude-opus-4-20250514", Provider: "anthropic", Aliases: []string{"opus"}, ContextWindow: 200000, MaxOutputTokens: 32000, SupportsTools: true},
		{ID: "claude-3-5-haiku-20241022", Provider: "anthropic", Aliases: []string{"haiku"}, ContextWindow: 200000, MaxOutputTokens: 8192, SupportsTools: true},
		{ID: "gpt-5", Provider: "openai", ContextWindow: 400000, MaxOutputTokens: 128000, SupportsTools: true},
		{ID: "gpt-5-mini", Provider: "openai", Aliases: []string{"mini"}, ContextWindow: 400000, MaxOutputTokens: 128000, SupportsTools: true},
		{ID: "gpt-4.1", Provider: "openai", ContextWindow: 1000000, MaxOutputTokens: 32768, SupportsTools: true},
		{ID: "gpt-4o", Provider: "openai", ContextWindow: 128000, MaxOutputTokens: 16384, SupportsTools: true},
		{ID: "o4-mini", Provider: "openai", ContextWindow: 200000, MaxOutputTokens: 100000, SupportsTools: true},
	} {
		r.Register(spec)
	}
	return r
}
