package catalog

import "testing"

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register(ModelSpec{ID: "claude-sonnet-4-20250514", Provider: "anthropic", Aliases: []string{"sonnet"}, ContextWindow: 200000})
	r.Register(ModelSpec{ID: "gpt-5", Provider: "openai", Aliases: []string{"best"}, ContextWindow: 400000})
	r.Register(ModelSpec{ID: "grok-4", Provider: "xai", Aliases: []string{"best"}, ContextWindow: 256000})
	return r
}

func TestResolve_Direct(t *testing.T) {
	r := testRegistry()
	spec, ok := r.Resolve("gpt-5", "")
	if !ok || spec.Provider != "openai" {
		t.Fatalf("direct resolve failed: %+v ok=%v", spec, ok)
	}
}

func TestResolve_AliasWithinProvider(t *testing.T) {
	r := testRegistry()
	spec, ok := r.Resolve("best", "xai")
	if !ok || spec.ID != "grok-4" {
		t.Fatalf("alias-in-provider resolve failed: %+v ok=%v", spec, ok)
	}
}

func TestResolve_AliasUniqueAcrossProviders(t *testing.T) {
	r := testRegistry()
	spec, ok := r.Resolve("sonnet", "")
	if !ok || spec.ID != "claude-sonnet-4-20250514" {
		t.Fatalf("unique alias resolve failed: %+v ok=%v", spec, ok)
	}
	// "best" is registered under two providers, so it must not resolve
	// without a provider hint.
	if _, ok := r.Resolve("best", ""); ok {
		t.Fatal("ambiguous alias resolved without provider")
	}
}

func TestResolve_ProviderQualified(t *testing.T) {
	r := testRegistry()
	spec, ok := r.Resolve("openai/gpt-5", "")
	if !ok || spec.ID != "gpt-5" {
		t.Fatalf("provider-qualified resolve failed: %+v ok=%v", spec, ok)
	}
	spec, ok = r.Resolve("xai/best", "")
	if !ok || spec.ID != "grok-4" {
		t.Fatalf("provider-qualified alias resolve failed: %+v ok=%v", spec, ok)
	}
	if _, ok := r.Resolve("openai/grok-4", ""); ok {
		t.Fatal("cross-provider qualified form resolved")
	}
}

func TestResolve_DatedSnapshotSuffix(t *testing.T) {
	r := testRegistry()
	spec, ok := r.Resolve("gpt-5-2025-08-07", "")
	if !ok || spec.ID != "gpt-5" {
		t.Fatalf("dated suffix resolve failed: %+v ok=%v", spec, ok)
	}
	// Only one trailing date is stripped.
	if _, ok := r.Resolve("gpt-5-2025-01-01-2025-08-07", ""); ok {
		t.Fatal("multi-date suffix should not resolve")
	}
}

func TestContextLimit(t *testing.T) {
	r := testRegistry()
	if got := r.ContextLimit("gpt-5", ""); got != 400000 {
		t.Fatalf("ContextLimit = %d, want 400000", got)
	}
	if got := r.ContextLimit("unknown-model", ""); got != 0 {
		t.Fatalf("ContextLimit for unknown = %d, want 0", got)
	}
	spec := ModelSpec{MaxInputTokens: 100}
	if spec.ContextLimit() != 100 {
		t.Fatal("MaxInputTokens fallback not used")
	}
}
