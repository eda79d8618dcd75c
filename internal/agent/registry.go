package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Registration normalizes each tool's JSON Schema once and compiles
// a validator for it.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

type registeredTool struct {
	tool      Tool
	schema    json.RawMessage // normalized
	validator *jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool to the registry. The tool's schema is normalized for
// strict mode: object schemas get additionalProperties=false when missing,
// and every declared property becomes required. An invalid schema is an
// error so misconfigured tools fail at startup, not mid-conversation.
func (r *ToolRegistry) Register(tool Tool) error {
	normalized, err := NormalizeSchema(tool.Schema())
	if err != nil {
		return fmt.Errorf("tool %q: %w", tool.Name(), err)
	}
	validator, err := jsonschema.CompileString(tool.Name()+".schema.json", string(normalized))
	if err != nil {
		return fmt.Errorf("tool %q: compile schema: %w", tool.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = &registeredTool{tool: tool, schema: normalized, validator: validator}
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by exact name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// ValidateArgs checks parsed arguments against the tool's compiled schema.
// Unknown tools validate trivially; the loop reports them separately.
func (r *ToolRegistry) ValidateArgs(name string, args any) error {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok || rt.validator == nil {
		return nil
	}
	if err := rt.validator.Validate(args); err != nil {
		return fmt.Errorf("arguments for %q do not match schema: %w", name, err)
	}
	return nil
}

// Definitions returns the registered tools as provider tool definitions,
// sorted by name for a stable tools hash across invocations.
func (r *ToolRegistry) Definitions() []messages.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]messages.ToolDefinition, 0, len(r.tools))
	for name, rt := range r.tools {
		defs = append(defs, messages.ToolDefinition{
			Type:        messages.ToolDefFunction,
			Name:        name,
			Description: rt.tool.Description(),
			Parameters:  rt.schema,
			Strict:      true,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// NormalizeSchema walks a JSON Schema and applies the strict-mode rules the
// providers expect: every object schema missing additionalProperties gets
// additionalProperties=false, and all declared properties become required.
// A nil or empty schema normalizes to an empty object schema.
func NormalizeSchema(schema json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false,"required":[]}`), nil
	}
	var root any
	if err := json.Unmarshal(schema, &root); err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}
	normalizeSchemaNode(root)
	out, err := json.Marshal(root)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeSchemaNode(node any) {
	switch v := node.(type) {
	case map[string]any:
		if isObjectSchema(v) {
			if _, ok := v["additionalProperties"]; !ok {
				v["additionalProperties"] = false
			}
			if props, ok := v["properties"].(map[string]any); ok {
				names := make([]string, 0, len(props))
				for name := range props {
					names = append(names, name)
				}
				sort.Strings(names)
				required := make([]any, len(names))
				for i, n := range names {
					required[i] = n
				}
				v["required"] = required
			}
		}
		for _, child := range v {
			normalizeSchemaNode(child)
		}
	case []any:
		for _, child := range v {
			normalizeSchemaNode(child)
		}
	}
}

func isObjectSchema(m map[string]any) bool {
	if t, ok := m["type"].(string); ok && t == "object" {
		return true
	}
	_, hasProps := m["properties"]
	return hasProps
}
