package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Handler executes one tool call. input is the parsed input object from the
// closed tool-use block; the returned value is wrapped into the tool result
// envelope by the dispatcher.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Function    Handler
}

// Registry maps tool names to definitions. It is passed to the dispatcher at
// call time rather than held as a global.
type Registry struct {
	defs  map[string]ToolDefinition
	order []string
}

// NewRegistry builds a registry from the given definitions. A duplicate name
// replaces the earlier definition but keeps its position.
func NewRegistry(defs ...ToolDefinition) *Registry {
	r := &Registry{defs: make(map[string]ToolDefinition, len(defs))}
	for _, d := range defs {
		if _, seen := r.defs[d.Name]; !seen {
			r.order = append(r.order, d.Name)
		}
		r.defs[d.Name] = d
	}
	return r
}

// Default returns the registry of built-in file tools.
func Default() *Registry {
	return NewRegistry(ReadFileDefinition, ListFilesDefinition, EditFileDefinition)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// All returns the definitions in registration order, for building the tool
// specifications sent with each request.
func (r *Registry) All() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.defs) }

// Bind decodes a parsed input object into a typed input struct via JSON
// round-trip, so handlers get the same coercion rules as direct
// unmarshalling.
func Bind(input map[string]any, v any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
