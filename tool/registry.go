// Package tool implements the closed tool registry of spec.md §4.3: a
// fixed set of capability-typed tools, looked up by name and dispatched
// through a uniform Execute contract. Grounded on the registry-as-map
// dispatch visible throughout dev/handle_tool_call.go, generalized here
// into an explicit Registry type rather than a switch statement, since
// the spec calls for tools to be independently registerable (e.g. for
// tests that swap in a restricted subset for sub-agents).
package tool

import "github.com/sidecore/agentcore/domain"

// Registry implements domain.ToolRegistry over an in-memory map.
type Registry struct {
	tools map[string]domain.Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]domain.Tool{}}
}

func (r *Registry) Register(t domain.Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Lookup(name string) (domain.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Definitions() []domain.ToolDefinition {
	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParametersSchema(),
		})
	}
	return defs
}

// Subset returns a new Registry containing only the named tools, in the
// order given, preserving the teacher's sub-agent "scoped tool subset"
// pattern (dev/dev_agent.go hands the explore/build sub-agents a narrower
// tool list than the main loop).
func (r *Registry) Subset(names ...string) *Registry {
	sub := NewRegistry()
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			sub.Register(t)
		}
	}
	return sub
}
