package tools

import (
	"context"
)

// Tool is an executable capability offered to the agent: fetching a recipe,
// searching for ideas, looking up the dish library. Execute takes the tool
// call's raw JSON arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry holds the executable tools; which ones the agent sees on a given
// wizard step is decided by the agent package.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}
