// Package capability defines the tool surface an agent advertises over the
// protocol and the executors behind it. Tool descriptors use the MCP tool
// shape, which is what the coordination server expects in tools replies.
package capability

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Executor runs one capability. The returned map is sent back verbatim as
// the tool-call result payload.
type Executor func(ctx context.Context, args map[string]any) (map[string]any, error)

// Registry holds a role's capabilities. Not safe for concurrent mutation;
// build it up front, then share it read-only with the engine.
type Registry struct {
	order []string
	tools map[string]mcp.Tool
	execs map[string]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]mcp.Tool),
		execs: make(map[string]Executor),
	}
}

// Register adds one capability. Names are unique within a registry.
func (r *Registry) Register(tool mcp.Tool, exec Executor) error {
	if tool.Name == "" {
		return fmt.Errorf("register capability: empty name")
	}
	if exec == nil {
		return fmt.Errorf("register capability %q: nil executor", tool.Name)
	}
	if _, dup := r.tools[tool.Name]; dup {
		return fmt.Errorf("register capability %q: already registered", tool.Name)
	}
	r.order = append(r.order, tool.Name)
	r.tools[tool.Name] = tool
	r.execs[tool.Name] = exec
	return nil
}

// Tools returns every capability descriptor in registration order.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Has reports whether a capability with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.execs[name]
	return ok
}

// Execute runs the named capability.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	exec, ok := r.execs[name]
	if !ok {
		return nil, fmt.Errorf("capability %q not registered", name)
	}
	return exec(ctx, args)
}
