package registry

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tmc/langchaingo/llms"
)

type entry struct {
	tool   mcp.Tool
	writes bool
}

// Registry keeps the funnel tool definitions in discovery order and records
// which of them write files on the host.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Register stores a read-only tool definition.
func (r *Registry) Register(tool mcp.Tool) { r.add(tool, false) }

// RegisterWrite stores a tool that creates files; the write filter hides it
// unless writes are enabled.
func (r *Registry) RegisterWrite(tool mcp.Tool) { r.add(tool, true) }

func (r *Registry) add(tool mcp.Tool, writes bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tool.Name] = entry{tool: tool, writes: writes}
}

// Get returns a tool by name when present.
func (r *Registry) Get(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.tool, ok
}

// Writes reports whether name was registered as a write tool.
func (r *Registry) Writes(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name].writes
}

// Tools returns the registered definitions sorted by name.
func (r *Registry) Tools(_ context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.tool)
	}
	slices.SortFunc(tools, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })
	return tools, nil
}

// ModelContextSize reports the context window of modelName so operators can
// judge whether a full analysis payload fits the client model.
func (r *Registry) ModelContextSize(modelName string) int {
	return llms.GetModelContextSize(modelName)
}
