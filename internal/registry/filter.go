package registry

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// writePrefixes mark file-writing tools that were not registered through a
// Registry, such as tools added directly on the server.
var writePrefixes = []string{"export_", "write_"}

// WriteToolFilter hides file-writing tools unless explicitly enabled.
// The server enables them from server.enable_writes or MCPFUNNEL_ENABLE_WRITES.
type WriteToolFilter struct {
	allowWrites bool
	reg         *Registry
}

// NewWriteToolFilter constructs a filter. reg may be nil, in which case only
// name prefixes identify write tools.
func NewWriteToolFilter(allowWrites bool, reg *Registry) *WriteToolFilter {
	return &WriteToolFilter{allowWrites: allowWrites, reg: reg}
}

// AllowWrites reports whether write tools are exposed.
func (f *WriteToolFilter) AllowWrites() bool { return f.allowWrites }

// FilterTools drops write tools from a list_tools response when writes are off.
func (f *WriteToolFilter) FilterTools(_ context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowWrites {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if f.isWriteTool(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (f *WriteToolFilter) isWriteTool(name string) bool {
	if f.reg != nil && f.reg.Writes(name) {
		return true
	}
	name = strings.ToLower(name)
	for _, p := range writePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
