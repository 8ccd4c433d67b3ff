// Package tools provides the tool registry consulted during workflow
// validation. Nodes may reference tools by name; the validator checks
// membership here without ever loading or invoking a tool.
package tools

import (
	"sort"
	"sync"
)

// Registry answers membership queries for named tools.
type Registry interface {
	// Has reports whether a tool with the given name is registered.
	Has(name string) bool

	// Names returns all registered tool names in sorted order.
	Names() []string
}

// StaticRegistry is an in-memory Registry populated at construction time.
// It is safe for concurrent use.
type StaticRegistry struct {
	mu    sync.RWMutex
	tools map[string]bool
}

// NewStaticRegistry creates a registry containing the given tool names.
func NewStaticRegistry(names ...string) *StaticRegistry {
	tools := make(map[string]bool, len(names))
	for _, name := range names {
		tools[name] = true
	}
	return &StaticRegistry{tools: tools}
}

// Register adds a tool name to the registry.
func (r *StaticRegistry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = true
}

// Has reports whether name is registered.
func (r *StaticRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names in sorted order.
func (r *StaticRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
