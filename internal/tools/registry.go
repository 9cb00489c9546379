// Package tools holds the tools the model may call.
package tools

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/proto"
)

var (
	// ErrUnknownTool is returned when invoking a name nothing registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrFrozen is returned when registering after Freeze.
	ErrFrozen = errors.New("registry is frozen")
)

// Tool is a capability the model can invoke by name.
type Tool interface {
	Definition() proto.ToolDefinition
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// Func adapts a definition and a function to Tool.
type Func struct {
	Def proto.ToolDefinition
	Fn  func(ctx context.Context, args json.RawMessage) (string, error)
}

// Definition implements Tool.
func (f Func) Definition() proto.ToolDefinition { return f.Def }

// Invoke implements Tool.
func (f Func) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	return f.Fn(ctx, args)
}

// Registry maps tool names to tools. It is populated at startup, frozen, and
// read concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	frozen bool
}

// NewRegistry returns a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register %q: %w", name, ErrFrozen)
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("register %q: tool already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Definitions returns every tool definition sorted by name.
func (r *Registry) Definitions() []proto.ToolDefinition {
	r.mu.RLock()
	defs := make([]proto.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b proto.ToolDefinition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke runs the named tool.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", errs.New(errs.KindTool, fmt.Errorf("%w: %q", ErrUnknownTool, name), fmt.Sprintf("Unknown tool %q", name))
	}

	out, err := t.Invoke(ctx, args)
	if err != nil {
		return "", errs.New(errs.KindTool, err, fmt.Sprintf("Tool %s failed", name))
	}
	return out, nil
}
