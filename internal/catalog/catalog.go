// Package catalog is the component catalog the graph engine consults.
//
// The catalog maps component ids to their descriptors: the ordered source and
// target connection points plus the parameter declarations. Components are
// described in HCL manifests that a Loader reads into a Registry; the graph
// engine only ever sees the narrow Catalog interface, so a remote catalog or
// the read-through Cached wrapper can be swapped in without touching it.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/workflow"
)

// Catalog resolves components and answers compatibility questions.
type Catalog interface {
	// FindComponent returns the component with the given id and type. An empty
	// type matches any. Missing components are reported with workflow.ErrNotFound.
	FindComponent(ctx context.Context, id string, typ descriptor.ComponentType) (*descriptor.Component, error)
	// IsCompatible reports whether data produced at t may flow into s.
	IsCompatible(t descriptor.Target, s descriptor.Source) bool
}

// Registry is an in-memory Catalog populated from manifests or by hand.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*descriptor.Component
}

var _ Catalog = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]*descriptor.Component)}
}

// Register adds components to the registry. Ids must be unique.
func (r *Registry) Register(components ...*descriptor.Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range components {
		if c == nil || c.ID == "" {
			return fmt.Errorf("%w: component without id", workflow.ErrInvalidArgument)
		}
		if _, exists := r.components[c.ID]; exists {
			return fmt.Errorf("%w: component '%s' is already registered", workflow.ErrInvalidArgument, c.ID)
		}
		r.components[c.ID] = c.Clone()
	}
	return nil
}

// Components returns copies of every registered component ordered by id.
func (r *Registry) Components() []*descriptor.Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*descriptor.Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindComponent implements Catalog.
func (r *Registry) FindComponent(_ context.Context, id string, typ descriptor.ComponentType) (*descriptor.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[id]
	if !ok || (typ != "" && c.Type != typ) {
		return nil, workflow.NotFound("component", id)
	}
	return c.Clone(), nil
}

// IsCompatible implements Catalog with descriptor.Compatible.
func (r *Registry) IsCompatible(t descriptor.Target, s descriptor.Source) bool {
	return descriptor.Compatible(t, s)
}

// ComponentOf returns the component attached to n. Group nodes carry their
// synthesized component themselves; every other node is resolved through cat.
func ComponentOf(ctx context.Context, cat Catalog, n *workflow.Node) (*descriptor.Component, error) {
	if n.IsGroup() {
		if n.Group == nil || n.Group.Component == nil {
			return nil, workflow.NotFound("group component of node", n.ID)
		}
		return n.Group.Component.Clone(), nil
	}
	return cat.FindComponent(ctx, n.Component.ID, n.Component.Type)
}
