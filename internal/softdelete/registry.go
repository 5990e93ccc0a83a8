// Package softdelete marks rows hidden through a nullable marker column and derives
// visibility transitively from declared belongs_to parents.
//
// A Registry holds the dependency graph of soft-deletable entity types. Each
// registered type owns exactly one visible predicate; a child delegates to its
// parents' predicates instead of re-deriving them, so chains of any depth compose
// one hop per declared relationship.
package softdelete

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/squirrel"

	"veil/internal/core/apperror"
	"veil/internal/core/store"
	"veil/internal/metadata"
	"veil/pkg/logger"
)

// Registry is the set of soft-delete registrations sharing one schema and store.
type Registry struct {
	mu     sync.RWMutex
	meta   *metadata.Registry
	store  store.Store
	log    *logger.Logger
	nodes  map[string]*node
	models map[string]any // entity name -> *Model[T]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for registration and transition events.
func WithLogger(l *logger.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates a registry over the given schema and store.
func NewRegistry(meta *metadata.Registry, st store.Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		meta:   meta,
		store:  st,
		log:    logger.Default(),
		nodes:  make(map[string]*node),
		models: make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("softdelete")
	return r
}

// node is one soft-deletable entity type in the dependency graph.
type node struct {
	def    metadata.EntityDef
	marker string
	clock  Clock
	deps   []*dependency
}

// dependency is a resolved dependent relationship. soft points at the parent's
// node when the parent is soft-deletable, and is nil for hard-delete parents.
type dependency struct {
	relation metadata.RelationDef
	parent   metadata.EntityDef
	soft     *node
}

// Declare installs soft-delete predicates for entity without binding a Go type.
// Nothing is installed if any check fails.
func (r *Registry) Declare(entity string, opts ...Option) error {
	return r.DeclareWithOptions(entity, buildOptions(opts))
}

// DeclareWithOptions is Declare with an explicit Options value.
func (r *Registry) DeclareWithOptions(entity string, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.declareLocked(entity, opts)
}

// Declaration is one entry of a DeclareAll batch.
type Declaration struct {
	Entity  string
	Options Options
}

// DeclareAll installs a batch of declarations in order. The batch is checked
// against a copy of the graph first, so either every declaration is installed
// or none is.
func (r *Registry) DeclareAll(decls ...Declaration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scratch := &Registry{
		meta:  r.meta,
		store: r.store,
		log:   logger.Nop(),
		nodes: cloneGraph(r.nodes),
	}
	for _, d := range decls {
		if err := scratch.declareLocked(d.Entity, d.Options); err != nil {
			return err
		}
	}

	for _, d := range decls {
		if err := r.declareLocked(d.Entity, d.Options); err != nil {
			return err
		}
	}
	return nil
}

// declareLocked validates and commits one declaration. Caller holds r.mu.
func (r *Registry) declareLocked(entity string, opts Options) error {
	if opts.MarkerColumn == "" {
		opts.MarkerColumn = DefaultMarkerColumn
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}

	def, ok := r.meta.Get(entity)
	if !ok {
		return apperror.NewConfiguration(entity, "entity is not declared in metadata")
	}

	col, ok := def.Column(opts.MarkerColumn)
	if !ok {
		return apperror.NewConfiguration(entity, fmt.Sprintf("marker column %q does not exist", opts.MarkerColumn)).
			WithDetail("column", opts.MarkerColumn)
	}
	if !col.Nullable {
		return apperror.NewConfiguration(entity, fmt.Sprintf("marker column %q must be nullable", opts.MarkerColumn)).
			WithDetail("column", opts.MarkerColumn)
	}

	if _, exists := r.nodes[entity]; exists {
		return apperror.NewConfiguration(entity, "soft delete is already enabled")
	}

	n := &node{def: def, marker: opts.MarkerColumn, clock: opts.Clock}
	for _, name := range opts.DependentRelations {
		rel, err := metadata.Resolve(def, name)
		if err != nil {
			return apperror.NewConfiguration(entity, "invalid dependent relationship").
				WithDetail("relationship", name).
				WithCause(err)
		}
		parent, ok := r.meta.Get(rel.Target)
		if !ok {
			return apperror.NewConfiguration(entity, fmt.Sprintf("target %q of relationship %q is not declared in metadata", rel.Target, name)).
				WithDetail("relationship", name)
		}
		n.deps = append(n.deps, &dependency{
			relation: rel,
			parent:   parent,
			soft:     r.nodes[rel.Target],
		})
	}

	if r.createsCycle(n) {
		return apperror.NewConfiguration(entity, "dependent relationships form a cycle")
	}

	// Commit: children registered earlier start delegating to the new node.
	r.nodes[entity] = n
	for _, other := range r.nodes {
		for _, d := range other.deps {
			if d.soft == nil && d.relation.Target == entity {
				d.soft = n
			}
		}
	}

	r.log.Infow("soft delete enabled",
		"entity", entity,
		"marker", n.marker,
		"dependents", opts.DependentRelations,
	)
	return nil
}

// cloneGraph deep-copies nodes so back-patching the copy leaves the original
// untouched.
func cloneGraph(nodes map[string]*node) map[string]*node {
	out := make(map[string]*node, len(nodes))
	for name, n := range nodes {
		c := *n
		out[name] = &c
	}
	for _, c := range out {
		deps := make([]*dependency, len(c.deps))
		for i, d := range c.deps {
			dc := *d
			if d.soft != nil {
				dc.soft = out[d.soft.def.Name]
			}
			deps[i] = &dc
		}
		c.deps = deps
	}
	return out
}

// createsCycle reports whether committing n would let a visible predicate reach
// itself. Edges to n that would be created by re-linking are included.
// Caller holds r.mu.
func (r *Registry) createsCycle(n *node) bool {
	name := n.def.Name
	edges := func(x *node) []*node {
		var out []*node
		for _, d := range x.deps {
			switch {
			case d.soft != nil:
				out = append(out, d.soft)
			case d.relation.Target == name:
				out = append(out, n)
			}
		}
		return out
	}

	visited := make(map[*node]bool)
	var walk func(x *node) bool
	walk = func(x *node) bool {
		for _, next := range edges(x) {
			if next == n {
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(n)
}

// Registered reports whether entity has soft delete enabled.
func (r *Registry) Registered(entity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[entity]
	return ok
}

// MarkerColumn returns the marker column registered for entity.
func (r *Registry) MarkerColumn(entity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[entity]
	if !ok {
		return "", false
	}
	return n.marker, true
}

// Visible returns the visible predicate of a registered entity.
func (r *Registry) Visible(entity string) (squirrel.Sqlizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[entity]
	if !ok {
		return nil, apperror.NewNotFound("soft-deletable entity", entity)
	}
	return n.visible(), nil
}

// HiddenOnly returns the hidden-only predicate of a registered entity.
func (r *Registry) HiddenOnly(entity string) (squirrel.Sqlizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[entity]
	if !ok {
		return nil, apperror.NewNotFound("soft-deletable entity", entity)
	}
	return n.hiddenOnly(), nil
}

// VerifySchema checks every registration against the live catalog: marker
// columns must exist and be nullable, dependent foreign keys must exist.
func (r *Registry) VerifySchema(ctx context.Context, in store.Introspector) error {
	r.mu.RLock()
	nodes := make([]*node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()

	var errs []error
	for _, n := range nodes {
		cols, err := in.Columns(ctx, n.def.Table)
		if err != nil {
			errs = append(errs, apperror.NewDatabase("introspect "+n.def.Table, err))
			continue
		}
		live := make(map[string]metadata.ColumnDef, len(cols))
		for _, c := range cols {
			live[c.Name] = c
		}

		if c, ok := live[n.marker]; !ok {
			errs = append(errs, apperror.NewConfiguration(n.def.Name, fmt.Sprintf("marker column %q missing in table %s", n.marker, n.def.Table)))
		} else if !c.Nullable {
			errs = append(errs, apperror.NewConfiguration(n.def.Name, fmt.Sprintf("marker column %q is NOT NULL in table %s", n.marker, n.def.Table)))
		}
		for _, d := range n.deps {
			if _, ok := live[d.relation.ForeignKey]; !ok {
				errs = append(errs, apperror.NewConfiguration(n.def.Name, fmt.Sprintf("foreign key %q missing in table %s", d.relation.ForeignKey, n.def.Table)))
			}
		}
	}
	return errors.Join(errs...)
}
