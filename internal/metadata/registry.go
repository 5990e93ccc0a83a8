// Package metadata holds the statically declared schema of entity types: their
// columns and the relationships between them. The soft-delete engine never
// introspects live models; it resolves relationships through this table.
package metadata

import (
	"fmt"
	"sort"
	"sync"

	"veil/internal/core/apperror"
)

// DefaultIDColumn is the identity column used when EntityDef.IDColumn is empty.
const DefaultIDColumn = "id"

// RelationKind defines the shape of a relationship as seen from its owner.
type RelationKind string

const (
	// BelongsTo is a to-one relationship whose foreign key lives on the owner.
	BelongsTo RelationKind = "belongs_to"
	// HasOne is a to-one relationship whose foreign key lives on the target.
	HasOne RelationKind = "has_one"
	// HasMany is a to-many relationship whose foreign key lives on the target.
	HasMany RelationKind = "has_many"
	// HasManyThrough is a to-many relationship through a join entity.
	HasManyThrough RelationKind = "has_many_through"
)

// Valid reports whether k is a known relation kind.
func (k RelationKind) Valid() bool {
	switch k {
	case BelongsTo, HasOne, HasMany, HasManyThrough:
		return true
	}
	return false
}

// EntityDef describes an entity type bound to a table.
type EntityDef struct {
	Name      string        `json:"name"`
	Table     string        `json:"table"`
	IDColumn  string        `json:"idColumn,omitempty"`
	Columns   []ColumnDef   `json:"columns"`
	Relations []RelationDef `json:"relations,omitempty"`
}

// ColumnDef describes a column.
type ColumnDef struct {
	Name     string `json:"name"`
	Nullable bool   `json:"nullable,omitempty"`
}

// RelationDef describes an outgoing relationship.
type RelationDef struct {
	Name       string       `json:"name"`
	Kind       RelationKind `json:"kind"`
	Target     string       `json:"target"`               // entity name of the other side
	ForeignKey string       `json:"foreignKey,omitempty"` // column holding the key
	Through    string       `json:"through,omitempty"`    // join entity for HasManyThrough
}

// PrimaryKey returns the identity column name.
func (d EntityDef) PrimaryKey() string {
	if d.IDColumn == "" {
		return DefaultIDColumn
	}
	return d.IDColumn
}

// Qualified returns column prefixed with the table name.
func (d EntityDef) Qualified(column string) string {
	return d.Table + "." + column
}

// Column looks up a column by name.
func (d EntityDef) Column(name string) (ColumnDef, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// Relation looks up a relationship by name.
func (d EntityDef) Relation(name string) (RelationDef, bool) {
	for _, r := range d.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return RelationDef{}, false
}

// Validate checks that the definition is internally consistent.
func (d EntityDef) Validate() error {
	if d.Name == "" {
		return apperror.NewValidation("entity name is required")
	}
	if d.Table == "" {
		return apperror.NewValidation("table is required").WithDetail("entity", d.Name)
	}
	if _, ok := d.Column(d.PrimaryKey()); !ok {
		return apperror.NewValidation("identity column is not declared").
			WithDetail("entity", d.Name).
			WithDetail("column", d.PrimaryKey())
	}

	seen := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name == "" {
			return apperror.NewValidation("column name is required").WithDetail("entity", d.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return apperror.NewValidation("duplicate column").
				WithDetail("entity", d.Name).
				WithDetail("column", c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	rels := make(map[string]struct{}, len(d.Relations))
	for _, r := range d.Relations {
		if r.Name == "" || r.Target == "" {
			return apperror.NewValidation("relationship needs a name and a target").WithDetail("entity", d.Name)
		}
		if !r.Kind.Valid() {
			return apperror.NewValidation("unknown relationship kind").
				WithDetail("entity", d.Name).
				WithDetail("relationship", r.Name).
				WithDetail("kind", string(r.Kind))
		}
		if _, dup := rels[r.Name]; dup {
			return apperror.NewValidation("duplicate relationship").
				WithDetail("entity", d.Name).
				WithDetail("relationship", r.Name)
		}
		rels[r.Name] = struct{}{}
	}
	return nil
}

// Registry stores entity definitions by name.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]EntityDef
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]EntityDef),
	}
}

// Register validates def and stores it, replacing nothing.
func (r *Registry) Register(def EntityDef) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[def.Name]; exists {
		return apperror.NewValidation(fmt.Sprintf("entity %s already registered", def.Name)).
			WithDetail("entity", def.Name)
	}
	r.entities[def.Name] = def
	return nil
}

// RegisterAll validates and stores a batch of definitions. Nothing is stored if
// any definition is invalid or its name is already taken.
func (r *Registry) RegisterAll(defs ...EntityDef) error {
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		_, exists := r.entities[def.Name]
		_, dup := batch[def.Name]
		if exists || dup {
			return apperror.NewValidation(fmt.Sprintf("entity %s already registered", def.Name)).
				WithDetail("entity", def.Name)
		}
		batch[def.Name] = struct{}{}
	}
	for _, def := range defs {
		r.entities[def.Name] = def
	}
	return nil
}

// Unregister removes the named definitions. Unknown names are ignored.
func (r *Registry) Unregister(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		delete(r.entities, name)
	}
}

// MustRegister is Register for package-level setup; it panics on error.
func (r *Registry) MustRegister(defs ...EntityDef) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (EntityDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entities[name]
	return d, ok
}

// List returns all definitions ordered by name.
func (r *Registry) List() []EntityDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]EntityDef, 0, len(r.entities))
	for _, def := range r.entities {
		list = append(list, def)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Resolve looks up entity and resolves one of its dependent relationships.
func (r *Registry) Resolve(entity, relationship string) (RelationDef, error) {
	def, ok := r.Get(entity)
	if !ok {
		return RelationDef{}, apperror.NewNotFound("entity", entity)
	}
	return Resolve(def, relationship)
}
