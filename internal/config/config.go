// Package config reads the TOML schema file declaring entities, their
// relationships and their soft-delete settings.
//
//	[logging]
//	level = "info"
//
//	[[entities]]
//	name  = "task"
//	table = "tasks"
//	columns = [
//	  { name = "id" },
//	  { name = "project_id", nullable = true },
//	  { name = "soft_destroyed_at", nullable = true },
//	]
//	relations = [
//	  { name = "project", kind = "belongs_to", target = "project", foreign_key = "project_id" },
//	]
//	soft_delete = { dependents = ["project"] }
package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"veil/internal/core/apperror"
	"veil/internal/metadata"
	"veil/internal/softdelete"
	"veil/pkg/logger"
)

// Schema is the root of a schema file.
type Schema struct {
	Logging  LoggingConfig  `toml:"logging"`
	Entities []EntityConfig `toml:"entities"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level       string   `toml:"level"` // debug, info, warn, error
	Development bool     `toml:"development"`
	OutputPaths []string `toml:"output_paths,omitempty"`
}

// EntityConfig declares one entity type.
type EntityConfig struct {
	Name       string            `toml:"name"`
	Table      string            `toml:"table"`
	IDColumn   string            `toml:"id_column,omitempty"`
	Columns    []ColumnConfig    `toml:"columns"`
	Relations  []RelationConfig  `toml:"relations,omitempty"`
	SoftDelete *SoftDeleteConfig `toml:"soft_delete,omitempty"`
}

// ColumnConfig declares a column.
type ColumnConfig struct {
	Name     string `toml:"name"`
	Nullable bool   `toml:"nullable"`
}

// RelationConfig declares an outgoing relationship.
type RelationConfig struct {
	Name       string `toml:"name"`
	Kind       string `toml:"kind"` // belongs_to, has_one, has_many, has_many_through
	Target     string `toml:"target"`
	ForeignKey string `toml:"foreign_key,omitempty"`
	Through    string `toml:"through,omitempty"`
}

// SoftDeleteConfig enables soft delete for the entity. An empty table is enough
// to enable it with defaults.
type SoftDeleteConfig struct {
	MarkerColumn string   `toml:"marker_column,omitempty"`
	Dependents   []string `toml:"dependents,omitempty"`
}

// Parse decodes a Schema from r. Unknown keys are rejected.
func Parse(r io.Reader) (*Schema, error) {
	var s Schema
	md, err := toml.NewDecoder(r).Decode(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, apperror.NewValidation("unknown schema keys: " + strings.Join(keys, ", "))
	}
	return &s, nil
}

// Load reads a Schema from the file at path.
func Load(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading schema from %s: %w", path, err)
	}
	return s, nil
}

// Write encodes s as TOML.
func Write(w io.Writer, s *Schema) error {
	if err := toml.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}

// Logger returns the logger configuration.
func (s *Schema) Logger() logger.Config {
	return logger.Config{
		Level:       s.Logging.Level,
		Development: s.Logging.Development,
		OutputPaths: s.Logging.OutputPaths,
	}
}

// Definition converts the entity to its metadata form.
func (e EntityConfig) Definition() metadata.EntityDef {
	def := metadata.EntityDef{
		Name:     e.Name,
		Table:    e.Table,
		IDColumn: e.IDColumn,
	}
	for _, c := range e.Columns {
		def.Columns = append(def.Columns, metadata.ColumnDef{Name: c.Name, Nullable: c.Nullable})
	}
	for _, r := range e.Relations {
		def.Relations = append(def.Relations, metadata.RelationDef{
			Name:       r.Name,
			Kind:       metadata.RelationKind(r.Kind),
			Target:     r.Target,
			ForeignKey: r.ForeignKey,
			Through:    r.Through,
		})
	}
	return def
}

// Options converts the soft-delete settings.
func (c SoftDeleteConfig) Options() softdelete.Options {
	opts := softdelete.DefaultOptions()
	if c.MarkerColumn != "" {
		opts.MarkerColumn = c.MarkerColumn
	}
	opts.DependentRelations = append(opts.DependentRelations, c.Dependents...)
	return opts
}

// Apply registers every entity in meta, then enables soft delete in reg for
// the entities that ask for it. Soft-delete declarations may appear in any order.
// Apply is all-or-nothing: on error neither meta nor reg keeps any entity of s.
func (s *Schema) Apply(meta *metadata.Registry, reg *softdelete.Registry, opts ...softdelete.Option) error {
	defs := make([]metadata.EntityDef, 0, len(s.Entities))
	names := make([]string, 0, len(s.Entities))
	var decls []softdelete.Declaration
	for _, e := range s.Entities {
		defs = append(defs, e.Definition())
		names = append(names, e.Name)

		if e.SoftDelete == nil {
			continue
		}
		o := e.SoftDelete.Options()
		for _, opt := range opts {
			opt(&o)
		}
		decls = append(decls, softdelete.Declaration{Entity: e.Name, Options: o})
	}

	if err := meta.RegisterAll(defs...); err != nil {
		return fmt.Errorf("register entities: %w", err)
	}
	if err := reg.DeclareAll(decls...); err != nil {
		meta.Unregister(names...)
		return err
	}
	return nil
}

// SoftDeletable returns the names of entities with soft delete enabled, sorted.
func (s *Schema) SoftDeletable() []string {
	var names []string
	for _, e := range s.Entities {
		if e.SoftDelete != nil {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}
