package testutil

import (
	"testing"
	"time"

	"veil/internal/core/id"
	"veil/internal/metadata"
)

// Account is a hard-delete parent.
type Account struct {
	ID   id.ID  `db:"id"`
	Name string `db:"name"`
}

func (a *Account) RecordID() id.ID { return a.ID }

// Project is a soft-deletable root with an alternative marker column.
type Project struct {
	ID              id.ID      `db:"id"`
	Name            string     `db:"name"`
	CreatedAt       time.Time  `db:"created_at"`
	SoftDestroyedAt *time.Time `db:"soft_destroyed_at"`
	ArchivedAt      *time.Time `db:"archived_at"`

	Tasks []*Task `db:"-" rel:"has_many,foreign_key:project_id,target:task"`
}

func (p *Project) RecordID() id.ID { return p.ID }

func (p *Project) SetSoftDeleteMarker(at *time.Time) { p.SoftDestroyedAt = at }

// Task depends on a soft-deletable project and a hard-delete account.
type Task struct {
	ID              id.ID      `db:"id"`
	ProjectID       *id.ID     `db:"project_id" rel:"belongs_to,name:project,foreign_key:project_id,target:project"`
	AccountID       *id.ID     `db:"account_id" rel:"belongs_to,name:account,foreign_key:account_id,target:account"`
	Title           string     `db:"title"`
	SoftDestroyedAt *time.Time `db:"soft_destroyed_at"`
}

func (t *Task) RecordID() id.ID { return t.ID }

func (t *Task) SetSoftDeleteMarker(at *time.Time) { t.SoftDestroyedAt = at }

// ChainNode is a row of any table in Chain.
type ChainNode struct {
	ID              id.ID      `db:"id"`
	ParentID        *id.ID     `db:"parent_id"`
	SoftDestroyedAt *time.Time `db:"soft_destroyed_at"`
}

func (n *ChainNode) RecordID() id.ID { return n.ID }

// Chain lists the nested entities from root to leaf; each one belongs to the
// previous through parent_id.
var Chain = []struct{ Entity, Table string }{
	{"region", "regions"},
	{"site", "sites"},
	{"building", "buildings"},
	{"floor", "floors"},
	{"room", "rooms"},
	{"desk", "desks"},
}

// NewMetadata declares every fixture entity.
func NewMetadata(t *testing.T) *metadata.Registry {
	t.Helper()

	reg := metadata.NewRegistry()
	for _, def := range []metadata.EntityDef{
		mustInspect[Account](t, "account", "accounts"),
		mustInspect[Project](t, "project", "projects"),
		mustInspect[Task](t, "task", "tasks"),
	} {
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}

	for i, link := range Chain {
		def := metadata.EntityDef{
			Name:  link.Entity,
			Table: link.Table,
			Columns: []metadata.ColumnDef{
				{Name: "id"},
				{Name: "soft_destroyed_at", Nullable: true},
			},
		}
		if i > 0 {
			def.Columns = append(def.Columns, metadata.ColumnDef{Name: "parent_id", Nullable: true})
			def.Relations = []metadata.RelationDef{{
				Name:       "parent",
				Kind:       metadata.BelongsTo,
				Target:     Chain[i-1].Entity,
				ForeignKey: "parent_id",
			}}
		}
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	return reg
}

func mustInspect[T any](t *testing.T, name, table string) metadata.EntityDef {
	t.Helper()
	def, err := metadata.Inspect[T](name, table)
	if err != nil {
		t.Fatalf("inspect %s: %v", name, err)
	}
	return def
}
