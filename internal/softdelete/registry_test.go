package softdelete_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/core/apperror"
	"veil/internal/metadata"
	"veil/internal/softdelete"
	"veil/internal/testutil"
	"veil/pkg/logger"
)

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		opts   []softdelete.Option
		check  func(error) bool
	}{
		{
			name:   "entity not in metadata",
			entity: "invoice",
			check:  apperror.IsConfiguration,
		},
		{
			name:   "missing marker column",
			entity: "project",
			opts:   []softdelete.Option{softdelete.WithMarkerColumn("deleted_at")},
			check:  apperror.IsConfiguration,
		},
		{
			name:   "marker column not nullable",
			entity: "project",
			opts:   []softdelete.Option{softdelete.WithMarkerColumn("created_at")},
			check:  apperror.IsConfiguration,
		},
		{
			name:   "unknown dependent",
			entity: "task",
			opts:   []softdelete.Option{softdelete.WithDependentRelations("owner")},
			check:  apperror.IsRelationshipNotFound,
		},
		{
			name:   "to-many dependent",
			entity: "project",
			opts:   []softdelete.Option{softdelete.WithDependentRelations("tasks")},
			check:  apperror.IsInvalidRelationshipShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := softdelete.Register[*testutil.Project](f.reg, tt.entity, tt.opts...)
			require.Error(t, err)
			assert.True(t, apperror.IsConfiguration(err), "want CONFIGURATION_ERROR, got %v", err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.False(t, f.reg.Registered(tt.entity), "nothing may be installed")
		})
	}

	t.Run("duplicate registration", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.reg.Declare("project"))
		err := f.reg.Declare("project", softdelete.WithMarkerColumn("archived_at"))
		assert.True(t, apperror.IsConfiguration(err))

		marker, ok := f.reg.MarkerColumn("project")
		require.True(t, ok)
		assert.Equal(t, softdelete.DefaultMarkerColumn, marker)
	})
}

func TestRegister_DefaultOptions(t *testing.T) {
	f := newFixture(t)
	m, err := softdelete.RegisterWithOptions[*testutil.Project](f.reg, "project", softdelete.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "soft_destroyed_at", m.MarkerColumn())
	assert.Equal(t, "projects", m.Entity().Table)
}

func TestRegister_ParentAfterChild(t *testing.T) {
	f := newFixture(t)

	tasks, err := softdelete.Register[*testutil.Task](f.reg, "task", softdelete.WithDependentRelations("project"))
	require.NoError(t, err)

	before, _, err := tasks.Visible().ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"(tasks.soft_destroyed_at IS NULL AND tasks.project_id IN (SELECT projects.id FROM projects))",
		before)

	projects, err := softdelete.Register[*testutil.Project](f.reg, "project")
	require.NoError(t, err)

	after, _, err := tasks.Visible().ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"(tasks.soft_destroyed_at IS NULL AND tasks.project_id IN (SELECT projects.id FROM projects WHERE projects.soft_destroyed_at IS NULL))",
		after)

	p := f.project(t)
	task := f.task(t, p, nil)
	_, err = projects.Hide(f.ctx, p)
	require.NoError(t, err)

	hidden, err := tasks.IsHidden(f.ctx, task)
	require.NoError(t, err)
	assert.True(t, hidden)
}

func cyclicMetadata(t *testing.T) *metadata.Registry {
	t.Helper()
	meta := metadata.NewRegistry()
	meta.MustRegister(
		metadata.EntityDef{
			Name:  "folder",
			Table: "folders",
			Columns: []metadata.ColumnDef{
				{Name: "id"},
				{Name: "parent_id", Nullable: true},
				{Name: "pinned_note_id", Nullable: true},
				{Name: "soft_destroyed_at", Nullable: true},
			},
			Relations: []metadata.RelationDef{
				{Name: "parent", Kind: metadata.BelongsTo, Target: "folder", ForeignKey: "parent_id"},
				{Name: "pinned_note", Kind: metadata.BelongsTo, Target: "note", ForeignKey: "pinned_note_id"},
			},
		},
		metadata.EntityDef{
			Name:  "note",
			Table: "notes",
			Columns: []metadata.ColumnDef{
				{Name: "id"},
				{Name: "folder_id"},
				{Name: "soft_destroyed_at", Nullable: true},
			},
			Relations: []metadata.RelationDef{
				{Name: "folder", Kind: metadata.BelongsTo, Target: "folder", ForeignKey: "folder_id"},
			},
		},
	)
	return meta
}

func TestRegister_RejectsCycles(t *testing.T) {
	newRegistry := func(t *testing.T) *softdelete.Registry {
		return softdelete.NewRegistry(cyclicMetadata(t), testutil.NewTestStore(t), softdelete.WithLogger(logger.Nop()))
	}

	t.Run("self reference", func(t *testing.T) {
		reg := newRegistry(t)
		err := reg.Declare("folder", softdelete.WithDependentRelations("parent"))
		assert.True(t, apperror.IsConfiguration(err))
		assert.False(t, reg.Registered("folder"))
	})

	t.Run("two entities", func(t *testing.T) {
		reg := newRegistry(t)
		require.NoError(t, reg.Declare("note", softdelete.WithDependentRelations("folder")))
		err := reg.Declare("folder", softdelete.WithDependentRelations("pinned_note"))
		assert.True(t, apperror.IsConfiguration(err))
		assert.False(t, reg.Registered("folder"))

		// the surviving registration still builds
		pred, err := reg.Visible("note")
		require.NoError(t, err)
		sql, _, err := pred.ToSql()
		require.NoError(t, err)
		assert.Equal(t, "(notes.soft_destroyed_at IS NULL AND notes.folder_id IN (SELECT folders.id FROM folders))", sql)
	})

	t.Run("reverse declaration order", func(t *testing.T) {
		reg := newRegistry(t)
		require.NoError(t, reg.Declare("folder", softdelete.WithDependentRelations("pinned_note")))
		err := reg.Declare("note", softdelete.WithDependentRelations("folder"))
		assert.True(t, apperror.IsConfiguration(err))
	})
}

func TestBind(t *testing.T) {
	f := newFixture(t)
	projects, _ := f.models(t)

	again, err := softdelete.Bind[*testutil.Project](f.reg, "project")
	require.NoError(t, err)
	assert.Same(t, projects, again)

	_, err = softdelete.Bind[*testutil.Task](f.reg, "project")
	assert.True(t, apperror.IsConfiguration(err))

	_, err = softdelete.Bind[*testutil.Account](f.reg, "account")
	assert.True(t, apperror.IsConfiguration(err))
}

func TestVerifySchema(t *testing.T) {
	ctx := context.Background()

	t.Run("matching schema", func(t *testing.T) {
		f := newFixture(t)
		f.models(t)
		assert.NoError(t, f.reg.VerifySchema(ctx, f.store))
	})

	t.Run("drifted schema", func(t *testing.T) {
		st := testutil.NewTestStore(t)
		meta := metadata.NewRegistry()
		meta.MustRegister(metadata.EntityDef{
			Name:  "project",
			Table: "projects",
			Columns: []metadata.ColumnDef{
				{Name: "id"},
				{Name: "deleted_at", Nullable: true},
			},
		}, metadata.EntityDef{
			Name:  "task",
			Table: "tasks",
			Columns: []metadata.ColumnDef{
				{Name: "id"},
				{Name: "title", Nullable: true},
				{Name: "project_ref"},
			},
			Relations: []metadata.RelationDef{
				{Name: "project", Kind: metadata.BelongsTo, Target: "project", ForeignKey: "project_ref"},
			},
		})

		reg := softdelete.NewRegistry(meta, st, softdelete.WithLogger(logger.Nop()))
		require.NoError(t, reg.Declare("project", softdelete.WithMarkerColumn("deleted_at")))
		require.NoError(t, reg.Declare("task",
			softdelete.WithMarkerColumn("title"),
			softdelete.WithDependentRelations("project"),
		))

		err := reg.VerifySchema(ctx, st)
		require.Error(t, err)
		assert.True(t, apperror.IsConfiguration(err))
		assert.Contains(t, err.Error(), `"deleted_at" missing`)
		assert.Contains(t, err.Error(), `"title" is NOT NULL`)
		assert.Contains(t, err.Error(), `"project_ref" missing`)
	})
}

func TestDeclareAll_IsAtomic(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.Declare("task", softdelete.WithDependentRelations("project")))

	err := f.reg.DeclareAll(
		softdelete.Declaration{Entity: "project", Options: softdelete.DefaultOptions()},
		softdelete.Declaration{Entity: "invoice", Options: softdelete.DefaultOptions()},
	)
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))
	assert.False(t, f.reg.Registered("project"))

	// task must not have been re-linked to the rejected project declaration.
	pred, err := f.reg.Visible("task")
	require.NoError(t, err)
	sql, _, err := pred.ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "projects.soft_destroyed_at")

	require.NoError(t, f.reg.DeclareAll(
		softdelete.Declaration{Entity: "project", Options: softdelete.DefaultOptions()},
	))
	pred, err = f.reg.Visible("task")
	require.NoError(t, err)
	sql, _, err = pred.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "projects.soft_destroyed_at IS NULL")
}

func TestRegister_RacingBindOfOtherType(t *testing.T) {
	st := testutil.NewTestStore(t)
	meta := testutil.NewMetadata(t)

	for i := 0; i < 50; i++ {
		reg := softdelete.NewRegistry(meta, st, softdelete.WithLogger(logger.Nop()))

		var (
			wg       sync.WaitGroup
			projects *softdelete.Model[*testutil.Project]
			regErr   error
			bindErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			projects, regErr = softdelete.Register[*testutil.Project](reg, "project")
		}()
		go func() {
			defer wg.Done()
			_, bindErr = softdelete.Bind[*testutil.Task](reg, "project")
		}()
		wg.Wait()

		require.NoError(t, regErr)
		assert.NotNil(t, projects)
		assert.True(t, apperror.IsConfiguration(bindErr))
	}
}
