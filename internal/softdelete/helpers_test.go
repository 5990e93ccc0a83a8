package softdelete_test

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"veil/internal/core/id"
	"veil/internal/infrastructure/storage/sqlite"
	"veil/internal/metadata"
	"veil/internal/softdelete"
	"veil/internal/testutil"
	"veil/pkg/logger"
)

type fixture struct {
	ctx   context.Context
	store *sqlite.Store
	meta  *metadata.Registry
	reg   *softdelete.Registry
	clock *testutil.StubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.NewTestStore(t)
	meta := testutil.NewMetadata(t)
	return &fixture{
		ctx:   context.Background(),
		store: st,
		meta:  meta,
		reg:   softdelete.NewRegistry(meta, st, softdelete.WithLogger(logger.Nop())),
		clock: testutil.FixedClock(),
	}
}

// models registers project (soft) and task depending on project and account.
func (f *fixture) models(t *testing.T, taskDependents ...string) (*softdelete.Model[*testutil.Project], *softdelete.Model[*testutil.Task]) {
	t.Helper()
	if len(taskDependents) == 0 {
		taskDependents = []string{"project", "account"}
	}
	projects, err := softdelete.Register[*testutil.Project](f.reg, "project", softdelete.WithClock(f.clock))
	require.NoError(t, err)
	tasks, err := softdelete.Register[*testutil.Task](f.reg, "task",
		softdelete.WithDependentRelations(taskDependents...),
		softdelete.WithClock(f.clock),
	)
	require.NoError(t, err)
	return projects, tasks
}

func (f *fixture) account(t *testing.T) *testutil.Account {
	t.Helper()
	a := &testutil.Account{ID: id.New(), Name: "acme"}
	testutil.Insert(t, f.store, "accounts", map[string]any{"id": a.ID, "name": a.Name})
	return a
}

func (f *fixture) project(t *testing.T) *testutil.Project {
	t.Helper()
	p := &testutil.Project{ID: id.New(), Name: "roadmap"}
	testutil.Insert(t, f.store, "projects", map[string]any{"id": p.ID, "name": p.Name})
	return p
}

func (f *fixture) task(t *testing.T, p *testutil.Project, a *testutil.Account) *testutil.Task {
	t.Helper()
	task := &testutil.Task{ID: id.New(), Title: "write docs"}
	values := map[string]any{"id": task.ID, "title": task.Title}
	if p != nil {
		task.ProjectID = &p.ID
		values["project_id"] = p.ID
	}
	if a != nil {
		task.AccountID = &a.ID
		values["account_id"] = a.ID
	}
	testutil.Insert(t, f.store, "tasks", values)
	return task
}

// ids runs q and returns the selected ids.
func (f *fixture) ids(t *testing.T, q squirrel.SelectBuilder) []id.ID {
	t.Helper()
	query, args, err := q.ToSql()
	require.NoError(t, err)
	var out []id.ID
	require.NoError(t, f.store.Select(f.ctx, &out, query, args...))
	return out
}

// rawMarker reads a marker column directly, bypassing every predicate.
func (f *fixture) rawMarker(t *testing.T, table string, rowID id.ID) *time.Time {
	t.Helper()
	var marker *time.Time
	err := f.store.DB().QueryRow("SELECT soft_destroyed_at FROM "+table+" WHERE id = ?", rowID).Scan(&marker)
	require.NoError(t, err)
	return marker
}
