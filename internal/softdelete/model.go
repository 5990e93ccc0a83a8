package softdelete

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/Masterminds/squirrel"

	"veil/internal/core/apperror"
	"veil/internal/core/id"
	"veil/internal/core/store"
	"veil/internal/metadata"
)

// Record is an instance of a soft-deletable entity.
type Record interface {
	RecordID() id.ID
}

// MarkerSetter is implemented by records that mirror the marker column in memory.
// The engine calls it after a successful mutation; it is the only write path to
// the in-memory marker.
type MarkerSetter interface {
	SetSoftDeleteMarker(at *time.Time)
}

// Model is the soft-delete capability bundle of one entity type: its
// predicates, its transitions and its hook pipeline.
type Model[T Record] struct {
	reg     *Registry
	node    *node
	hooks   *HookRegistry[T]
	columns []string
}

// Register enables soft delete for entity and binds it to record type T. The
// declaration and the binding happen atomically.
func Register[T Record](reg *Registry, entity string, opts ...Option) (*Model[T], error) {
	return RegisterWithOptions[T](reg, entity, buildOptions(opts))
}

// RegisterWithOptions is Register with an explicit Options value.
func RegisterWithOptions[T Record](reg *Registry, entity string, opts Options) (*Model[T], error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if err := reg.declareLocked(entity, opts); err != nil {
		return nil, err
	}
	return bindLocked[T](reg, entity)
}

// Bind returns the Model of an already declared entity for record type T.
// Binding the same entity twice with the same T returns the same Model, so hooks
// keep accumulating on one pipeline.
func Bind[T Record](reg *Registry, entity string) (*Model[T], error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return bindLocked[T](reg, entity)
}

// bindLocked is Bind with reg.mu held.
func bindLocked[T Record](reg *Registry, entity string) (*Model[T], error) {
	n, ok := reg.nodes[entity]
	if !ok {
		return nil, apperror.NewConfiguration(entity, "soft delete is not enabled")
	}

	if existing, ok := reg.models[entity]; ok {
		m, ok := existing.(*Model[T])
		if !ok {
			return nil, apperror.NewConfiguration(entity, fmt.Sprintf("entity is bound to %T", existing))
		}
		return m, nil
	}

	m := &Model[T]{
		reg:     reg,
		node:    n,
		hooks:   NewHookRegistry[T](),
		columns: selectColumns[T](n.def),
	}
	reg.models[entity] = m
	return m, nil
}

// selectColumns lists the columns used to materialise T: its db-tagged fields
// that exist on the entity, or every declared column when T carries no tags.
func selectColumns[T any](def metadata.EntityDef) []string {
	var zero T
	var cols []string
	for _, c := range metadata.DBColumns(reflect.TypeOf(zero)) {
		if _, ok := def.Column(c); ok {
			cols = append(cols, c)
		}
	}
	if len(cols) > 0 {
		return cols
	}
	for _, c := range def.Columns {
		cols = append(cols, c.Name)
	}
	return cols
}

// Entity returns the entity definition.
func (m *Model[T]) Entity() metadata.EntityDef {
	return m.node.def
}

// MarkerColumn returns the hidden-marker column name.
func (m *Model[T]) MarkerColumn() string {
	return m.node.marker
}

// Visible returns the predicate selecting rows that are not hidden and have no
// hidden (or missing) ancestor. Placeholders are "?"; compose it into a builder
// of the target dialect.
func (m *Model[T]) Visible() squirrel.Sqlizer {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	return m.node.visible()
}

// HiddenOnly returns the complement of Visible over existing rows.
func (m *Model[T]) HiddenOnly() squirrel.Sqlizer {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	return m.node.hiddenOnly()
}

// SelectVisible starts a query over visible rows in the store's dialect.
// Without columns, every column mapped by T is selected.
func (m *Model[T]) SelectVisible(columns ...string) squirrel.SelectBuilder {
	return m.selectFrom(columns).Where(m.Visible())
}

// SelectHiddenOnly starts a query over hidden rows in the store's dialect.
func (m *Model[T]) SelectHiddenOnly(columns ...string) squirrel.SelectBuilder {
	return m.selectFrom(columns).Where(m.HiddenOnly())
}

func (m *Model[T]) selectFrom(columns []string) squirrel.SelectBuilder {
	if len(columns) == 0 {
		columns = m.columns
	}
	return store.Builder(m.reg.store).Select(columns...).From(m.node.def.Table)
}

// CountVisible counts visible rows, optionally narrowed by filter.
func (m *Model[T]) CountVisible(ctx context.Context, filter squirrel.Sqlizer) (int64, error) {
	return m.count(ctx, m.Visible(), filter)
}

// CountHiddenOnly counts hidden rows, optionally narrowed by filter.
func (m *Model[T]) CountHiddenOnly(ctx context.Context, filter squirrel.Sqlizer) (int64, error) {
	return m.count(ctx, m.HiddenOnly(), filter)
}

func (m *Model[T]) count(ctx context.Context, pred, filter squirrel.Sqlizer) (int64, error) {
	q := store.Builder(m.reg.store).
		Select("COUNT(*)").
		From(m.node.def.Table).
		Where(pred)
	if filter != nil {
		q = q.Where(filter)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	n, err := m.reg.store.Count(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m.node.def.Table, err)
	}
	return n, nil
}

// Find loads the rows matching filter (all rows when nil), hidden or not.
func (m *Model[T]) Find(ctx context.Context, filter squirrel.Sqlizer) ([]T, error) {
	q := m.selectFrom(nil)
	if filter != nil {
		q = q.Where(filter)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var records []T
	if err := m.reg.store.Select(ctx, &records, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", m.node.def.Table, err)
	}
	return records, nil
}

// BeforeHide appends a hook run before the marker is set.
func (m *Model[T]) BeforeHide(fn Hook[T]) { m.hooks.On(BeforeHide, fn) }

// AfterHide appends a hook run after the marker is set.
func (m *Model[T]) AfterHide(fn Hook[T]) { m.hooks.On(AfterHide, fn) }

// BeforeRestore appends a hook run before the marker is cleared.
func (m *Model[T]) BeforeRestore(fn Hook[T]) { m.hooks.On(BeforeRestore, fn) }

// AfterRestore appends a hook run after the marker is cleared.
func (m *Model[T]) AfterRestore(fn Hook[T]) { m.hooks.On(AfterRestore, fn) }
