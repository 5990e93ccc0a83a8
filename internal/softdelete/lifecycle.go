package softdelete

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"veil/internal/core/apperror"
	"veil/internal/core/id"
	"veil/internal/core/store"
)

var tracer = otel.Tracer("veil/softdelete")

// Transition is a state change between Visible and Hidden.
type Transition string

const (
	TransitionHide    Transition = "hide"
	TransitionRestore Transition = "restore"
)

func (t Transition) events() (before, after HookEvent) {
	if t == TransitionHide {
		return BeforeHide, AfterHide
	}
	return BeforeRestore, AfterRestore
}

// outcome is the result of one transition. Failures are never rolled back:
// hooks that already ran stay applied.
type outcome[T any] struct {
	record T
	err    error
}

func (o outcome[T]) ok() bool { return o.err == nil }

// Hide sets the marker through the hook pipeline and returns the record.
// Any hook or mutation failure is returned as TRANSITION_FAILURE.
func (m *Model[T]) Hide(ctx context.Context, record T) (T, error) {
	o := m.transition(ctx, TransitionHide, record)
	return o.record, o.err
}

// TryHide is Hide reporting only success.
func (m *Model[T]) TryHide(ctx context.Context, record T) bool {
	return m.try(ctx, TransitionHide, record)
}

// Restore clears the marker through the hook pipeline and returns the record.
func (m *Model[T]) Restore(ctx context.Context, record T) (T, error) {
	o := m.transition(ctx, TransitionRestore, record)
	return o.record, o.err
}

// TryRestore is Restore reporting only success.
func (m *Model[T]) TryRestore(ctx context.Context, record T) bool {
	return m.try(ctx, TransitionRestore, record)
}

func (m *Model[T]) try(ctx context.Context, t Transition, record T) bool {
	o := m.transition(ctx, t, record)
	if !o.ok() {
		m.reg.log.WithContext(ctx).Debugw("soft delete transition failed",
			"entity", m.node.def.Name,
			"transition", string(t),
			"id", record.RecordID().String(),
			"error", o.err,
		)
	}
	return o.ok()
}

func (m *Model[T]) transition(ctx context.Context, t Transition, record T) outcome[T] {
	def := m.node.def
	recordID := record.RecordID()

	ctx, span := tracer.Start(ctx, "softdelete."+string(t),
		trace.WithAttributes(
			attribute.String("softdelete.entity", def.Name),
			attribute.String("softdelete.id", recordID.String()),
		))
	defer span.End()

	fail := func(err error) outcome[T] {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome[T]{
			record: record,
			err:    apperror.NewTransitionFailure(def.Name, string(t), recordID.String(), err),
		}
	}

	before, after := t.events()
	if err := m.hooks.Run(ctx, before, record); err != nil {
		return fail(err)
	}

	var marker *time.Time
	if t == TransitionHide {
		now := m.node.clock.Now().UTC()
		marker = &now
	}
	if err := m.mutate(ctx, recordID, marker); err != nil {
		return fail(err)
	}
	if s, ok := any(record).(MarkerSetter); ok {
		s.SetSoftDeleteMarker(marker)
	}

	if err := m.hooks.Run(ctx, after, record); err != nil {
		return fail(err)
	}

	m.reg.log.WithContext(ctx).Debugw("soft delete transition",
		"entity", def.Name,
		"transition", string(t),
		"id", recordID.String(),
	)
	return outcome[T]{record: record}
}

// mutate writes the marker column of one row, skipping validation and every
// other column.
func (m *Model[T]) mutate(ctx context.Context, recordID id.ID, marker *time.Time) error {
	def := m.node.def

	var value any
	if marker != nil {
		value = *marker
	}

	q := store.Builder(m.reg.store).
		Update(def.Table).
		Set(m.node.marker, value).
		Where(squirrel.Eq{def.PrimaryKey(): recordID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	affected, err := m.reg.store.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", def.Table, err)
	}
	if affected == 0 {
		return apperror.NewNotFound(def.Name, recordID.String())
	}
	return nil
}

// IsHidden evaluates the hidden-only predicate for the record's row, so a
// hidden ancestor counts even when the record's own marker is unset.
func (m *Model[T]) IsHidden(ctx context.Context, record T) (bool, error) {
	def := m.node.def

	q := store.Builder(m.reg.store).
		Select("1").
		From(def.Table).
		Where(squirrel.Eq{def.Qualified(def.PrimaryKey()): record.RecordID()}).
		Where(m.HiddenOnly()).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	hidden, err := m.reg.store.Exists(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("is hidden %s: %w", def.Table, err)
	}
	return hidden, nil
}

// HideAll hides every row matching filter (all rows when nil) one instance at a
// time, so hooks observe each record. Individual failures do not stop the loop.
func (m *Model[T]) HideAll(ctx context.Context, filter squirrel.Sqlizer) error {
	return m.transitionAll(ctx, TransitionHide, filter)
}

// RestoreAll restores every row matching filter one instance at a time.
func (m *Model[T]) RestoreAll(ctx context.Context, filter squirrel.Sqlizer) error {
	return m.transitionAll(ctx, TransitionRestore, filter)
}

func (m *Model[T]) transitionAll(ctx context.Context, t Transition, filter squirrel.Sqlizer) error {
	records, err := m.Find(ctx, filter)
	if err != nil {
		return err
	}

	failed := 0
	for _, record := range records {
		if !m.try(ctx, t, record) {
			failed++
		}
	}

	m.reg.log.WithContext(ctx).Debugw("soft delete bulk transition",
		"entity", m.node.def.Name,
		"transition", string(t),
		"matched", len(records),
		"failed", failed,
	)
	return nil
}
