package softdelete

import (
	"time"
)

// DefaultMarkerColumn is the hidden-marker column used when none is configured.
const DefaultMarkerColumn = "soft_destroyed_at"

// Clock abstracts time retrieval so hide timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Options configures the soft-delete registration of one entity type.
type Options struct {
	// MarkerColumn is the nullable column whose nullness decides visibility.
	MarkerColumn string

	// DependentRelations lists belongs_to relationships whose parent must be
	// visible for a row to be visible. Order is preserved in the predicate.
	DependentRelations []string

	// Clock stamps the marker on hide.
	Clock Clock
}

// DefaultOptions returns the conventional marker column and no dependents.
func DefaultOptions() Options {
	return Options{
		MarkerColumn: DefaultMarkerColumn,
		Clock:        RealClock{},
	}
}

// Option mutates Options.
type Option func(*Options)

// WithMarkerColumn overrides the hidden-marker column.
func WithMarkerColumn(column string) Option {
	return func(o *Options) { o.MarkerColumn = column }
}

// WithDependentRelations appends dependent relationship names.
func WithDependentRelations(names ...string) Option {
	return func(o *Options) { o.DependentRelations = append(o.DependentRelations, names...) }
}

// WithClock overrides the clock used to stamp hidden rows.
func WithClock(c Clock) Option {
	return func(o *Options) { o.Clock = c }
}

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
