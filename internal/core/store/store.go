// Package store defines the storage collaborator the soft-delete engine consumes.
// The engine composes predicates with squirrel and hands finished SQL to a Store;
// it never talks to a driver directly. Implementations live in
// internal/infrastructure/storage.
package store

import (
	"context"

	"github.com/Masterminds/squirrel"

	"veil/internal/metadata"
)

// Store executes SQL produced by the predicate builder.
//
// Implementations must run statements inside the transaction carried by ctx, if any,
// so callers can group several transitions.
type Store interface {
	// Placeholder returns the bind-variable format of the underlying dialect.
	Placeholder() squirrel.PlaceholderFormat

	// Exec runs a mutation and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Exists reports whether the query returns at least one row.
	Exists(ctx context.Context, sql string, args ...any) (bool, error)

	// Count runs a single-value COUNT query.
	Count(ctx context.Context, sql string, args ...any) (int64, error)

	// Select scans all rows into dst, a pointer to a slice of structs (or of
	// pointers to structs) whose fields carry "db" tags.
	Select(ctx context.Context, dst any, sql string, args ...any) error
}

// Introspector reports the live columns of a table. Stores that can read their
// catalog implement it; it is used to verify declared metadata against the database.
type Introspector interface {
	Columns(ctx context.Context, table string) ([]metadata.ColumnDef, error)
}

// Builder returns a squirrel statement builder in s's placeholder format.
func Builder(s Store) squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(s.Placeholder())
}
