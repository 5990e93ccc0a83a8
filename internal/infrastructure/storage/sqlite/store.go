package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"veil/internal/core/apperror"
	"veil/internal/core/store"
	"veil/internal/core/tx"
	"veil/internal/metadata"
	"veil/pkg/logger"
)

var (
	_ store.Store        = (*Store)(nil)
	_ store.Introspector = (*Store)(nil)
	_ tx.Manager         = (*Store)(nil)
)

// Store runs engine SQL through database/sql. It also works over any other
// driver speaking "?" placeholders.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) querier {
	if t, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return t
	}
	return s.db
}

// RunInTransaction executes fn within a transaction. Nested calls join the
// outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Placeholder implements store.Store.
func (s *Store) Placeholder() squirrel.PlaceholderFormat {
	return squirrel.Question
}

// Exec implements store.Store.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperror.NewDatabase("exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.NewDatabase("rows affected", err)
	}
	return n, nil
}

// Exists implements store.Store.
func (s *Store) Exists(ctx context.Context, query string, args ...any) (bool, error) {
	var v any
	err := s.querier(ctx).QueryRowContext(ctx, query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperror.NewDatabase("exists", err)
	}
	return true, nil
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.querier(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperror.NewDatabase("count", err)
	}
	return n, nil
}

// Select implements store.Store.
func (s *Store) Select(ctx context.Context, dst any, query string, args ...any) error {
	if err := sqlscan.Select(ctx, s.querier(ctx), dst, query, args...); err != nil {
		return apperror.NewDatabase("select", err)
	}
	return nil
}

type columnInfo struct {
	Name    string `db:"name"`
	NotNull bool   `db:"notnull"`
}

// Columns implements store.Introspector.
func (s *Store) Columns(ctx context.Context, table string) ([]metadata.ColumnDef, error) {
	var rows []columnInfo
	err := sqlscan.Select(ctx, s.querier(ctx), &rows,
		`SELECT name, "notnull" FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, apperror.NewDatabase("introspect "+table, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NewNotFound("table", table)
	}

	cols := make([]metadata.ColumnDef, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, metadata.ColumnDef{Name: r.Name, Nullable: !r.NotNull})
	}
	return cols, nil
}
