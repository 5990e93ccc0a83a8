package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"veil/internal/core/apperror"
	"veil/internal/core/store"
	"veil/internal/metadata"
)

var (
	_ store.Store        = (*Store)(nil)
	_ store.Introspector = (*Store)(nil)
)

// Store runs engine SQL on PostgreSQL, inside the context's transaction when present.
type Store struct {
	txm *TxManager
}

// NewStore creates a store over the transaction manager.
func NewStore(txm *TxManager) *Store {
	return &Store{txm: txm}
}

// Placeholder implements store.Store.
func (s *Store) Placeholder() squirrel.PlaceholderFormat {
	return squirrel.Dollar
}

// Exec implements store.Store.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase("exec", err)
	}
	return tag.RowsAffected(), nil
}

// Exists implements store.Store.
func (s *Store) Exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var v any
	err := s.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperror.NewDatabase("exists", err)
	}
	return true, nil
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	if err := s.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, apperror.NewDatabase("count", err)
	}
	return n, nil
}

// Select implements store.Store.
func (s *Store) Select(ctx context.Context, dst any, sql string, args ...any) error {
	if err := pgxscan.Select(ctx, s.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		return apperror.NewDatabase("select", err)
	}
	return nil
}

type columnInfo struct {
	Name       string `db:"column_name"`
	IsNullable string `db:"is_nullable"`
}

// Columns implements store.Introspector from information_schema of the
// current search path.
func (s *Store) Columns(ctx context.Context, table string) ([]metadata.ColumnDef, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("column_name", "is_nullable").
		From("information_schema.columns").
		Where(squirrel.Eq{"table_name": table}).
		Where("table_schema = ANY(current_schemas(false))").
		OrderBy("ordinal_position")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []columnInfo
	if err := pgxscan.Select(ctx, s.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, apperror.NewDatabase("introspect "+table, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NewNotFound("table", table)
	}

	cols := make([]metadata.ColumnDef, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, metadata.ColumnDef{Name: r.Name, Nullable: r.IsNullable == "YES"})
	}
	return cols, nil
}
