// Package gormdb hosts the soft-delete engine on an existing *gorm.DB, for
// applications whose persistence layer is already gorm.
package gormdb

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"veil/internal/core/apperror"
	"veil/internal/core/store"
	"veil/internal/core/tx"
	"veil/internal/metadata"
)

var (
	_ store.Store        = (*Store)(nil)
	_ store.Introspector = (*Store)(nil)
	_ tx.Manager         = (*Store)(nil)
)

// OpenSQLite opens a gorm SQLite database with gorm's own logging silenced.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Store runs engine SQL through gorm's raw statements. gorm rewrites "?" into
// the dialect's placeholders, so predicates are always built with "?".
type Store struct {
	db *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

type txKey struct{}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if t, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return t.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// RunInTransaction executes fn within a gorm transaction. Nested calls join the
// outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, t))
	})
}

// Placeholder implements store.Store.
func (s *Store) Placeholder() squirrel.PlaceholderFormat {
	return squirrel.Question
}

// Exec implements store.Store.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	res := s.conn(ctx).Exec(sql, args...)
	if res.Error != nil {
		return 0, apperror.NewDatabase("exec", res.Error)
	}
	return res.RowsAffected, nil
}

// Exists implements store.Store.
func (s *Store) Exists(ctx context.Context, sql string, args ...any) (bool, error) {
	rows, err := s.conn(ctx).Raw(sql, args...).Rows()
	if err != nil {
		return false, apperror.NewDatabase("exists", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, apperror.NewDatabase("exists", err)
	}
	return found, nil
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	if err := s.conn(ctx).Raw(sql, args...).Row().Scan(&n); err != nil {
		return 0, apperror.NewDatabase("count", err)
	}
	return n, nil
}

// Select implements store.Store. Rows are mapped by "db" tags, not gorm's
// naming strategy, so the same record types work with every store.
func (s *Store) Select(ctx context.Context, dst any, sql string, args ...any) error {
	rows, err := s.conn(ctx).Raw(sql, args...).Rows()
	if err != nil {
		return apperror.NewDatabase("select", err)
	}
	if err := sqlscan.ScanAll(dst, rows); err != nil {
		return apperror.NewDatabase("select", err)
	}
	return nil
}

// Columns implements store.Introspector through gorm's migrator.
func (s *Store) Columns(ctx context.Context, table string) ([]metadata.ColumnDef, error) {
	m := s.conn(ctx).Migrator()
	if !m.HasTable(table) {
		return nil, apperror.NewNotFound("table", table)
	}

	types, err := m.ColumnTypes(table)
	if err != nil {
		return nil, apperror.NewDatabase("introspect "+table, err)
	}

	cols := make([]metadata.ColumnDef, 0, len(types))
	for _, ct := range types {
		nullable, ok := ct.Nullable()
		if !ok {
			nullable = true
		}
		cols = append(cols, metadata.ColumnDef{Name: ct.Name(), Nullable: nullable})
	}
	return cols, nil
}
