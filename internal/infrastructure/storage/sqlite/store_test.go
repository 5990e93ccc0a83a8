package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/core/apperror"
	"veil/internal/metadata"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_Placeholder(t *testing.T) {
	s, _ := newMockStore(t)
	assert.Equal(t, squirrel.Question, s.Placeholder())
}

func TestStore_Exec(t *testing.T) {
	ctx := context.Background()

	t.Run("returns affected rows", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE comments SET soft_destroyed_at = ? WHERE id = ?")).
			WithArgs(nil, "c1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := s.Exec(ctx, "UPDATE comments SET soft_destroyed_at = ? WHERE id = ?", nil, "c1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE").WillReturnError(errors.New("disk I/O error"))

		_, err := s.Exec(ctx, "UPDATE comments SET soft_destroyed_at = NULL")
		require.Error(t, err)
		assert.True(t, apperror.IsDatabase(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Exists(t *testing.T) {
	ctx := context.Background()

	t.Run("row found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		ok, err := s.Exists(ctx, "SELECT 1 FROM comments LIMIT 1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no rows", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}))

		ok, err := s.Exists(ctx, "SELECT 1 FROM comments LIMIT 1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("query error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("boom"))

		_, err := s.Exists(ctx, "SELECT 1 FROM comments LIMIT 1")
		assert.True(t, apperror.IsDatabase(err))
	})
}

func TestStore_Count(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM comments")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.Count(context.Background(), "SELECT COUNT(*) FROM comments")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestStore_Select(t *testing.T) {
	type row struct {
		ID   string `db:"id"`
		Body string `db:"body"`
	}

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, body FROM comments").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).
			AddRow("c1", "first").
			AddRow("c2", "second"))

	var rows []row
	err := s.Select(context.Background(), &rows, "SELECT id, body FROM comments")
	require.NoError(t, err)
	assert.Equal(t, []row{{"c1", "first"}, {"c2", "second"}}, rows)
}

func TestStore_RunInTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and routes statements through the tx", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE posts").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE comments").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := s.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.Exec(ctx, "UPDATE posts SET soft_destroyed_at = NULL"); err != nil {
				return err
			}
			// nested call joins the outer transaction
			return s.RunInTransaction(ctx, func(ctx context.Context) error {
				_, err := s.Exec(ctx, "UPDATE comments SET soft_destroyed_at = NULL")
				return err
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		want := errors.New("hook failed")
		err := s.RunInTransaction(ctx, func(ctx context.Context) error { return want })
		assert.ErrorIs(t, err, want)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Columns(t *testing.T) {
	ctx := context.Background()

	t.Run("against a real database", func(t *testing.T) {
		db, err := Open(MemoryPath)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		_, err = db.Exec(`CREATE TABLE posts (
			id TEXT PRIMARY KEY NOT NULL,
			title TEXT NOT NULL,
			soft_destroyed_at TIMESTAMP
		)`)
		require.NoError(t, err)

		cols, err := NewStore(db).Columns(ctx, "posts")
		require.NoError(t, err)
		assert.Equal(t, []metadata.ColumnDef{
			{Name: "id", Nullable: false},
			{Name: "title", Nullable: false},
			{Name: "soft_destroyed_at", Nullable: true},
		}, cols)
	})

	t.Run("unknown table", func(t *testing.T) {
		db, err := Open(MemoryPath)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		_, err = NewStore(db).Columns(ctx, "missing")
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestOpen_EnforcesForeignKeys(t *testing.T) {
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var on int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)
}
