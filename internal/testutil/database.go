// Package testutil provides an in-memory SQLite fixture schema, matching record
// types and a stub clock for package tests.
package testutil

import (
	"testing"

	"github.com/Masterminds/squirrel"

	"veil/internal/infrastructure/storage/sqlite"
)

// Schema is the fixture schema. Foreign keys are plain columns without
// constraints so tests can hard-delete parents and leave dangling references.
const Schema = `
CREATE TABLE accounts (
	id   TEXT PRIMARY KEY NOT NULL,
	name TEXT NOT NULL
);

CREATE TABLE projects (
	id                TEXT PRIMARY KEY NOT NULL,
	name              TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	soft_destroyed_at TIMESTAMP,
	archived_at       TIMESTAMP
);

CREATE TABLE tasks (
	id                TEXT PRIMARY KEY NOT NULL,
	project_id        TEXT,
	account_id        TEXT,
	title             TEXT NOT NULL,
	soft_destroyed_at TIMESTAMP
);

CREATE TABLE regions (
	id                TEXT PRIMARY KEY NOT NULL,
	soft_destroyed_at TIMESTAMP
);
CREATE TABLE sites (
	id                TEXT PRIMARY KEY NOT NULL,
	parent_id         TEXT,
	soft_destroyed_at TIMESTAMP
);
CREATE TABLE buildings (
	id                TEXT PRIMARY KEY NOT NULL,
	parent_id         TEXT,
	soft_destroyed_at TIMESTAMP
);
CREATE TABLE floors (
	id                TEXT PRIMARY KEY NOT NULL,
	parent_id         TEXT,
	soft_destroyed_at TIMESTAMP
);
CREATE TABLE rooms (
	id                TEXT PRIMARY KEY NOT NULL,
	parent_id         TEXT,
	soft_destroyed_at TIMESTAMP
);
CREATE TABLE desks (
	id                TEXT PRIMARY KEY NOT NULL,
	parent_id         TEXT,
	soft_destroyed_at TIMESTAMP
);

CREATE TABLE soft_delete_journal (
	id                  TEXT PRIMARY KEY NOT NULL,
	entity              TEXT NOT NULL,
	entity_id           TEXT NOT NULL,
	action              TEXT NOT NULL,
	snapshot            TEXT,
	snapshot_compressed BLOB,
	compression         TEXT NOT NULL,
	recorded_at         TIMESTAMP NOT NULL
);
CREATE INDEX idx_soft_delete_journal_entity ON soft_delete_journal (entity, entity_id, recorded_at);
`

// NewTestStore creates an in-memory SQLite store with Schema applied.
// The database is closed when the test completes.
func NewTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	db, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	s := sqlite.NewStore(db)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// Insert adds one row.
func Insert(t *testing.T, s *sqlite.Store, table string, values map[string]any) {
	t.Helper()

	query, args, err := squirrel.Insert(table).SetMap(values).ToSql()
	if err != nil {
		t.Fatalf("build insert into %s: %v", table, err)
	}
	if _, err := s.DB().Exec(query, args...); err != nil {
		t.Fatalf("insert into %s: %v", table, err)
	}
}

// Delete hard-deletes one row by id.
func Delete(t *testing.T, s *sqlite.Store, table string, rowID any) {
	t.Helper()

	query, args, err := squirrel.Delete(table).Where(squirrel.Eq{"id": rowID}).ToSql()
	if err != nil {
		t.Fatalf("build delete from %s: %v", table, err)
	}
	if _, err := s.DB().Exec(query, args...); err != nil {
		t.Fatalf("delete from %s: %v", table, err)
	}
}
