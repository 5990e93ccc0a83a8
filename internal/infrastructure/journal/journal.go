// Package journal records soft-delete transitions in an append-only table.
// It plugs into a softdelete.Model as after-hooks, so an entry is written only
// once the marker mutation has succeeded.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/klauspost/compress/zstd"

	"veil/internal/core/apperror"
	"veil/internal/core/id"
	"veil/internal/core/store"
	"veil/internal/softdelete"
)

// DefaultTable is the journal table name.
const DefaultTable = "soft_delete_journal"

// Action is the journaled transition.
type Action string

const (
	ActionHide    Action = "hide"
	ActionRestore Action = "restore"
)

// Compression specifies how a snapshot is stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// Entry is a journal row. Snapshot holds the JSON of the record as it was after
// the transition; large snapshots are stored in SnapshotCompressed instead.
type Entry struct {
	ID                 id.ID       `db:"id"`
	Entity             string      `db:"entity"`
	EntityID           id.ID       `db:"entity_id"`
	Action             Action      `db:"action"`
	Snapshot           []byte      `db:"snapshot"`
	SnapshotCompressed []byte      `db:"snapshot_compressed"`
	Compression        Compression `db:"compression"`
	RecordedAt         time.Time   `db:"recorded_at"`
}

var columns = []string{
	"id", "entity", "entity_id", "action",
	"snapshot", "snapshot_compressed", "compression", "recorded_at",
}

// Recorder writes and reads journal entries through a store.
type Recorder struct {
	store             store.Store
	table             string
	clock             softdelete.Clock
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithTable overrides the journal table.
func WithTable(table string) Option {
	return func(r *Recorder) { r.table = table }
}

// WithClock overrides the clock stamping entries.
func WithClock(c softdelete.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithCompressThreshold sets the snapshot size in bytes above which snapshots
// are zstd-compressed. Zero compresses every snapshot.
func WithCompressThreshold(n int) Option {
	return func(r *Recorder) { r.compressThreshold = n }
}

// NewRecorder creates a recorder over st.
func NewRecorder(st store.Store, opts ...Option) (*Recorder, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	r := &Recorder{
		store:             st,
		table:             DefaultTable,
		clock:             softdelete.RealClock{},
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases the zstd encoder and decoder. The Recorder must not be used
// afterwards.
func (r *Recorder) Close() error {
	r.decoder.Close()
	if err := r.encoder.Close(); err != nil {
		return fmt.Errorf("close zstd encoder: %w", err)
	}
	return nil
}

// Attach journals every successful hide and restore of m.
func Attach[T softdelete.Record](r *Recorder, m *softdelete.Model[T]) {
	entity := m.Entity().Name
	m.AfterHide(Hook[T](r, entity, ActionHide))
	m.AfterRestore(Hook[T](r, entity, ActionRestore))
}

// Hook returns an after-hook appending an entry for entity. A failed write
// fails the transition.
func Hook[T softdelete.Record](r *Recorder, entity string, action Action) softdelete.Hook[T] {
	return func(ctx context.Context, record T) error {
		snapshot, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		return r.Append(ctx, Entry{
			Entity:   entity,
			EntityID: record.RecordID(),
			Action:   action,
			Snapshot: snapshot,
		})
	}
}

// Append writes one entry.
func (r *Recorder) Append(ctx context.Context, e Entry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = r.clock.Now().UTC()
	}

	e.Compression = CompressionNone
	if len(e.Snapshot) > r.compressThreshold {
		e.SnapshotCompressed = r.encoder.EncodeAll(e.Snapshot, nil)
		e.Snapshot = nil
		e.Compression = CompressionZstd
	}

	// Nil slices must reach the driver as NULL, not as an empty blob.
	var snapshot, compressed any
	if e.Snapshot != nil {
		snapshot = string(e.Snapshot)
	}
	if e.SnapshotCompressed != nil {
		compressed = e.SnapshotCompressed
	}

	q := store.Builder(r.store).
		Insert(r.table).
		Columns(columns...).
		Values(e.ID, e.Entity, e.EntityID, string(e.Action), snapshot, compressed, string(e.Compression), e.RecordedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.store.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// History returns the newest entries for one record, snapshots decompressed.
// A non-positive limit returns every entry.
func (r *Recorder) History(ctx context.Context, entity string, entityID id.ID, limit int) ([]Entry, error) {
	q := store.Builder(r.store).
		Select(columns...).
		From(r.table).
		Where(squirrel.Eq{"entity": entity, "entity_id": entityID}).
		OrderBy("recorded_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []Entry
	if err := r.store.Select(ctx, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.Compression != CompressionZstd || len(e.SnapshotCompressed) == 0 {
			continue
		}
		raw, err := r.decoder.DecodeAll(e.SnapshotCompressed, nil)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("decompress snapshot %s: %w", e.ID, err))
		}
		e.Snapshot = raw
		e.SnapshotCompressed = nil
	}
	return entries, nil
}
