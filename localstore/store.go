// Package localstore persists sync records in an embedded SQLite database.
//
// It is the only component allowed to touch the local database. All writes
// are local-only and never trigger network I/O. Records are soft-deleted,
// never removed, so tombstones stay visible to the watermark scan.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/solidSpoon/DashChat/entity"
)

// ErrValidation marks a record rejected at the store boundary before any
// persistence happens (for example a message without a chat id).
var ErrValidation = errors.New("invalid record")

// DefaultTombstoneWindow is how long a soft-deleted record keeps showing up
// in ListActiveIncludingRecentTombstones, so a fresh deletion still lands
// in the next push batch.
const DefaultTombstoneWindow = 24 * time.Hour

// tableSpec describes how one entity kind maps onto its SQLite table.
// The seven sync-metadata columns are shared; extras are per-kind.
type tableSpec[R entity.Record] struct {
	table     string
	extraCols []string
	extraVals func(R) []any
	extraDest func(R) []any
	newRecord func() R
	validate  func(R) error
}

// Store is the per-kind local store adapter.
type Store[R entity.Record] struct {
	db     *sql.DB
	spec   tableSpec[R]
	logger *slog.Logger
	now    func() time.Time
}

const metaCols = "id, author_id, deleted, client_created_at, client_updated_at, server_created_at, server_updated_at"

func (s *Store[R]) selectCols() string {
	cols := metaCols
	for _, c := range s.spec.extraCols {
		cols += ", " + c
	}
	return cols
}

func (s *Store[R]) scanRecord(rows *sql.Rows) (R, error) {
	rec := s.spec.newRecord()
	m := rec.Meta()

	var ccAt, cuAt, scAt, suAt string
	dest := []any{&m.ID, &m.AuthorID, &m.Deleted, &ccAt, &cuAt, &scAt, &suAt}
	dest = append(dest, s.spec.extraDest(rec)...)
	if err := rows.Scan(dest...); err != nil {
		return rec, fmt.Errorf("failed to scan %s row: %w", s.spec.table, err)
	}

	var err error
	if m.ClientCreatedAt, err = entity.ParseTime(ccAt); err != nil {
		return rec, err
	}
	if m.ClientUpdatedAt, err = entity.ParseTime(cuAt); err != nil {
		return rec, err
	}
	if m.ServerCreatedAt, err = entity.ParseTime(scAt); err != nil {
		return rec, err
	}
	if m.ServerUpdatedAt, err = entity.ParseTime(suAt); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Store[R]) queryRecords(ctx context.Context, query string, args ...any) ([]R, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.spec.table, err)
	}
	defer rows.Close()

	var out []R
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", s.spec.table, err)
	}
	return out, nil
}

// ListActive returns all records with deleted=false.
func (s *Store[R]) ListActive(ctx context.Context) ([]R, error) {
	return s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE deleted = 0`, s.selectCols(), s.spec.table))
}

// ListActiveIncludingRecentTombstones returns active records plus those
// soft-deleted within window of now. Recent tombstones must remain visible
// so the deletion itself propagates on the next push.
func (s *Store[R]) ListActiveIncludingRecentTombstones(ctx context.Context, window time.Duration) ([]R, error) {
	cutoff := entity.FormatTime(s.now().Add(-window))
	return s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE deleted = 0 OR client_updated_at > ?`, s.selectCols(), s.spec.table),
		cutoff)
}

// ListChangedSince returns records whose clientUpdatedAt is strictly after
// the given timestamp - the set this replica still has to push.
func (s *Store[R]) ListChangedSince(ctx context.Context, after time.Time) ([]R, error) {
	return s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE client_updated_at > ?`, s.selectCols(), s.spec.table),
		entity.FormatTime(after))
}

// Get loads one record by id. The second return value reports presence.
func (s *Store[R]) Get(ctx context.Context, id string) (R, bool, error) {
	recs, err := s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = ?`, s.selectCols(), s.spec.table), id)
	if err != nil {
		var zero R
		return zero, false, err
	}
	if len(recs) == 0 {
		var zero R
		return zero, false, nil
	}
	return recs[0], true, nil
}

// MaxServerUpdatedAt returns the sync watermark: the maximum
// serverUpdatedAt across all locally known records of this kind, or
// EpochZero if none exist.
func (s *Store[R]) MaxServerUpdatedAt(ctx context.Context) (time.Time, error) {
	var maxAt sql.NullString
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT MAX(server_updated_at) FROM %s`, s.spec.table)).Scan(&maxAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to compute watermark for %s: %w", s.spec.table, err)
	}
	if !maxAt.Valid {
		return entity.EpochZero, nil
	}
	return entity.ParseTime(maxAt.String)
}

// Put upserts a record by id, stamping clientUpdatedAt to now regardless of
// the caller-supplied value. This is the user-mutation write path; the sync
// engine uses Apply instead.
func (s *Store[R]) Put(ctx context.Context, rec R) error {
	if s.spec.validate != nil {
		if err := s.spec.validate(rec); err != nil {
			return err
		}
	}
	rec.Meta().ClientUpdatedAt = s.now()
	return s.upsert(ctx, s.db, rec)
}

// SoftDelete tombstones a record: deleted=true plus a fresh
// clientUpdatedAt stamp. The row itself is retained.
func (s *Store[R]) SoftDelete(ctx context.Context, rec R) error {
	rec.Meta().Deleted = true
	return s.Put(ctx, rec)
}

// Apply upserts a record preserving all caller-supplied timestamps. The
// reconciliation engine uses it to write back pulled and merged records
// without making them look locally modified again.
func (s *Store[R]) Apply(ctx context.Context, rec R) error {
	if s.spec.validate != nil {
		if err := s.spec.validate(rec); err != nil {
			return err
		}
	}
	return s.upsert(ctx, s.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store[R]) upsert(ctx context.Context, ex execer, rec R) error {
	m := rec.Meta()
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}

	cols := metaCols
	placeholders := "?, ?, ?, ?, ?, ?, ?"
	assigns := `author_id=excluded.author_id, deleted=excluded.deleted,
		client_created_at=excluded.client_created_at, client_updated_at=excluded.client_updated_at,
		server_created_at=excluded.server_created_at, server_updated_at=excluded.server_updated_at`
	for _, c := range s.spec.extraCols {
		cols += ", " + c
		placeholders += ", ?"
		assigns += fmt.Sprintf(", %s=excluded.%s", c, c)
	}

	args := []any{
		m.ID, m.AuthorID, m.Deleted,
		entity.FormatTime(m.ClientCreatedAt), entity.FormatTime(m.ClientUpdatedAt),
		entity.FormatTime(m.ServerCreatedAt), entity.FormatTime(m.ServerUpdatedAt),
	}
	args = append(args, s.spec.extraVals(rec)...)

	_, err := ex.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		s.spec.table, cols, placeholders, assigns), args...)
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", s.spec.table, err)
	}
	return nil
}
