// Package scancursor implements the per-folder listing fingerprint store
// that the scan planner consults to decide whether a FolderScan needs
// requeuing.
package scancursor

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

type CursorID struct {
	LibraryID ids.LibraryID
	PathHash  uint64
}

type Cursor struct {
	ID             CursorID
	FolderPathNorm string
	ListingHash    string
	EntryCount     int
	LastScanAt     time.Time
	LastModifiedAt *time.Time
	DeviceID       *string
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id CursorID) (*Cursor, error) {
	var c Cursor
	c.ID = id
	err := s.db.QueryRowContext(ctx, `
		SELECT folder_path_norm, listing_hash, entry_count, last_scan_at, last_modified_at, device_id
		FROM scan_cursors WHERE library_id = $1 AND path_hash = $2
	`, uuid.UUID(id.LibraryID), int64(id.PathHash)).
		Scan(&c.FolderPathNorm, &c.ListingHash, &c.EntryCount, &c.LastScanAt, &c.LastModifiedAt, &c.DeviceID)
	if err == sql.ErrNoRows {
		return nil, ferrors.New(ferrors.NotFound, "scan cursor not found")
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get scan cursor", err)
	}
	return &c, nil
}

func (s *Store) ListByLibrary(ctx context.Context, library ids.LibraryID) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path_hash, folder_path_norm, listing_hash, entry_count, last_scan_at, last_modified_at, device_id
		FROM scan_cursors WHERE library_id = $1 ORDER BY folder_path_norm ASC
	`, uuid.UUID(library))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list scan cursors", err)
	}
	defer rows.Close()
	return scanCursorRows(rows, library)
}

func (s *Store) ListStale(ctx context.Context, library ids.LibraryID, olderThan time.Time) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path_hash, folder_path_norm, listing_hash, entry_count, last_scan_at, last_modified_at, device_id
		FROM scan_cursors WHERE library_id = $1 AND last_scan_at < $2 ORDER BY last_scan_at ASC
	`, uuid.UUID(library), olderThan)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list stale scan cursors", err)
	}
	defer rows.Close()
	return scanCursorRows(rows, library)
}

func scanCursorRows(rows *sql.Rows, library ids.LibraryID) ([]Cursor, error) {
	var out []Cursor
	for rows.Next() {
		var pathHash int64
		var c Cursor
		if err := rows.Scan(&pathHash, &c.FolderPathNorm, &c.ListingHash, &c.EntryCount,
			&c.LastScanAt, &c.LastModifiedAt, &c.DeviceID); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan cursor row", err)
		}
		c.ID = CursorID{LibraryID: library, PathHash: uint64(pathHash)}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Upsert stores or replaces the cursor for (library, path_hash).
func (s *Store) Upsert(ctx context.Context, c Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_cursors (
			library_id, path_hash, folder_path_norm, listing_hash,
			entry_count, last_scan_at, last_modified_at, device_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (library_id, path_hash) DO UPDATE SET
			listing_hash = EXCLUDED.listing_hash,
			entry_count = EXCLUDED.entry_count,
			last_scan_at = EXCLUDED.last_scan_at,
			last_modified_at = EXCLUDED.last_modified_at,
			device_id = EXCLUDED.device_id
	`, uuid.UUID(c.ID.LibraryID), int64(c.ID.PathHash), c.FolderPathNorm, c.ListingHash,
		c.EntryCount, c.LastScanAt, c.LastModifiedAt, c.DeviceID)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "upsert scan cursor", err)
	}
	return nil
}

// Delete removes a single cursor, used by housekeeping when the folder it
// tracks no longer exists on disk.
func (s *Store) Delete(ctx context.Context, id CursorID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM scan_cursors WHERE library_id = $1 AND path_hash = $2
	`, uuid.UUID(id.LibraryID), int64(id.PathHash))
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "delete scan cursor", err)
	}
	return nil
}

func (s *Store) DeleteByLibrary(ctx context.Context, library ids.LibraryID) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_cursors WHERE library_id = $1`, uuid.UUID(library))
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Database, "delete scan cursors by library", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
