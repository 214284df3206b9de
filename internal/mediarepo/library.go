// Library CRUD: the unit of ownership every media reference belongs to
// exactly one of.
package mediarepo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

type Library struct {
	ID           ids.LibraryID
	Name         string
	Kind         LibraryType
	RootPaths    []string
	ScanInterval time.Duration
	Enabled      bool
	LastScanAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateLibrary inserts a new library. Title/name is trimmed and must be
// non-empty per the "title strings are non-empty after trimming" invariant.
func (r *Repository) CreateLibrary(ctx context.Context, l Library) (Library, error) {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		return Library{}, ferrors.New(ferrors.InvalidMedia, "library name must not be empty")
	}
	if l.Kind != LibraryTypeMovies && l.Kind != LibraryTypeSeries {
		return Library{}, ferrors.New(ferrors.InvalidMedia, "unknown library kind")
	}

	id := ids.NewLibraryID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO libraries (id, name, kind, root_paths, scan_interval_seconds, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, uuid.UUID(id), name, string(l.Kind), pq.Array(l.RootPaths), int64(l.ScanInterval.Seconds()), l.Enabled)
	if err != nil {
		return Library{}, ferrors.Wrap(ferrors.Database, "create library", err)
	}
	l.ID = id
	l.Name = name
	return l, nil
}

func scanLibrary(row interface{ Scan(...any) error }) (Library, error) {
	var l Library
	var id uuid.UUID
	var kind string
	var scanSeconds int64
	var lastScan sql.NullTime
	if err := row.Scan(&id, &l.Name, &kind, pq.Array(&l.RootPaths), &scanSeconds,
		&l.Enabled, &lastScan, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return Library{}, err
	}
	l.ID = ids.LibraryID(id)
	l.Kind = LibraryType(kind)
	l.ScanInterval = time.Duration(scanSeconds) * time.Second
	if lastScan.Valid {
		l.LastScanAt = &lastScan.Time
	}
	return l, nil
}

const libraryColumns = `id, name, kind, root_paths, scan_interval_seconds, enabled, last_scan_at, created_at, updated_at`

func (r *Repository) GetLibrary(ctx context.Context, id ids.LibraryID) (Library, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE id = $1`, uuid.UUID(id))
	l, err := scanLibrary(row)
	if err == sql.ErrNoRows {
		return Library{}, ferrors.New(ferrors.NotFound, "library not found")
	}
	if err != nil {
		return Library{}, ferrors.Wrap(ferrors.Database, "get library", err)
	}
	return l, nil
}

func (r *Repository) ListLibraries(ctx context.Context) ([]Library, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+libraryColumns+` FROM libraries ORDER BY name`)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list libraries", err)
	}
	defer rows.Close()

	var out []Library
	for rows.Next() {
		l, err := scanLibrary(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan library row", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListDueForScan returns enabled libraries whose last scan predates their
// own scan interval, used by the scan planner to decide which libraries to
// enqueue a FolderScan for.
func (r *Repository) ListDueForScan(ctx context.Context, now time.Time) ([]Library, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+libraryColumns+` FROM libraries
		WHERE enabled = true
		  AND (last_scan_at IS NULL OR last_scan_at + (scan_interval_seconds || ' seconds')::interval <= $1)
		ORDER BY last_scan_at ASC NULLS FIRST
	`, now)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list libraries due for scan", err)
	}
	defer rows.Close()

	var out []Library
	for rows.Next() {
		l, err := scanLibrary(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan library row", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) TouchLibraryScanned(ctx context.Context, id ids.LibraryID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE libraries SET last_scan_at = $2, updated_at = NOW() WHERE id = $1`,
		uuid.UUID(id), at)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "touch library scanned", err)
	}
	return nil
}

func (r *Repository) DeleteLibrary(ctx context.Context, id ids.LibraryID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "delete library", err)
	}
	return nil
}
