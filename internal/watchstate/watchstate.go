// Package watchstate is a read-only façade over per-(user, media) progress:
// the query engine's watch-status predicate hydrates against it, but
// nothing in this core ever writes it (playback reporting is an external
// collaborator's job).
package watchstate

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusUnwatched  Status = "unwatched"
)

// completedThreshold is the position/duration ratio at which an item flips
// from InProgress to Completed.
const completedThreshold = 0.95

type ItemWatchStatus struct {
	Status      Status
	Position    *float64
	Duration    *float64
	LastWatched *time.Time
	CompletedAt *time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Resolve implements the hydration rule: InProgress iff position/duration <
// 0.95, Completed otherwise (or via the completed table directly).
func (s *Store) Resolve(ctx context.Context, userID uuid.UUID, mediaID ids.MediaID) (ItemWatchStatus, error) {
	var position, duration sql.NullFloat64
	var lastWatched sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT position_seconds, duration_seconds, last_watched_at
		FROM watch_progress WHERE user_id = $1 AND media_id = $2 AND media_kind = $3
	`, userID, mediaID.String(), string(mediaID.Kind)).Scan(&position, &duration, &lastWatched)
	if err != nil && err != sql.ErrNoRows {
		return ItemWatchStatus{}, ferrors.Wrap(ferrors.Database, "resolve watch progress", err)
	}
	progressDone := false
	if err == nil && position.Valid && duration.Valid && duration.Float64 > 0 {
		ratio := position.Float64 / duration.Float64
		progressDone = ratio >= completedThreshold
		if ratio < completedThreshold {
			pos, dur := position.Float64, duration.Float64
			var lw *time.Time
			if lastWatched.Valid {
				lw = &lastWatched.Time
			}
			return ItemWatchStatus{Status: StatusInProgress, Position: &pos, Duration: &dur, LastWatched: lw}, nil
		}
	}

	var completedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT completed_at FROM watch_completions WHERE user_id = $1 AND media_id = $2 AND media_kind = $3
	`, userID, mediaID.String(), string(mediaID.Kind)).Scan(&completedAt)
	if err != nil && err != sql.ErrNoRows {
		return ItemWatchStatus{}, ferrors.Wrap(ferrors.Database, "resolve watch completion", err)
	}
	if err == nil {
		ca := completedAt.Time
		return ItemWatchStatus{Status: StatusCompleted, CompletedAt: &ca}, nil
	}
	if progressDone {
		return ItemWatchStatus{Status: StatusCompleted}, nil
	}

	return ItemWatchStatus{Status: StatusUnwatched}, nil
}

// InProgressMediaIDs, CompletedMediaIDs, and RecentlyWatchedMediaIDs list the
// media ids of one kind that match each watch-status predicate for a user.
// The query engine does not call them: its watchClause expresses the same
// predicates directly in SQL against these tables.
func (s *Store) InProgressMediaIDs(ctx context.Context, userID uuid.UUID, kind ids.MediaKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT media_id FROM watch_progress
		WHERE user_id = $1 AND media_kind = $2
		  AND duration_seconds > 0 AND position_seconds / duration_seconds < $3
	`, userID, string(kind), completedThreshold)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "in-progress media ids", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (s *Store) CompletedMediaIDs(ctx context.Context, userID uuid.UUID, kind ids.MediaKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT media_id FROM watch_completions WHERE user_id = $1 AND media_kind = $2
	`, userID, string(kind))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "completed media ids", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (s *Store) RecentlyWatchedMediaIDs(ctx context.Context, userID uuid.UUID, kind ids.MediaKind, days int) ([]string, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, `
		SELECT media_id FROM watch_progress
		WHERE user_id = $1 AND media_kind = $2 AND last_watched_at >= $3
		UNION
		SELECT media_id FROM watch_completions
		WHERE user_id = $1 AND media_kind = $2 AND completed_at >= $3
	`, userID, string(kind), cutoff)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "recently watched media ids", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan media id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
