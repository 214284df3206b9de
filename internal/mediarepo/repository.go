package mediarepo

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const movieReferenceColumns = `
	mr.id, mr.tmdb_id, mr.title, mr.theme_color, mr.batch_id,
	mf.id, mf.library_id, mf.file_path, mf.filename, mf.file_size,
	mf.discovered_at, mf.created_at, mf.technical_metadata
`

func scanMovieReference(row interface{ Scan(...any) error }) (MovieReference, error) {
	var m MovieReference
	var movieUUID, fileUUID uuid.UUID
	var libUUID uuid.UUID
	if err := row.Scan(
		&movieUUID, &m.TmdbID, &m.Title, &m.ThemeColor, &m.BatchID,
		&fileUUID, &libUUID, &m.File.FilePath, &m.File.Filename, &m.File.FileSize,
		&m.File.DiscoveredAt, &m.File.CreatedAt, &m.File.TechnicalMeta,
	); err != nil {
		return MovieReference{}, err
	}
	m.ID = ids.MovieID(movieUUID)
	m.File.ID = FileID(fileUUID)
	m.File.LibraryID = ids.LibraryID(libUUID)
	return m, nil
}

func (r *Repository) GetMovie(ctx context.Context, id ids.MovieID) (MovieReference, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+movieReferenceColumns+`
		FROM movie_references mr
		JOIN media_files mf ON mr.file_id = mf.id
		WHERE mr.id = $1
	`, uuid.UUID(id))
	m, err := scanMovieReference(row)
	if err == sql.ErrNoRows {
		return MovieReference{}, ferrors.New(ferrors.NotFound, "movie not found")
	}
	if err != nil {
		return MovieReference{}, ferrors.Wrap(ferrors.Database, "get movie", err)
	}
	return m, nil
}

func (r *Repository) GetMovieByPath(ctx context.Context, path string) (*MovieReference, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+movieReferenceColumns+`
		FROM movie_references mr
		JOIN media_files mf ON mr.file_id = mf.id
		WHERE mf.file_path = $1
	`, path)
	m, err := scanMovieReference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get movie by path", err)
	}
	return &m, nil
}

func (r *Repository) ListLibraryMovies(ctx context.Context, library ids.LibraryID) ([]MovieReference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+movieReferenceColumns+`
		FROM movie_references mr
		JOIN media_files mf ON mr.file_id = mf.id
		WHERE mf.library_id = $1
		ORDER BY mr.title
	`, uuid.UUID(library))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list library movies", err)
	}
	defer rows.Close()

	var out []MovieReference
	for rows.Next() {
		m, err := scanMovieReference(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan movie row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) GetMoviesBulk(ctx context.Context, idList []ids.MovieID) ([]MovieReference, error) {
	if len(idList) == 0 {
		return nil, nil
	}
	uuids := make([]uuid.UUID, len(idList))
	for i, id := range idList {
		uuids[i] = uuid.UUID(id)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+movieReferenceColumns+`
		FROM movie_references mr
		JOIN media_files mf ON mr.file_id = mf.id
		WHERE mr.id = ANY($1)
	`, pq.Array(uuids))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get movies bulk", err)
	}
	defer rows.Close()

	var out []MovieReference
	for rows.Next() {
		m, err := scanMovieReference(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan movie row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const seriesColumns = `sr.id, sr.library_id, sr.tmdb_id, sr.title, sr.theme_color, sr.discovered_at, sr.created_at`

func scanSeries(row interface{ Scan(...any) error }) (SeriesReference, error) {
	var s SeriesReference
	var id, lib uuid.UUID
	if err := row.Scan(&id, &lib, &s.TmdbID, &s.Title, &s.ThemeColor, &s.DiscoveredAt, &s.CreatedAt); err != nil {
		return SeriesReference{}, err
	}
	s.ID = ids.SeriesID(id)
	s.LibraryID = ids.LibraryID(lib)
	return s, nil
}

func (r *Repository) GetSeries(ctx context.Context, id ids.SeriesID) (SeriesReference, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+seriesColumns+` FROM series sr WHERE sr.id = $1
	`, uuid.UUID(id))
	s, err := scanSeries(row)
	if err == sql.ErrNoRows {
		return SeriesReference{}, ferrors.New(ferrors.NotFound, "series not found")
	}
	if err != nil {
		return SeriesReference{}, ferrors.Wrap(ferrors.Database, "get series", err)
	}
	return s, nil
}

func (r *Repository) ListLibrarySeries(ctx context.Context, library ids.LibraryID) ([]SeriesReference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+seriesColumns+` FROM series sr WHERE sr.library_id = $1 ORDER BY sr.title
	`, uuid.UUID(library))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list library series", err)
	}
	defer rows.Close()
	var out []SeriesReference
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan series row", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const seasonColumns = `sr.id, sr.series_id, sr.season_number, sr.library_id, sr.tmdb_series_id, sr.discovered_at, sr.created_at, sr.theme_color`

func scanSeason(row interface{ Scan(...any) error }) (SeasonReference, error) {
	var s SeasonReference
	var id, series, lib uuid.UUID
	if err := row.Scan(&id, &series, &s.SeasonNumber, &lib, &s.TmdbSeriesID, &s.DiscoveredAt, &s.CreatedAt, &s.ThemeColor); err != nil {
		return SeasonReference{}, err
	}
	s.ID = ids.SeasonID(id)
	s.SeriesID = ids.SeriesID(series)
	s.LibraryID = ids.LibraryID(lib)
	return s, nil
}

func (r *Repository) GetSeason(ctx context.Context, id ids.SeasonID) (SeasonReference, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM season_references sr WHERE sr.id = $1`, uuid.UUID(id))
	s, err := scanSeason(row)
	if err == sql.ErrNoRows {
		return SeasonReference{}, ferrors.New(ferrors.NotFound, "season not found")
	}
	if err != nil {
		return SeasonReference{}, ferrors.Wrap(ferrors.Database, "get season", err)
	}
	return s, nil
}

func (r *Repository) ListLibrarySeasons(ctx context.Context, library ids.LibraryID) ([]SeasonReference, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+seasonColumns+` FROM season_references sr WHERE sr.library_id = $1`, uuid.UUID(library))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list library seasons", err)
	}
	defer rows.Close()
	var out []SeasonReference
	for rows.Next() {
		s, err := scanSeason(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan season row", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const episodeColumns = `
	er.id, er.episode_number, er.season_number, er.season_id, er.series_id, er.tmdb_series_id,
	er.discovered_at, er.created_at,
	mf.id, mf.library_id, mf.file_path, mf.filename, mf.file_size, mf.discovered_at, mf.created_at, mf.technical_metadata
`

func scanEpisode(row interface{ Scan(...any) error }) (EpisodeReference, error) {
	var e EpisodeReference
	var id, season, series, fileID, lib uuid.UUID
	if err := row.Scan(
		&id, &e.EpisodeNumber, &e.SeasonNumber, &season, &series, &e.TmdbSeriesID,
		&e.DiscoveredAt, &e.CreatedAt,
		&fileID, &lib, &e.File.FilePath, &e.File.Filename, &e.File.FileSize, &e.File.DiscoveredAt, &e.File.CreatedAt, &e.File.TechnicalMeta,
	); err != nil {
		return EpisodeReference{}, err
	}
	e.ID = ids.EpisodeID(id)
	e.SeasonID = ids.SeasonID(season)
	e.SeriesID = ids.SeriesID(series)
	e.File.ID = FileID(fileID)
	e.File.LibraryID = ids.LibraryID(lib)
	return e, nil
}

func (r *Repository) GetEpisode(ctx context.Context, id ids.EpisodeID) (EpisodeReference, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episode_references er
		JOIN media_files mf ON er.file_id = mf.id
		WHERE er.id = $1
	`, uuid.UUID(id))
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return EpisodeReference{}, ferrors.New(ferrors.NotFound, "episode not found")
	}
	if err != nil {
		return EpisodeReference{}, ferrors.Wrap(ferrors.Database, "get episode", err)
	}
	return e, nil
}

func (r *Repository) ListSeriesEpisodes(ctx context.Context, series ids.SeriesID) ([]EpisodeReference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episode_references er
		JOIN media_files mf ON er.file_id = mf.id
		WHERE er.series_id = $1
		ORDER BY er.season_number, er.episode_number
	`, uuid.UUID(series))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list series episodes", err)
	}
	defer rows.Close()
	var out []EpisodeReference
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan episode row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) ListSeasonEpisodes(ctx context.Context, season ids.SeasonID) ([]EpisodeReference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episode_references er
		JOIN media_files mf ON er.file_id = mf.id
		WHERE er.season_id = $1
		ORDER BY er.episode_number
	`, uuid.UUID(season))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list season episodes", err)
	}
	defer rows.Close()
	var out []EpisodeReference
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan episode row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetSeasonsBulk fetches seasons by id for cache warming and client
// manifests; empty input yields empty output.
func (r *Repository) GetSeasonsBulk(ctx context.Context, idList []ids.SeasonID) ([]SeasonReference, error) {
	if len(idList) == 0 {
		return nil, nil
	}
	uuids := make([]uuid.UUID, len(idList))
	for i, id := range idList {
		uuids[i] = uuid.UUID(id)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+seasonColumns+` FROM season_references sr WHERE sr.id = ANY($1)
	`, pq.Array(uuids))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get seasons bulk", err)
	}
	defer rows.Close()
	var out []SeasonReference
	for rows.Next() {
		s, err := scanSeason(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan season row", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetEpisodesBulk is the episode analogue of GetSeasonsBulk.
func (r *Repository) GetEpisodesBulk(ctx context.Context, idList []ids.EpisodeID) ([]EpisodeReference, error) {
	if len(idList) == 0 {
		return nil, nil
	}
	uuids := make([]uuid.UUID, len(idList))
	for i, id := range idList {
		uuids[i] = uuid.UUID(id)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episode_references er
		JOIN media_files mf ON er.file_id = mf.id
		WHERE er.id = ANY($1)
		ORDER BY er.series_id, er.season_number, er.episode_number
	`, pq.Array(uuids))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get episodes bulk", err)
	}
	defer rows.Close()
	var out []EpisodeReference
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan episode row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetMediaReference dispatches on MediaID.Kind to the per-kind getter, the
// Go equivalent of matching over the Movie/Series/Season/Episode tagged
// union.
func (r *Repository) GetMediaReference(ctx context.Context, id ids.MediaID) (any, error) {
	switch id.Kind {
	case ids.KindMovie:
		return r.GetMovie(ctx, id.Movie)
	case ids.KindSeries:
		return r.GetSeries(ctx, id.Series)
	case ids.KindSeason:
		return r.GetSeason(ctx, id.Season)
	case ids.KindEpisode:
		return r.GetEpisode(ctx, id.Episode)
	default:
		return nil, ferrors.New(ferrors.InvalidMedia, "unknown media kind")
	}
}

// MarkSeriesFinalized flips a bundle's finalized flag without touching its
// hash or version, used once metadata enrichment considers the series
// complete for this pass.
func (r *Repository) MarkSeriesFinalized(ctx context.Context, library ids.LibraryID, series ids.SeriesID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO series_bundle_versioning (library_id, series_id, finalized)
		VALUES ($1, $2, true)
		ON CONFLICT (library_id, series_id) DO UPDATE SET
			finalized = true, updated_at = NOW()
	`, uuid.UUID(library), uuid.UUID(series))
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "mark series finalized", err)
	}
	return nil
}

// UpsertSeriesBundleHash records the bundle's content hash, bumping version
// only when the hash actually changed from what was stored.
func (r *Repository) UpsertSeriesBundleHash(ctx context.Context, library ids.LibraryID, series ids.SeriesID, hash uint64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO series_bundle_versioning (library_id, series_id, finalized, bundle_hash)
		VALUES ($1, $2, true, $3)
		ON CONFLICT (library_id, series_id) DO UPDATE SET
			version = CASE
				WHEN series_bundle_versioning.bundle_hash IS DISTINCT FROM EXCLUDED.bundle_hash
				THEN series_bundle_versioning.version + 1
				ELSE series_bundle_versioning.version
			END,
			finalized = EXCLUDED.finalized,
			bundle_hash = EXCLUDED.bundle_hash,
			updated_at = CASE
				WHEN series_bundle_versioning.bundle_hash IS DISTINCT FROM EXCLUDED.bundle_hash
				THEN NOW()
				ELSE series_bundle_versioning.updated_at
			END
	`, uuid.UUID(library), uuid.UUID(series), hashToNumeric(hash))
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "upsert series bundle hash", err)
	}
	return nil
}

// UpsertMovieBatchHash is the movie-batch analogue of UpsertSeriesBundleHash.
func (r *Repository) UpsertMovieBatchHash(ctx context.Context, library ids.LibraryID, batchID int64, hash uint64, batchSize int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO movie_reference_batches (library_id, batch_id, batch_size, batch_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (library_id, batch_id) DO UPDATE SET
			batch_size = EXCLUDED.batch_size,
			version = CASE
				WHEN movie_reference_batches.batch_hash IS DISTINCT FROM EXCLUDED.batch_hash
				THEN movie_reference_batches.version + 1
				ELSE movie_reference_batches.version
			END,
			batch_hash = EXCLUDED.batch_hash,
			updated_at = CASE
				WHEN movie_reference_batches.batch_hash IS DISTINCT FROM EXCLUDED.batch_hash
				THEN NOW()
				ELSE movie_reference_batches.updated_at
			END
	`, uuid.UUID(library), batchID, batchSize, hashToNumeric(hash))
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "upsert movie batch hash", err)
	}
	return nil
}

func (r *Repository) ListFinalizedMovieBatchVersions(ctx context.Context, library ids.LibraryID) ([]MovieBatchVersionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, version FROM movie_reference_batches
		WHERE library_id = $1 AND finalized_at IS NOT NULL ORDER BY batch_id
	`, uuid.UUID(library))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list finalized movie batch versions", err)
	}
	defer rows.Close()
	var out []MovieBatchVersionRecord
	for rows.Next() {
		var rec MovieBatchVersionRecord
		if err := rows.Scan(&rec.BatchID, &rec.Version); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan movie batch version row", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) ListFinalizedSeriesBundleVersions(ctx context.Context, library ids.LibraryID) ([]SeriesBundleVersionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sbv.series_id, sbv.version
		FROM series_bundle_versioning sbv
		INNER JOIN series s ON s.id = sbv.series_id
		WHERE sbv.library_id = $1 AND s.library_id = $1 AND sbv.finalized = true
		ORDER BY sbv.series_id
	`, uuid.UUID(library))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list finalized series bundle versions", err)
	}
	defer rows.Close()
	var out []SeriesBundleVersionRecord
	for rows.Next() {
		var id uuid.UUID
		var rec SeriesBundleVersionRecord
		if err := rows.Scan(&id, &rec.Version); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan series bundle version row", err)
		}
		rec.SeriesID = ids.SeriesID(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) GetUnfinalizedMovieBatchID(ctx context.Context, library ids.LibraryID) (*int64, error) {
	var batchID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT batch_id FROM movie_reference_batches
		WHERE library_id = $1 AND finalized_at IS NULL
		ORDER BY batch_id DESC LIMIT 1
	`, uuid.UUID(library)).Scan(&batchID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get unfinalized movie batch id", err)
	}
	return &batchID, nil
}

// CreateMovieBatch appends a new, unfinalized batch for the library —
// batches are never reused or renumbered, only appended, so a movie's
// batch_id is stable once assigned.
func (r *Repository) CreateMovieBatch(ctx context.Context, library ids.LibraryID) (int64, error) {
	var batchID int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO movie_reference_batches (library_id, batch_id, batch_size)
		SELECT $1, COALESCE(MAX(batch_id), 0) + 1, 0
		FROM movie_reference_batches WHERE library_id = $1
		RETURNING batch_id
	`, uuid.UUID(library)).Scan(&batchID)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Database, "create movie batch", err)
	}
	return batchID, nil
}

func (r *Repository) GetMovieBatchHash(ctx context.Context, library ids.LibraryID, batchID int64) (*uint64, error) {
	var numeric sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT batch_hash FROM movie_reference_batches WHERE library_id = $1 AND batch_id = $2
	`, uuid.UUID(library), batchID).Scan(&numeric)
	if err == sql.ErrNoRows || !numeric.Valid {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get movie batch hash", err)
	}
	h, err := numericToHash(numeric.String)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Internal, "decode movie batch hash", err)
	}
	return &h, nil
}

// CleanupOrphanTvReferences deletes seasons with no remaining episodes and
// series with no remaining seasons or episodes, in that order — a season
// must go before its series can be considered orphaned. Both deletes run in
// one transaction so a partial failure never leaves an orphan shape behind.
func (r *Repository) CleanupOrphanTvReferences(ctx context.Context, library ids.LibraryID) (TvReferenceOrphanCleanup, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return TvReferenceOrphanCleanup{}, ferrors.Wrap(ferrors.Database, "begin orphan cleanup tx", err)
	}
	defer tx.Rollback()

	seasonRes, err := tx.ExecContext(ctx, `
		DELETE FROM season_references
		WHERE library_id = $1
		  AND NOT EXISTS (SELECT 1 FROM episode_references er WHERE er.season_id = season_references.id)
	`, uuid.UUID(library))
	if err != nil {
		return TvReferenceOrphanCleanup{}, ferrors.Wrap(ferrors.Database, "cleanup orphan seasons", err)
	}
	deletedSeasons, _ := seasonRes.RowsAffected()

	seriesRes, err := tx.ExecContext(ctx, `
		DELETE FROM series
		WHERE library_id = $1
		  AND NOT EXISTS (SELECT 1 FROM season_references sr WHERE sr.series_id = series.id)
		  AND NOT EXISTS (SELECT 1 FROM episode_references er WHERE er.series_id = series.id)
	`, uuid.UUID(library))
	if err != nil {
		return TvReferenceOrphanCleanup{}, ferrors.Wrap(ferrors.Database, "cleanup orphan series", err)
	}
	deletedSeries, _ := seriesRes.RowsAffected()

	if err := tx.Commit(); err != nil {
		return TvReferenceOrphanCleanup{}, ferrors.Wrap(ferrors.Database, "commit orphan cleanup tx", err)
	}

	return TvReferenceOrphanCleanup{DeletedSeasons: deletedSeasons, DeletedSeries: deletedSeries}, nil
}

func hashToNumeric(h uint64) string {
	return new(big.Int).SetUint64(h).String()
}

// numericToHash rejects negative and overlong encodings rather than letting
// Uint64 silently truncate them.
func numericToHash(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, ferrors.New(ferrors.Internal, "invalid numeric hash value: "+s)
	}
	if n.Sign() < 0 || n.BitLen() > 64 {
		return 0, ferrors.New(ferrors.Internal, "numeric hash out of uint64 range: "+s)
	}
	return n.Uint64(), nil
}
