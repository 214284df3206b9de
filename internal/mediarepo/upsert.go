package mediarepo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

// validateTitle enforces invariant 6: title strings are non-empty after
// trimming.
func validateTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", ferrors.New(ferrors.InvalidMedia, "title must not be empty after trimming")
	}
	return t, nil
}

// validateThemeColor enforces invariant 5: a present theme color must be
// exactly six hex digits.
func validateThemeColor(c *string) error {
	if c == nil {
		return nil
	}
	s := strings.TrimPrefix(*c, "#")
	if len(s) != 6 {
		return ferrors.New(ferrors.InvalidMedia, "theme color must be 6 hex digits")
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return ferrors.New(ferrors.InvalidMedia, "theme color must be hex")
		}
	}
	return nil
}

// StoreMediaFile upserts the one-file-per-owning-reference row keyed on
// (library, path) — invariant 2: a MediaFile path is unique within its
// library. NFC normalization of the path is the caller's responsibility
// (the filesystem walker normalizes before ever reaching this layer). A call
// that carries no technical metadata keeps the metadata already stored.
func (r *Repository) StoreMediaFile(ctx context.Context, f MediaFile) (FileID, error) {
	if strings.TrimSpace(f.FilePath) == "" {
		return FileID{}, ferrors.New(ferrors.InvalidMedia, "file path must not be empty")
	}
	id := FileID(uuid.New())
	meta := f.TechnicalMeta
	if meta == nil {
		meta = []byte(`{}`)
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO media_files (id, library_id, file_path, filename, file_size, discovered_at, created_at, technical_metadata)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), $6)
		ON CONFLICT (library_id, file_path) DO UPDATE SET
			filename = EXCLUDED.filename,
			file_size = EXCLUDED.file_size,
			technical_metadata = CASE
				WHEN EXCLUDED.technical_metadata = '{}'::jsonb THEN media_files.technical_metadata
				ELSE EXCLUDED.technical_metadata
			END
		RETURNING id
	`, uuid.UUID(id), uuid.UUID(f.LibraryID), f.FilePath, f.Filename, f.FileSize, meta).Scan((*uuid.UUID)(&id))
	if err != nil {
		return FileID{}, ferrors.Wrap(ferrors.Database, "store media file", err)
	}
	return id, nil
}

// StoreMovieReference upserts a movie keyed on its media file, i.e.
// (library, path), idempotent: re-running discovery/enrichment for the same
// file never creates a duplicate row. batchID fills an empty batch_id only;
// an already assigned batch is kept. The IndexUpsert handler passes the
// library's open batch, creating one via CreateMovieBatch when none exists.
func (r *Repository) StoreMovieReference(ctx context.Context, library ids.LibraryID, file MediaFile, title string, tmdbID *int64, themeColor *string, batchID *int64) (MovieReference, error) {
	title, err := validateTitle(title)
	if err != nil {
		return MovieReference{}, err
	}
	if err := validateThemeColor(themeColor); err != nil {
		return MovieReference{}, err
	}

	fileID, err := r.StoreMediaFile(ctx, file)
	if err != nil {
		return MovieReference{}, err
	}

	movieID := ids.NewMovieID()
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO movie_references (id, file_id, tmdb_id, title, theme_color, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (file_id) DO UPDATE SET
			tmdb_id = EXCLUDED.tmdb_id,
			title = EXCLUDED.title,
			theme_color = COALESCE(EXCLUDED.theme_color, movie_references.theme_color),
			batch_id = COALESCE(movie_references.batch_id, EXCLUDED.batch_id)
		RETURNING id
	`, uuid.UUID(movieID), uuid.UUID(fileID), tmdbID, title, themeColor, batchID).Scan((*uuid.UUID)(&movieID))
	if err != nil {
		return MovieReference{}, ferrors.Wrap(ferrors.Database, "store movie reference", err)
	}

	return r.GetMovie(ctx, movieID)
}

// SetThemeColor stores a computed theme color onto whichever entity id
// points at, dispatching over the Movie/Series/Season arms of the tagged
// union (episodes carry no theme color in the schema).
func (r *Repository) SetThemeColor(ctx context.Context, id ids.MediaID, color string) error {
	c := &color
	if err := validateThemeColor(c); err != nil {
		return err
	}
	var (
		res sql.Result
		err error
	)
	switch id.Kind {
	case ids.KindMovie:
		res, err = r.db.ExecContext(ctx, `UPDATE movie_references SET theme_color = $1 WHERE id = $2`, color, uuid.UUID(id.Movie))
	case ids.KindSeries:
		res, err = r.db.ExecContext(ctx, `UPDATE series SET theme_color = $1 WHERE id = $2`, color, uuid.UUID(id.Series))
	case ids.KindSeason:
		res, err = r.db.ExecContext(ctx, `UPDATE season_references SET theme_color = $1 WHERE id = $2`, color, uuid.UUID(id.Season))
	default:
		return ferrors.New(ferrors.InvalidMedia, "theme color does not apply to this media kind")
	}
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "set theme color", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ferrors.New(ferrors.NotFound, "media reference not found for theme color update")
	}
	return nil
}

// StoreSeriesReference upserts a series keyed on (library, tmdb id), or on
// (library, title) among series without a tmdb id when tmdbID is nil.
func (r *Repository) StoreSeriesReference(ctx context.Context, library ids.LibraryID, title string, tmdbID *int64, themeColor *string) (SeriesReference, error) {
	title, err := validateTitle(title)
	if err != nil {
		return SeriesReference{}, err
	}
	if err := validateThemeColor(themeColor); err != nil {
		return SeriesReference{}, err
	}

	if tmdbID == nil {
		var existing uuid.UUID
		err := r.db.QueryRowContext(ctx, `
			SELECT id FROM series WHERE library_id = $1 AND tmdb_id IS NULL AND title = $2
			ORDER BY created_at LIMIT 1
		`, uuid.UUID(library), title).Scan(&existing)
		if err == nil {
			return r.GetSeries(ctx, ids.SeriesID(existing))
		}
		if err != sql.ErrNoRows {
			return SeriesReference{}, ferrors.Wrap(ferrors.Database, "look up series by title", err)
		}
	}

	seriesID := ids.NewSeriesID()
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO series (id, library_id, tmdb_id, title, theme_color, discovered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (library_id, tmdb_id) WHERE tmdb_id IS NOT NULL DO UPDATE SET
			title = EXCLUDED.title,
			theme_color = COALESCE(EXCLUDED.theme_color, series.theme_color)
		RETURNING id
	`, uuid.UUID(seriesID), uuid.UUID(library), tmdbID, title, themeColor).Scan((*uuid.UUID)(&seriesID))
	if err != nil {
		return SeriesReference{}, ferrors.Wrap(ferrors.Database, "store series reference", err)
	}

	return r.GetSeries(ctx, seriesID)
}

// StoreSeasonReference upserts a season keyed on (series, season number) —
// invariant 4: Season.season_number is unique within its series.
func (r *Repository) StoreSeasonReference(ctx context.Context, library ids.LibraryID, series ids.SeriesID, seasonNumber int, themeColor *string) (SeasonReference, error) {
	if seasonNumber < 0 {
		return SeasonReference{}, ferrors.New(ferrors.InvalidMedia, "season number must be >= 0")
	}
	if err := validateThemeColor(themeColor); err != nil {
		return SeasonReference{}, err
	}

	seasonID := ids.NewSeasonID()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO season_references (id, series_id, season_number, library_id, theme_color, discovered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (series_id, season_number) DO UPDATE SET
			theme_color = COALESCE(EXCLUDED.theme_color, season_references.theme_color)
		RETURNING id
	`, uuid.UUID(seasonID), uuid.UUID(series), seasonNumber, uuid.UUID(library), themeColor).Scan((*uuid.UUID)(&seasonID))
	if err != nil {
		return SeasonReference{}, ferrors.Wrap(ferrors.Database, "store season reference", err)
	}

	return r.GetSeason(ctx, seasonID)
}

// StoreEpisodeReference upserts an episode keyed on (library, path),
// enforcing invariant 1 (season.series must match) at the caller level via
// seasonID/seriesID consistency, and invariant 4 ((season, episode_number)
// unique within a series) via the database constraint.
func (r *Repository) StoreEpisodeReference(ctx context.Context, library ids.LibraryID, file MediaFile, series ids.SeriesID, season ids.SeasonID, seasonNumber, episodeNumber int, tmdbSeriesID *int64) (EpisodeReference, error) {
	if episodeNumber < 1 && seasonNumber != 0 {
		return EpisodeReference{}, ferrors.New(ferrors.InvalidMedia, "episode number must be >= 1 unless specials")
	}

	fileID, err := r.StoreMediaFile(ctx, file)
	if err != nil {
		return EpisodeReference{}, err
	}

	epID := ids.NewEpisodeID()
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO episode_references (id, file_id, series_id, season_id, season_number, episode_number, tmdb_series_id, discovered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (file_id) DO UPDATE SET
			season_id = EXCLUDED.season_id,
			season_number = EXCLUDED.season_number,
			episode_number = EXCLUDED.episode_number,
			tmdb_series_id = EXCLUDED.tmdb_series_id
		RETURNING id
	`, uuid.UUID(epID), uuid.UUID(fileID), uuid.UUID(series), uuid.UUID(season), seasonNumber, episodeNumber, tmdbSeriesID).Scan((*uuid.UUID)(&epID))
	if err != nil {
		return EpisodeReference{}, ferrors.Wrap(ferrors.Database, "store episode reference", err)
	}

	return r.GetEpisode(ctx, epID)
}

// LibraryMedia is the one logical response get_library_media returns for
// Series libraries: series, their seasons, and their episodes together.
type LibraryMedia struct {
	Movies   []MovieReference
	Series   []SeriesReference
	Seasons  []SeasonReference
	Episodes []EpisodeReference
}

// GetLibraryMedia returns, for a Movies library, just the movie list
// (sorted by title); for a Series library, series/seasons/episodes in one
// logical response.
func (r *Repository) GetLibraryMedia(ctx context.Context, library ids.LibraryID, kind LibraryType) (LibraryMedia, error) {
	switch kind {
	case LibraryTypeMovies:
		movies, err := r.ListLibraryMovies(ctx, library)
		if err != nil {
			return LibraryMedia{}, err
		}
		return LibraryMedia{Movies: movies}, nil
	case LibraryTypeSeries:
		seriesList, err := r.ListLibrarySeries(ctx, library)
		if err != nil {
			return LibraryMedia{}, err
		}
		seasons, err := r.ListLibrarySeasons(ctx, library)
		if err != nil {
			return LibraryMedia{}, err
		}
		var episodes []EpisodeReference
		for _, s := range seriesList {
			eps, err := r.ListSeriesEpisodes(ctx, s.ID)
			if err != nil {
				return LibraryMedia{}, err
			}
			episodes = append(episodes, eps...)
		}
		return LibraryMedia{Series: seriesList, Seasons: seasons, Episodes: episodes}, nil
	default:
		return LibraryMedia{}, ferrors.New(ferrors.InvalidMedia, "unknown library kind")
	}
}

// GetSeriesBulk is the series analogue of GetMoviesBulk: empty input yields
// empty output, used for cache warming and client manifests.
func (r *Repository) GetSeriesBulk(ctx context.Context, idList []ids.SeriesID) ([]SeriesReference, error) {
	if len(idList) == 0 {
		return nil, nil
	}
	out := make([]SeriesReference, 0, len(idList))
	for _, id := range idList {
		s, err := r.GetSeries(ctx, id)
		if ferrors.Is(err, ferrors.NotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
