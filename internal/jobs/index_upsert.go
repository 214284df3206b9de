package jobs

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/ferrex-media/ferrex/internal/classify"
	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/imagepipeline"
	"github.com/ferrex-media/ferrex/internal/mediarepo"
	"github.com/ferrex-media/ferrex/internal/queue"
)

// handleIndexUpsert writes the confirmed (or filename-only) identity into
// the media reference tables, bumps the owning batch/bundle content hash,
// publishes MediaChanged, and enqueues ImageFetch jobs for whatever artwork
// became newly known.
func (w *Worker) handleIndexUpsert(ctx context.Context, lease *queue.Lease) error {
	var params IndexUpsertParams
	if err := json.Unmarshal(lease.Job.Payload.Params, &params); err != nil {
		return ferrors.Wrap(ferrors.Internal, "unmarshal index-upsert params", err)
	}

	file, err := mediaFileFromPath(lease.Job.LibraryID, params.FilePath)
	if err != nil {
		return err
	}

	switch params.Parsed.Kind {
	case classify.KindMovie:
		return w.indexMovie(ctx, lease.Job.LibraryID, file, params)
	case classify.KindEpisode:
		return w.indexEpisode(ctx, lease.Job.LibraryID, file, params)
	default:
		return nil
	}
}

func (w *Worker) indexMovie(ctx context.Context, library ids.LibraryID, file mediarepo.MediaFile, params IndexUpsertParams) error {
	title := params.Parsed.Title
	var tmdbID *int64
	var posterPath, backdropPath string
	if params.Movie != nil {
		if params.Movie.Title != "" {
			title = params.Movie.Title
		}
		id := params.Movie.TmdbID
		tmdbID = &id
		posterPath = params.Movie.PosterPath
		backdropPath = params.Movie.BackdropPath
	}

	batchID, err := w.mediarepo.GetUnfinalizedMovieBatchID(ctx, library)
	if err != nil {
		return err
	}
	if batchID == nil {
		id, err := w.mediarepo.CreateMovieBatch(ctx, library)
		if err != nil {
			return err
		}
		batchID = &id
	}

	movie, err := w.mediarepo.StoreMovieReference(ctx, library, file, title, tmdbID, nil, batchID)
	if err != nil {
		return err
	}
	mediaID := ids.MovieMediaID(movie.ID)
	w.bus.PublishMediaChanged(mediaID, ids.KindMovie)

	if err := w.refreshMovieBatchHash(ctx, library, *batchID); err != nil {
		return err
	}

	if posterPath != "" {
		if err := w.registerAndEnqueueImage(ctx, library, mediaID, imagepipeline.RolePoster, posterPath, "poster@500"); err != nil {
			return err
		}
	}
	if backdropPath != "" {
		if err := w.registerAndEnqueueImage(ctx, library, mediaID, imagepipeline.RoleBackdrop, backdropPath, "backdrop@1280"); err != nil {
			return err
		}
	}
	return nil
}

// refreshMovieBatchHash recomputes the batch's content hash over the
// (movie id, title) pairs currently assigned to it — invariant: a batch's
// version only advances when that content actually changes.
func (w *Worker) refreshMovieBatchHash(ctx context.Context, library ids.LibraryID, batchID int64) error {
	movies, err := w.mediarepo.ListLibraryMovies(ctx, library)
	if err != nil {
		return err
	}
	type row struct{ id, title string }
	var rows []row
	for _, m := range movies {
		if m.BatchID != nil && *m.BatchID == batchID {
			rows = append(rows, row{m.ID.String(), m.Title})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	h := xxhash.New()
	for _, r := range rows {
		h.WriteString(r.id)
		h.WriteString("\x00")
		h.WriteString(r.title)
		h.WriteString("\x1f")
	}
	return w.mediarepo.UpsertMovieBatchHash(ctx, library, batchID, h.Sum64(), len(rows))
}

func (w *Worker) indexEpisode(ctx context.Context, library ids.LibraryID, file mediarepo.MediaFile, params IndexUpsertParams) error {
	showTitle := params.Parsed.ShowName
	var tmdbSeriesID *int64
	var seriesPosterPath string
	if params.Series != nil {
		if params.Series.Title != "" {
			showTitle = params.Series.Title
		}
		id := params.Series.TmdbID
		tmdbSeriesID = &id
		seriesPosterPath = params.Series.PosterPath
	}

	series, err := w.mediarepo.StoreSeriesReference(ctx, library, showTitle, tmdbSeriesID, nil)
	if err != nil {
		return err
	}

	seasonNumber := 0
	if params.Parsed.Season != nil {
		seasonNumber = *params.Parsed.Season
	}
	season, err := w.mediarepo.StoreSeasonReference(ctx, library, series.ID, seasonNumber, nil)
	if err != nil {
		return err
	}

	episodeNumber := 0
	if params.Parsed.Episode != nil {
		episodeNumber = *params.Parsed.Episode
	}
	ep, err := w.mediarepo.StoreEpisodeReference(ctx, library, file, series.ID, season.ID, seasonNumber, episodeNumber, tmdbSeriesID)
	if err != nil {
		return err
	}
	w.bus.PublishMediaChanged(ids.EpisodeMediaID(ep.ID), ids.KindEpisode)

	if err := w.refreshSeriesBundleHash(ctx, library, series.ID); err != nil {
		return err
	}

	if seriesPosterPath != "" {
		existing, err := w.images.OriginalForMedia(ctx, ids.SeriesMediaID(series.ID), imagepipeline.RolePoster)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := w.registerAndEnqueueImage(ctx, library, ids.SeriesMediaID(series.ID), imagepipeline.RolePoster, seriesPosterPath, "poster@500"); err != nil {
				return err
			}
		}
	}

	existingThumb, err := w.images.OriginalForMedia(ctx, ids.EpisodeMediaID(ep.ID), imagepipeline.RoleThumbnail)
	if err != nil {
		return err
	}
	if existingThumb == nil {
		imageID, err := w.images.RegisterOriginal(ctx, ids.EpisodeMediaID(ep.ID), imagepipeline.RoleThumbnail, "", true)
		if err != nil {
			return err
		}
		if err := w.enqueueImageFetch(ctx, library, ImageFetchParams{
			ImageID:   imageID.String(),
			MediaKind: string(ids.KindEpisode),
			MediaID:   ep.ID.String(),
			Size:      "thumbnail@480",
			Role:      string(imagepipeline.RoleThumbnail),
			VideoPath: file.FilePath,
			TargetPct: 0.3,
		}); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) refreshSeriesBundleHash(ctx context.Context, library ids.LibraryID, series ids.SeriesID) error {
	episodes, err := w.mediarepo.ListSeriesEpisodes(ctx, series)
	if err != nil {
		return err
	}
	type row struct {
		id            string
		season, epNum int
	}
	rows := make([]row, 0, len(episodes))
	for _, e := range episodes {
		rows = append(rows, row{e.ID.String(), e.SeasonNumber, e.EpisodeNumber})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	h := xxhash.New()
	for _, r := range rows {
		h.WriteString(r.id)
		h.WriteString("\x00")
		h.WriteString(strconvItoa64(int64(r.season)))
		h.WriteString("\x00")
		h.WriteString(strconvItoa64(int64(r.epNum)))
		h.WriteString("\x1f")
	}
	return w.mediarepo.UpsertSeriesBundleHash(ctx, library, series, h.Sum64())
}

// registerAndEnqueueImage records a newly-learned catalog artwork path as an
// OriginalImage and enqueues the ImageFetch job that materializes it.
func (w *Worker) registerAndEnqueueImage(ctx context.Context, library ids.LibraryID, mediaID ids.MediaID, role imagepipeline.Role, catalogPath, size string) error {
	existing, err := w.images.OriginalForMedia(ctx, mediaID, role)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	imageID, err := w.images.RegisterOriginal(ctx, mediaID, role, catalogPath, true)
	if err != nil {
		return err
	}
	return w.enqueueImageFetch(ctx, library, ImageFetchParams{
		ImageID:   imageID.String(),
		MediaKind: string(mediaID.Kind),
		MediaID:   mediaID.String(),
		Size:      size,
		Role:      string(role),
	})
}
