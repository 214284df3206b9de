package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ferrex-media/ferrex/internal/catalog"
	"github.com/ferrex-media/ferrex/internal/classify"
	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/mediarepo"
	"github.com/ferrex-media/ferrex/internal/queue"
)

// MetadataProvider is the orchestrator's seam onto an external catalog —
// the filename classifier never calls out to the network itself, so every
// live lookup goes through this interface, satisfied in production by
// *catalog.TMDBClient.
type MetadataProvider interface {
	SearchMovie(ctx context.Context, title string, year int) (*catalog.MovieMatch, error)
	SearchSeries(ctx context.Context, showName string) (*catalog.SeriesMatch, error)
	GetEpisode(ctx context.Context, tmdbSeriesID int64, season, episode int) (*catalog.EpisodeMatch, error)
}

type MetadataEnrichParams struct {
	FileID   string                   `json:"file_id"`
	FilePath string                   `json:"file_path"`
	Parsed   classify.ParsedMediaInfo `json:"parsed"`
}

// IndexUpsertParams carries the classification plus whatever the catalog
// confirmed (nil fields mean the catalog had no match and enrichment is
// falling back to filename-derived identity only).
type IndexUpsertParams struct {
	FileID   string                   `json:"file_id"`
	FilePath string                   `json:"file_path"`
	Parsed   classify.ParsedMediaInfo `json:"parsed"`
	Movie    *catalog.MovieMatch      `json:"movie,omitempty"`
	Series   *catalog.SeriesMatch     `json:"series,omitempty"`
	Episode  *catalog.EpisodeMatch    `json:"episode,omitempty"`
}

// handleMetadataEnrich confirms identity against the catalog provider when
// one is configured; a miss or a disabled provider never blocks indexing —
// classification output is advisory only, so IndexUpsert proceeds on
// filename-derived title/year alone.
func (w *Worker) handleMetadataEnrich(ctx context.Context, lease *queue.Lease) error {
	var params MetadataEnrichParams
	if err := json.Unmarshal(lease.Job.Payload.Params, &params); err != nil {
		return ferrors.Wrap(ferrors.Internal, "unmarshal metadata-enrich params", err)
	}

	out := IndexUpsertParams{FileID: params.FileID, FilePath: params.FilePath, Parsed: params.Parsed}

	if w.metadata != nil {
		switch params.Parsed.Kind {
		case classify.KindMovie:
			year := 0
			if params.Parsed.Year != nil {
				year = *params.Parsed.Year
			}
			match, err := w.metadata.SearchMovie(ctx, params.Parsed.Title, year)
			if err != nil && !ferrors.IsRetryable(err) {
				match = nil // non-retryable catalog error: proceed without a match
			} else if err != nil {
				return err
			}
			out.Movie = match
		case classify.KindEpisode:
			series, err := w.metadata.SearchSeries(ctx, params.Parsed.ShowName)
			if err != nil && !ferrors.IsRetryable(err) {
				series = nil
			} else if err != nil {
				return err
			}
			out.Series = series
			if series != nil && params.Parsed.Season != nil && params.Parsed.Episode != nil {
				ep, err := w.metadata.GetEpisode(ctx, series.TmdbID, *params.Parsed.Season, *params.Parsed.Episode)
				if err == nil {
					out.Episode = ep
				}
			}
		}
	}

	return w.enqueueIndexUpsert(ctx, lease.Job.LibraryID, out)
}

func (w *Worker) enqueueIndexUpsert(ctx context.Context, library ids.LibraryID, params IndexUpsertParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return ferrors.Wrap(ferrors.Internal, "marshal index-upsert params", err)
	}
	_, err = w.queue.Enqueue(ctx, queue.EnqueueRequest{
		Payload: queue.Payload{
			LibraryID: library,
			Kind:      queue.KindIndexUpsert,
			Params:    payload,
		},
		Priority:  queue.P1,
		DedupeKey: ids.DedupeKey(string(queue.KindIndexUpsert), library, params.FilePath),
	})
	return err
}

// mediaFileFromPath re-stats the file so StoreMediaFile's upsert never
// overwrites file_size with a stale or zero value — the scan and enrich
// stages run far enough apart that refetching the actual size is cheaper
// than threading it through every intermediate job payload.
func mediaFileFromPath(library ids.LibraryID, filePath string) (mediarepo.MediaFile, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return mediarepo.MediaFile{}, ferrors.Wrap(ferrors.Io, "stat media file", err)
	}
	return mediarepo.MediaFile{
		LibraryID: library,
		FilePath:  filePath,
		Filename:  filepath.Base(filePath),
		FileSize:  info.Size(),
	}, nil
}
