// Package mediarepo implements the Media Reference Repository: durable
// storage for libraries, movies, series, seasons, and episodes plus the
// batch/bundle versioning bookkeeping that lets the metadata-enrichment
// pipeline tell whether a previously-finalized grouping has changed.
package mediarepo

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ferrex-media/ferrex/internal/ids"
)

// FileID identifies a row in media_files, the table every movie/episode
// reference joins against for path and technical-metadata fields.
type FileID uuid.UUID

func (f FileID) String() string { return uuid.UUID(f).String() }

type MediaFile struct {
	ID            FileID
	LibraryID     ids.LibraryID
	FilePath      string
	Filename      string
	FileSize      int64
	DiscoveredAt  time.Time
	CreatedAt     time.Time
	TechnicalMeta json.RawMessage
}

type MovieReference struct {
	ID         ids.MovieID
	TmdbID     *int64
	Title      string
	ThemeColor *string
	BatchID    *int64
	File       MediaFile
}

type SeriesReference struct {
	ID           ids.SeriesID
	LibraryID    ids.LibraryID
	TmdbID       *int64
	Title        string
	ThemeColor   *string
	DiscoveredAt time.Time
	CreatedAt    time.Time
}

type SeasonReference struct {
	ID           ids.SeasonID
	SeriesID     ids.SeriesID
	SeasonNumber int
	LibraryID    ids.LibraryID
	TmdbSeriesID *int64
	DiscoveredAt time.Time
	CreatedAt    time.Time
	ThemeColor   *string
}

type EpisodeReference struct {
	ID            ids.EpisodeID
	EpisodeNumber int
	SeasonNumber  int
	SeasonID      ids.SeasonID
	SeriesID      ids.SeriesID
	TmdbSeriesID  *int64
	DiscoveredAt  time.Time
	CreatedAt     time.Time
	File          MediaFile
}

// MovieBatchVersionRecord pairs a movie reference batch with its current
// version counter, bumped whenever upsert_movie_batch_hash observes a
// changed hash.
type MovieBatchVersionRecord struct {
	BatchID int64
	Version uint64
}

// SeriesBundleVersionRecord is the series analogue, scoped to finalized
// bundles only.
type SeriesBundleVersionRecord struct {
	SeriesID ids.SeriesID
	Version  uint64
}

// TvReferenceOrphanCleanup reports how many dangling season/series rows a
// cleanup pass removed: a season with no remaining episodes, or a series
// with no remaining seasons or episodes.
type TvReferenceOrphanCleanup struct {
	DeletedSeasons int64
	DeletedSeries  int64
}

type LibraryType string

const (
	LibraryTypeMovies LibraryType = "movies"
	LibraryTypeSeries LibraryType = "series"
)
