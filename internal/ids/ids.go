// Package ids defines the identifier types shared across every component:
// time-ordered UUIDs for entities generated internally, and the tagged-union
// MediaID that replaces inheritance over the Movie/Series/Season/Episode
// hierarchy (design note: polymorphism over media entities).
package ids

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

type (
	LibraryID uuid.UUID
	MovieID   uuid.UUID
	SeriesID  uuid.UUID
	SeasonID  uuid.UUID
	EpisodeID uuid.UUID
	ImageID   uuid.UUID
	JobID     uuid.UUID
	LeaseID   uuid.UUID
)

func NewLibraryID() LibraryID { return LibraryID(uuid.Must(uuid.NewV7())) }
func NewMovieID() MovieID     { return MovieID(uuid.Must(uuid.NewV7())) }
func NewSeriesID() SeriesID   { return SeriesID(uuid.Must(uuid.NewV7())) }
func NewSeasonID() SeasonID   { return SeasonID(uuid.Must(uuid.NewV7())) }
func NewEpisodeID() EpisodeID { return EpisodeID(uuid.Must(uuid.NewV7())) }
func NewImageID() ImageID     { return ImageID(uuid.Must(uuid.NewV7())) }
func NewJobID() JobID         { return JobID(uuid.Must(uuid.NewV7())) }
func NewLeaseID() LeaseID     { return LeaseID(uuid.Must(uuid.NewV7())) }

func (l LibraryID) String() string { return uuid.UUID(l).String() }
func (m MovieID) String() string   { return uuid.UUID(m).String() }
func (s SeriesID) String() string  { return uuid.UUID(s).String() }
func (s SeasonID) String() string  { return uuid.UUID(s).String() }
func (e EpisodeID) String() string { return uuid.UUID(e).String() }
func (i ImageID) String() string   { return uuid.UUID(i).String() }
func (j JobID) String() string     { return uuid.UUID(j).String() }
func (l LeaseID) String() string   { return uuid.UUID(l).String() }

// MediaKind tags which arm of the MediaID/Media union is populated.
type MediaKind string

const (
	KindMovie   MediaKind = "movie"
	KindSeries  MediaKind = "series"
	KindSeason  MediaKind = "season"
	KindEpisode MediaKind = "episode"
)

// MediaID is the tagged union MediaId = Movie(id) | Series(id) | Season(id) |
// Episode(id) called for by the polymorphism-over-media-entities design note.
// Only one of the four ID fields is meaningful, selected by Kind.
type MediaID struct {
	Kind    MediaKind
	Movie   MovieID
	Series  SeriesID
	Season  SeasonID
	Episode EpisodeID
}

func MovieMediaID(id MovieID) MediaID     { return MediaID{Kind: KindMovie, Movie: id} }
func SeriesMediaID(id SeriesID) MediaID   { return MediaID{Kind: KindSeries, Series: id} }
func SeasonMediaID(id SeasonID) MediaID   { return MediaID{Kind: KindSeason, Season: id} }
func EpisodeMediaID(id EpisodeID) MediaID { return MediaID{Kind: KindEpisode, Episode: id} }

func (m MediaID) String() string {
	switch m.Kind {
	case KindMovie:
		return m.Movie.String()
	case KindSeries:
		return m.Series.String()
	case KindSeason:
		return m.Season.String()
	case KindEpisode:
		return m.Episode.String()
	default:
		return ""
	}
}

// DedupeKey builds the canonical "<kind>:<library>:<path-hash>" fingerprint a
// queue enqueue falls back to when the caller doesn't supply one.
func DedupeKey(kind string, library LibraryID, path string) string {
	h := xxhash.Sum64String(path)
	return fmt.Sprintf("%s:%s:%016x", kind, library.String(), h)
}

// PathHash is the 64-bit hash used as the scan-cursor table's key component.
func PathHash(normalizedPath string) uint64 {
	return xxhash.Sum64String(normalizedPath)
}
