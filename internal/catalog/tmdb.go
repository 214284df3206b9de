// Package catalog implements the external catalog-provider lookup the
// orchestrator calls during metadata enrichment to confirm identity for a
// filename classification: search-by-title plus per-episode detail, and
// nothing more.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ferrex-media/ferrex/internal/ferrors"
)

// MovieMatch is the confirmed-identity result for a movie search.
type MovieMatch struct {
	TmdbID       int64
	Title        string
	Year         int
	PosterPath   string
	BackdropPath string
	Confidence   float64
}

// SeriesMatch is the confirmed-identity result for a series search.
type SeriesMatch struct {
	TmdbID     int64
	Title      string
	PosterPath string
	Confidence float64
}

// EpisodeMatch carries the catalog's title for one (series, season, episode)
// triple plus its still image, when the catalog has one.
type EpisodeMatch struct {
	Title     string
	StillPath string
}

// TMDBClient is a minimal TMDB v3 API client: search-by-title plus
// per-episode detail lookup, the two calls the orchestrator's
// MetadataEnrich job actually needs.
type TMDBClient struct {
	apiKey string
	client *http.Client
}

func NewTMDBClient(apiKey string) *TMDBClient {
	return &TMDBClient{apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}
}

type tmdbSearchResponse struct {
	Results []struct {
		ID           int64   `json:"id"`
		Title        string  `json:"title"`
		Name         string  `json:"name"`
		ReleaseDate  string  `json:"release_date"`
		FirstAirDate string  `json:"first_air_date"`
		PosterPath   string  `json:"poster_path"`
		BackdropPath string  `json:"backdrop_path"`
		Popularity   float64 `json:"popularity"`
	} `json:"results"`
}

// SearchMovie looks up a movie by title, optionally narrowed by year,
// returning the top-ranked TMDB result.
func (c *TMDBClient) SearchMovie(ctx context.Context, title string, year int) (*MovieMatch, error) {
	if c.apiKey == "" {
		return nil, ferrors.New(ferrors.Internal, "tmdb api key not configured")
	}
	reqURL := fmt.Sprintf("https://api.themoviedb.org/3/search/movie?api_key=%s&query=%s",
		c.apiKey, url.QueryEscape(title))
	if year > 0 {
		reqURL += fmt.Sprintf("&year=%d", year)
	}

	var resp tmdbSearchResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	top := resp.Results[0]
	matchYear := 0
	if len(top.ReleaseDate) >= 4 {
		fmt.Sscanf(top.ReleaseDate[:4], "%d", &matchYear)
	}
	return &MovieMatch{
		TmdbID:       top.ID,
		Title:        top.Title,
		Year:         matchYear,
		PosterPath:   top.PosterPath,
		BackdropPath: top.BackdropPath,
		Confidence:   1.0,
	}, nil
}

// SearchSeries looks up a series by its show name.
func (c *TMDBClient) SearchSeries(ctx context.Context, showName string) (*SeriesMatch, error) {
	if c.apiKey == "" {
		return nil, ferrors.New(ferrors.Internal, "tmdb api key not configured")
	}
	reqURL := fmt.Sprintf("https://api.themoviedb.org/3/search/tv?api_key=%s&query=%s",
		c.apiKey, url.QueryEscape(showName))

	var resp tmdbSearchResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	top := resp.Results[0]
	return &SeriesMatch{TmdbID: top.ID, Title: top.Name, PosterPath: top.PosterPath, Confidence: 1.0}, nil
}

type tmdbSeasonResponse struct {
	Episodes []struct {
		EpisodeNumber int    `json:"episode_number"`
		Name          string `json:"name"`
		StillPath     string `json:"still_path"`
	} `json:"episodes"`
}

// GetEpisode fetches the season's episode list from TMDB and picks out the
// entry for episodeNumber, a single request covering every episode in the
// season rather than one request per episode.
func (c *TMDBClient) GetEpisode(ctx context.Context, tmdbSeriesID int64, season, episode int) (*EpisodeMatch, error) {
	if c.apiKey == "" {
		return nil, ferrors.New(ferrors.Internal, "tmdb api key not configured")
	}
	reqURL := fmt.Sprintf("https://api.themoviedb.org/3/tv/%d/season/%d?api_key=%s", tmdbSeriesID, season, c.apiKey)

	var resp tmdbSeasonResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	for _, e := range resp.Episodes {
		if e.EpisodeNumber == episode {
			return &EpisodeMatch{Title: e.Name, StillPath: e.StillPath}, nil
		}
	}
	return nil, nil
}

func (c *TMDBClient) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ferrors.Wrap(ferrors.Internal, "build tmdb request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ferrors.Wrap(ferrors.Http, "tmdb request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ferrors.WrapHTTPStatus(resp.StatusCode, reqURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ferrors.Wrap(ferrors.Internal, "decode tmdb response", err)
	}
	return nil
}
