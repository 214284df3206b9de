// Package query implements the media library's read-only query façade:
// filtered/sorted indices, hierarchical TV queries, watch-status joins, and
// fuzzy title search.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbollon/go-edlib"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/watchstate"
)

// completedThreshold matches watchstate.Store's InProgress/Completed
// boundary; the watch-status predicate branch below reimplements the same
// rule as SQL so it can restrict a structural query rather than hydrate
// one record at a time.
const completedThreshold = 0.95

type SortField string

const (
	SortTitle       SortField = "title"
	SortDateAdded   SortField = "date_added"
	SortReleaseDate SortField = "release_date"
	SortRating      SortField = "rating"
	SortRuntime     SortField = "runtime"
	SortPopularity  SortField = "popularity"
)

type WatchPredicateKind string

const (
	WatchInProgress      WatchPredicateKind = "in_progress"
	WatchCompleted       WatchPredicateKind = "completed"
	WatchUnwatched       WatchPredicateKind = "unwatched"
	WatchRecentlyWatched WatchPredicateKind = "recently_watched"
)

type WatchPredicate struct {
	Kind WatchPredicateKind
	Days int // only meaningful for WatchRecentlyWatched
}

type Filters struct {
	Libraries  []ids.LibraryID
	Kind       *ids.MediaKind
	Genres     []string
	YearMin    *int
	YearMax    *int
	RatingMin  *float64
	RatingMax  *float64
	WatchState *WatchPredicate
}

type SearchSpec struct {
	Text  string
	Fuzzy bool
	// Fields is not consulted by the engine: a search always matches the
	// movie and series title columns, narrowed only by Filters.Kind.
	Fields []string
}

type SortSpec struct {
	Field SortField
	Desc  bool
}

type Pagination struct {
	Offset int
	Limit  int
}

type MediaQuery struct {
	Filters    Filters
	Search     *SearchSpec
	Sort       SortSpec
	Pagination Pagination
	UserID     *uuid.UUID
}

type Result struct {
	MediaID     ids.MediaID
	Title       string
	LibraryID   ids.LibraryID
	ReleaseDate *time.Time
	DateAdded   time.Time
	Rating      *float64
	Runtime     *int
	Popularity  *float64
	WatchStatus string
}

type Engine struct {
	db    *sql.DB
	watch *watchstate.Store
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db, watch: watchstate.NewStore(db)}
}

// validate rejects negative offsets/limits as InvalidMedia; limit == 0 is a
// valid "give me nothing" query and returns [] rather than erroring.
func validate(q MediaQuery) error {
	if q.Pagination.Offset < 0 || q.Pagination.Limit < 0 {
		return ferrors.New(ferrors.InvalidMedia, "offset and limit must be non-negative")
	}
	if q.Filters.WatchState != nil && q.UserID == nil {
		return ferrors.New(ferrors.InvalidMedia, "watch-status predicate requires a user context")
	}
	return nil
}

// Execute dispatches by strategy: watch-status
// predicate first (requires a user), then pure title search, then
// kind-branched structural query. An unspecified kind with no search
// defaults to Movies.
func (e *Engine) Execute(ctx context.Context, q MediaQuery) ([]Result, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	if q.Pagination.Limit == 0 {
		return []Result{}, nil
	}

	results, err := e.dispatch(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.UserID != nil {
		if err := e.hydrateWatchStatus(ctx, *q.UserID, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (e *Engine) dispatch(ctx context.Context, q MediaQuery) ([]Result, error) {
	if q.Filters.WatchState != nil {
		return e.executeWatchStatus(ctx, q)
	}
	if q.Search != nil && strings.TrimSpace(q.Search.Text) != "" {
		return e.executeTitleSearch(ctx, q)
	}

	kind := ids.KindMovie
	if q.Filters.Kind != nil {
		kind = *q.Filters.Kind
	}
	switch kind {
	case ids.KindSeries, ids.KindSeason, ids.KindEpisode:
		return e.executeSeriesQuery(ctx, q)
	default:
		return e.executeMovieQuery(ctx, q)
	}
}

// hydrateWatchStatus resolves the caller's per-item status onto each result;
// anonymous queries skip hydration entirely.
func (e *Engine) hydrateWatchStatus(ctx context.Context, userID uuid.UUID, results []Result) error {
	for i := range results {
		st, err := e.watch.Resolve(ctx, userID, results[i].MediaID)
		if err != nil {
			return err
		}
		results[i].WatchStatus = string(st.Status)
	}
	return nil
}

// ---- fuzzy title search -------------------------------------------------

// similarityThreshold scales the pg_trgm acceptance bar with query length:
// short queries need a looser bar to surface anything at all.
func similarityThreshold(queryLen int) float64 {
	switch {
	case queryLen <= 4:
		return 0.05
	case queryLen <= 8:
		return 0.10
	default:
		return 0.15
	}
}

// candidateCap implements ceil(fetch_limit * 40 / kinds) clamped [200, 5000].
func candidateCap(fetchLimit, kinds int) int {
	if kinds <= 0 {
		kinds = 1
	}
	raw := int(math.Ceil(float64(fetchLimit*40) / float64(kinds)))
	if raw < 200 {
		return 200
	}
	if raw > 5000 {
		return 5000
	}
	return raw
}

type titleCandidate struct {
	mediaID    ids.MediaID
	libraryID  ids.LibraryID
	title      string
	similarity float64
	result     Result
}

// matchRank buckets a candidate into exact(0) / prefix(1) / substring(2) /
// similarity-only(3), the primary ordering key before length and lowercase
// title tiebreak.
func matchRank(queryLower, titleLower string) int {
	switch {
	case titleLower == queryLower:
		return 0
	case strings.HasPrefix(titleLower, queryLower):
		return 1
	case strings.Contains(titleLower, queryLower):
		return 2
	default:
		return 3
	}
}

// rankTitleCandidates orders by match bucket, then length, then Jaro-Winkler
// similarity to the query (the in-process analogue of pg_trgm's
// similarity() for this small post-fetch re-rank), then lowercase title as
// the final deterministic tiebreak.
func rankTitleCandidates(queryText string, candidates []titleCandidate) []titleCandidate {
	queryLower := strings.ToLower(strings.TrimSpace(queryText))
	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := strings.ToLower(candidates[i].title), strings.ToLower(candidates[j].title)
		ri, rj := matchRank(queryLower, ti), matchRank(queryLower, tj)
		if ri != rj {
			return ri < rj
		}
		if len(ti) != len(tj) {
			return len(ti) < len(tj)
		}
		simI, simJ := edlib.JaroWinklerSimilarity(queryLower, ti), edlib.JaroWinklerSimilarity(queryLower, tj)
		if simI != simJ {
			return simI > simJ
		}
		return ti < tj
	})
	return candidates
}

func (e *Engine) executeTitleSearch(ctx context.Context, q MediaQuery) ([]Result, error) {
	fetchLimit := q.Pagination.Offset + q.Pagination.Limit
	if fetchLimit <= 0 {
		fetchLimit = q.Pagination.Limit
	}

	kinds := 1
	wantMovies, wantSeries := true, true
	if q.Filters.Kind != nil {
		kinds = 1
		wantMovies = *q.Filters.Kind == ids.KindMovie
		wantSeries = !wantMovies
	} else {
		kinds = 2
	}

	candLimit := candidateCap(fetchLimit, kinds)
	threshold := similarityThreshold(len(strings.TrimSpace(q.Search.Text)))

	var movieCandidates, seriesCandidates []titleCandidate
	var err error
	if wantMovies {
		movieCandidates, err = e.fetchMovieTitleCandidates(ctx, q.Search.Text, q.Filters, threshold, candLimit)
		if err != nil {
			return nil, err
		}
	}
	if wantSeries {
		seriesCandidates, err = e.fetchSeriesTitleCandidates(ctx, q.Search.Text, q.Filters, threshold, candLimit)
		if err != nil {
			return nil, err
		}
	}

	movieCandidates = rankTitleCandidates(q.Search.Text, movieCandidates)
	seriesCandidates = rankTitleCandidates(q.Search.Text, seriesCandidates)

	// Multi-type search interleaves movie and series results round-robin up
	// to the fetch budget, before the caller's pagination is applied.
	interleaved := interleaveRoundRobin(movieCandidates, seriesCandidates, fetchLimit)

	return paginate(toResults(interleaved), q.Pagination), nil
}

func interleaveRoundRobin(a, b []titleCandidate, budget int) []titleCandidate {
	out := make([]titleCandidate, 0, budget)
	i, j := 0, 0
	for len(out) < budget && (i < len(a) || j < len(b)) {
		if i < len(a) {
			out = append(out, a[i])
			i++
		}
		if len(out) >= budget {
			break
		}
		if j < len(b) {
			out = append(out, b[j])
			j++
		}
	}
	return out
}

func toResults(cs []titleCandidate) []Result {
	out := make([]Result, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.result)
	}
	return out
}

func paginate(results []Result, p Pagination) []Result {
	if p.Offset >= len(results) {
		return []Result{}
	}
	end := p.Offset + p.Limit
	if end > len(results) {
		end = len(results)
	}
	return results[p.Offset:end]
}

func (e *Engine) fetchMovieTitleCandidates(ctx context.Context, text string, f Filters, threshold float64, limit int) ([]titleCandidate, error) {
	args := []any{text, threshold}
	where := []string{"(mr.title ILIKE '%' || $1 || '%' OR similarity(mr.title, $1) >= $2)"}
	argN := 3
	if len(f.Libraries) > 0 {
		where = append(where, inLibraries("mf.library_id", f.Libraries, &args, &argN))
	}
	query := `
		SELECT mr.id, mf.library_id, mr.title, mf.discovered_at, similarity(mr.title, $1) AS sim
		FROM movie_references mr
		JOIN media_files mf ON mr.file_id = mf.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY sim DESC
		LIMIT ` + bindLimit(argN, &args, limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "fetch movie title candidates", err)
	}
	defer rows.Close()

	var out []titleCandidate
	for rows.Next() {
		var id, lib uuid.UUID
		var title string
		var discovered time.Time
		var sim float64
		if err := rows.Scan(&id, &lib, &title, &discovered, &sim); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan movie title candidate", err)
		}
		mid := ids.MovieMediaID(ids.MovieID(id))
		out = append(out, titleCandidate{
			mediaID: mid, libraryID: ids.LibraryID(lib), title: title, similarity: sim,
			result: Result{MediaID: mid, Title: title, LibraryID: ids.LibraryID(lib), DateAdded: discovered},
		})
	}
	return out, rows.Err()
}

func (e *Engine) fetchSeriesTitleCandidates(ctx context.Context, text string, f Filters, threshold float64, limit int) ([]titleCandidate, error) {
	args := []any{text, threshold}
	where := []string{"(s.title ILIKE '%' || $1 || '%' OR similarity(s.title, $1) >= $2)"}
	argN := 3
	if len(f.Libraries) > 0 {
		where = append(where, inLibraries("s.library_id", f.Libraries, &args, &argN))
	}
	// date-added fallback: coalesce(file.discovered_at, season.discovered_at, series.discovered_at).
	query := `
		SELECT s.id, s.library_id, s.title,
		       COALESCE(
		         (SELECT MIN(mf.discovered_at) FROM episode_references er JOIN media_files mf ON er.file_id = mf.id WHERE er.series_id = s.id),
		         (SELECT MIN(sr.discovered_at) FROM season_references sr WHERE sr.series_id = s.id),
		         s.discovered_at
		       ) AS date_added,
		       similarity(s.title, $1) AS sim
		FROM series s
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY sim DESC
		LIMIT ` + bindLimit(argN, &args, limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "fetch series title candidates", err)
	}
	defer rows.Close()

	var out []titleCandidate
	for rows.Next() {
		var id, lib uuid.UUID
		var title string
		var dateAdded time.Time
		var sim float64
		if err := rows.Scan(&id, &lib, &title, &dateAdded, &sim); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan series title candidate", err)
		}
		mid := ids.SeriesMediaID(ids.SeriesID(id))
		out = append(out, titleCandidate{
			mediaID: mid, libraryID: ids.LibraryID(lib), title: title, similarity: sim,
			result: Result{MediaID: mid, Title: title, LibraryID: ids.LibraryID(lib), DateAdded: dateAdded},
		})
	}
	return out, rows.Err()
}

func inLibraries(col string, libs []ids.LibraryID, args *[]any, argN *int) string {
	placeholders := make([]string, len(libs))
	for i, l := range libs {
		*args = append(*args, uuid.UUID(l))
		placeholders[i] = "$" + itoa(*argN)
		*argN++
	}
	return col + " IN (" + strings.Join(placeholders, ",") + ")"
}

// bindLimit appends limit to args and returns its "$N" placeholder.
func bindLimit(argN int, args *[]any, limit int) string {
	*args = append(*args, limit)
	return "$" + itoa(argN)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ---- structural (non-search) queries ------------------------------------

func (e *Engine) executeMovieQuery(ctx context.Context, q MediaQuery) ([]Result, error) {
	args := []any{}
	where := []string{"1=1"}
	argN := 1
	if len(q.Filters.Libraries) > 0 {
		where = append(where, inLibraries("mf.library_id", q.Filters.Libraries, &args, &argN))
	}

	orderBy := movieSortColumn(q.Sort.Field)
	dir := "ASC"
	if q.Sort.Desc {
		dir = "DESC"
	}

	query := `
		SELECT mr.id, mf.library_id, mr.title, mf.discovered_at
		FROM movie_references mr
		JOIN media_files mf ON mr.file_id = mf.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + orderBy + ` ` + dir + ` NULLS LAST
		OFFSET $` + itoa(argN) + ` LIMIT $` + itoa(argN+1)
	args = append(args, q.Pagination.Offset, q.Pagination.Limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "execute movie query", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, lib uuid.UUID
		var title string
		var discovered time.Time
		if err := rows.Scan(&id, &lib, &title, &discovered); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan movie query row", err)
		}
		out = append(out, Result{
			MediaID: ids.MovieMediaID(ids.MovieID(id)), Title: title,
			LibraryID: ids.LibraryID(lib), DateAdded: discovered,
		})
	}
	if out == nil {
		out = []Result{}
	}
	return out, rows.Err()
}

func movieSortColumn(f SortField) string {
	switch f {
	case SortDateAdded:
		return "mf.discovered_at"
	case SortTitle:
		return "mr.title"
	default:
		return "mr.title"
	}
}

// executeSeriesQuery serves the structural-query branch for
// Series/Season/Episode kinds: one result per series row, ordered by title,
// with date added taken from the earliest episode file, else the earliest
// season, else the series itself. It does not join seasons or episodes into
// the result set and returns no season or episode results.
func (e *Engine) executeSeriesQuery(ctx context.Context, q MediaQuery) ([]Result, error) {
	args := []any{}
	where := []string{"1=1"}
	argN := 1
	if len(q.Filters.Libraries) > 0 {
		where = append(where, inLibraries("s.library_id", q.Filters.Libraries, &args, &argN))
	}

	query := `
		SELECT s.id, s.library_id, s.title,
		       COALESCE(
		         (SELECT MIN(mf.discovered_at) FROM episode_references er JOIN media_files mf ON er.file_id = mf.id WHERE er.series_id = s.id),
		         (SELECT MIN(sr.discovered_at) FROM season_references sr WHERE sr.series_id = s.id),
		         s.discovered_at
		       ) AS date_added
		FROM series s
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY s.title ASC
		OFFSET $` + itoa(argN) + ` LIMIT $` + itoa(argN+1)
	args = append(args, q.Pagination.Offset, q.Pagination.Limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "execute series query", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, lib uuid.UUID
		var title string
		var dateAdded time.Time
		if err := rows.Scan(&id, &lib, &title, &dateAdded); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan series query row", err)
		}
		out = append(out, Result{
			MediaID: ids.SeriesMediaID(ids.SeriesID(id)), Title: title,
			LibraryID: ids.LibraryID(lib), DateAdded: dateAdded,
		})
	}
	if out == nil {
		out = []Result{}
	}
	return out, rows.Err()
}

// ---- watch-status branch -------------------------------------------------

// watchClause builds the boolean SQL fragment for one of the four
// watch-status predicates (InProgress, Completed, Unwatched,
// RecentlyWatched), read straight from the same watch_progress /
// watch_completions tables watchstate.Store hydrates from — the original
// left Unwatched and RecentlyWatched as unimplemented stubs; both are
// filled in here as NOT EXISTS / anti-join and a within-N-days union.
func watchClause(pred *WatchPredicate, userID uuid.UUID, mediaIDExpr, kindLiteral string, argN *int, args *[]any) (string, error) {
	uidPH := "$" + itoa(*argN)
	*args = append(*args, userID)
	*argN++
	kindPH := "$" + itoa(*argN)
	*args = append(*args, kindLiteral)
	*argN++

	switch pred.Kind {
	case WatchInProgress:
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM watch_progress wp WHERE wp.user_id = %s AND wp.media_kind = %s "+
				"AND wp.media_id = (%s)::text AND wp.duration_seconds > 0 "+
				"AND wp.position_seconds / wp.duration_seconds < %v)",
			uidPH, kindPH, mediaIDExpr, completedThreshold), nil
	case WatchCompleted:
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM watch_completions wc WHERE wc.user_id = %s AND wc.media_kind = %s "+
				"AND wc.media_id = (%s)::text)",
			uidPH, kindPH, mediaIDExpr), nil
	case WatchUnwatched:
		return fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM watch_progress wp WHERE wp.user_id = %s AND wp.media_kind = %s AND wp.media_id = (%s)::text) "+
				"AND NOT EXISTS (SELECT 1 FROM watch_completions wc WHERE wc.user_id = %s AND wc.media_kind = %s AND wc.media_id = (%s)::text)",
			uidPH, kindPH, mediaIDExpr, uidPH, kindPH, mediaIDExpr), nil
	case WatchRecentlyWatched:
		days := pred.Days
		if days <= 0 {
			days = 14
		}
		daysPH := "$" + itoa(*argN)
		*args = append(*args, days)
		*argN++
		return fmt.Sprintf(
			"(EXISTS (SELECT 1 FROM watch_progress wp WHERE wp.user_id = %s AND wp.media_kind = %s AND wp.media_id = (%s)::text "+
				"AND wp.last_watched_at >= now() - (%s || ' days')::interval) "+
				"OR EXISTS (SELECT 1 FROM watch_completions wc WHERE wc.user_id = %s AND wc.media_kind = %s AND wc.media_id = (%s)::text "+
				"AND wc.completed_at >= now() - (%s || ' days')::interval))",
			uidPH, kindPH, mediaIDExpr, daysPH, uidPH, kindPH, mediaIDExpr, daysPH), nil
	default:
		return "", ferrors.New(ferrors.InvalidMedia, "unknown watch-status predicate")
	}
}

func (e *Engine) executeWatchStatus(ctx context.Context, q MediaQuery) ([]Result, error) {
	kind := ids.KindMovie
	if q.Filters.Kind != nil {
		kind = *q.Filters.Kind
	}
	switch kind {
	case ids.KindSeries, ids.KindSeason, ids.KindEpisode:
		return e.executeSeriesWatchQuery(ctx, q)
	default:
		return e.executeMovieWatchQuery(ctx, q)
	}
}

func (e *Engine) executeMovieWatchQuery(ctx context.Context, q MediaQuery) ([]Result, error) {
	args := []any{}
	where := []string{"1=1"}
	argN := 1
	if len(q.Filters.Libraries) > 0 {
		where = append(where, inLibraries("mf.library_id", q.Filters.Libraries, &args, &argN))
	}
	clause, err := watchClause(q.Filters.WatchState, *q.UserID, "mr.id", "movie", &argN, &args)
	if err != nil {
		return nil, err
	}
	where = append(where, clause)

	query := `
		SELECT mr.id, mf.library_id, mr.title, mf.discovered_at
		FROM movie_references mr
		JOIN media_files mf ON mr.file_id = mf.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY mr.title ASC
		OFFSET $` + itoa(argN) + ` LIMIT $` + itoa(argN+1)
	args = append(args, q.Pagination.Offset, q.Pagination.Limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "execute movie watch-status query", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, lib uuid.UUID
		var title string
		var discovered time.Time
		if err := rows.Scan(&id, &lib, &title, &discovered); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan movie watch-status row", err)
		}
		out = append(out, Result{
			MediaID: ids.MovieMediaID(ids.MovieID(id)), Title: title,
			LibraryID: ids.LibraryID(lib), DateAdded: discovered,
		})
	}
	if out == nil {
		out = []Result{}
	}
	return out, rows.Err()
}

func (e *Engine) executeSeriesWatchQuery(ctx context.Context, q MediaQuery) ([]Result, error) {
	args := []any{}
	where := []string{"1=1"}
	argN := 1
	if len(q.Filters.Libraries) > 0 {
		where = append(where, inLibraries("s.library_id", q.Filters.Libraries, &args, &argN))
	}
	clause, err := watchClause(q.Filters.WatchState, *q.UserID, "s.id", "series", &argN, &args)
	if err != nil {
		return nil, err
	}
	where = append(where, clause)

	query := `
		SELECT s.id, s.library_id, s.title,
		       COALESCE(
		         (SELECT MIN(mf.discovered_at) FROM episode_references er JOIN media_files mf ON er.file_id = mf.id WHERE er.series_id = s.id),
		         (SELECT MIN(sr.discovered_at) FROM season_references sr WHERE sr.series_id = s.id),
		         s.discovered_at
		       ) AS date_added
		FROM series s
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY s.title ASC
		OFFSET $` + itoa(argN) + ` LIMIT $` + itoa(argN+1)
	args = append(args, q.Pagination.Offset, q.Pagination.Limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "execute series watch-status query", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, lib uuid.UUID
		var title string
		var dateAdded time.Time
		if err := rows.Scan(&id, &lib, &title, &dateAdded); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan series watch-status row", err)
		}
		out = append(out, Result{
			MediaID: ids.SeriesMediaID(ids.SeriesID(id)), Title: title,
			LibraryID: ids.LibraryID(lib), DateAdded: dateAdded,
		})
	}
	if out == nil {
		out = []Result{}
	}
	return out, rows.Err()
}
