package query

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSimilarityThresholdScalesWithQueryLength(t *testing.T) {
	cases := []struct {
		len  int
		want float64
	}{{1, 0.05}, {4, 0.05}, {5, 0.10}, {8, 0.10}, {9, 0.15}, {40, 0.15}}
	for _, c := range cases {
		if got := similarityThreshold(c.len); got != c.want {
			t.Errorf("similarityThreshold(%d) = %v, want %v", c.len, got, c.want)
		}
	}
}

func TestCandidateCapClamped(t *testing.T) {
	if got := candidateCap(1, 2); got != 200 {
		t.Errorf("candidateCap(1,2) = %d, want 200 (floor)", got)
	}
	if got := candidateCap(100000, 1); got != 5000 {
		t.Errorf("candidateCap(100000,1) = %d, want 5000 (ceiling)", got)
	}
	if got := candidateCap(50, 2); got != 1000 {
		t.Errorf("candidateCap(50,2) = %d, want 1000", got)
	}
}

// S5 from the scenarios: "Matrix Reloaded"/"Matrix Revolutions" (prefix
// hits) must rank ahead of "The Matrix"/"Enter the Matrix" (substring only).
func TestRankTitleCandidatesOrdering(t *testing.T) {
	titles := []string{"The Matrix", "Matrix Reloaded", "Matrix Revolutions", "Enter the Matrix"}
	candidates := make([]titleCandidate, len(titles))
	for i, title := range titles {
		candidates[i] = titleCandidate{title: title, result: Result{Title: title}}
	}

	ranked := rankTitleCandidates("matrix", candidates)

	got := make([]string, len(ranked))
	for i, c := range ranked {
		got[i] = c.title
	}
	want := []string{"Matrix Reloaded", "Matrix Revolutions", "The Matrix", "Enter the Matrix"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order = %v, want %v", got, want)
		}
	}
}

func TestInterleaveRoundRobinRespectsBudget(t *testing.T) {
	a := []titleCandidate{{title: "a1"}, {title: "a2"}, {title: "a3"}}
	b := []titleCandidate{{title: "b1"}, {title: "b2"}}

	out := interleaveRoundRobin(a, b, 4)
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	want := []string{"a1", "b1", "a2", "b2"}
	for i, c := range out {
		if c.title != want[i] {
			t.Errorf("out[%d] = %q, want %q", i, c.title, want[i])
		}
	}
}

func TestValidateRejectsNegativePagination(t *testing.T) {
	if err := validate(MediaQuery{Pagination: Pagination{Offset: -1, Limit: 10}}); err == nil {
		t.Fatal("expected error for negative offset")
	}
	if err := validate(MediaQuery{Pagination: Pagination{Offset: 0, Limit: -1}}); err == nil {
		t.Fatal("expected error for negative limit")
	}
}

func TestWatchClauseUnwatchedIsAntiJoin(t *testing.T) {
	var args []any
	argN := 1
	clause, err := watchClause(&WatchPredicate{Kind: WatchUnwatched}, uuid.New(), "mr.id", "movie", &argN, &args)
	if err != nil {
		t.Fatalf("watchClause: %v", err)
	}
	if !strings.Contains(clause, "NOT EXISTS") {
		t.Fatalf("unwatched clause = %q, want NOT EXISTS anti-join", clause)
	}
	if len(args) != 2 {
		t.Fatalf("len(args) = %d, want 2 (user, kind)", len(args))
	}
}

func TestWatchClauseRecentlyWatchedDefaultsDays(t *testing.T) {
	var args []any
	argN := 1
	clause, err := watchClause(&WatchPredicate{Kind: WatchRecentlyWatched}, uuid.New(), "s.id", "series", &argN, &args)
	if err != nil {
		t.Fatalf("watchClause: %v", err)
	}
	if !strings.Contains(clause, "last_watched_at") || !strings.Contains(clause, "completed_at") {
		t.Fatalf("recently-watched clause = %q, want both progress and completion checks", clause)
	}
	if args[2] != 14 {
		t.Fatalf("default days = %v, want 14", args[2])
	}
}

func TestValidateRequiresUserForWatchStatus(t *testing.T) {
	q := MediaQuery{Filters: Filters{WatchState: &WatchPredicate{Kind: WatchUnwatched}}}
	if err := validate(q); err == nil {
		t.Fatal("expected error when watch-status predicate has no user context")
	}
}
