package classify

import "testing"

func TestClassifyEpisode(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantKind   Kind
		wantShow   string
		wantSeason int
		wantEp     int
	}{
		{
			name:       "dot separated with release group",
			input:      "/media/tvshows/Breaking.Bad.S01E01.Pilot.1080p.BluRay.x264-GROUP.mkv",
			wantKind:   KindEpisode,
			wantShow:   "Breaking Bad",
			wantSeason: 1,
			wantEp:     1,
		},
		{
			name:       "flexible SxxEyy",
			input:      "Breaking Bad S01E02 Cat's in the Bag.mkv",
			wantKind:   KindEpisode,
			wantShow:   "Breaking Bad",
			wantSeason: 1,
			wantEp:     2,
		},
		{
			name:       "legacy NxN format",
			input:      "The Wire 2x05.mkv",
			wantKind:   KindEpisode,
			wantShow:   "The Wire",
			wantSeason: 2,
			wantEp:     5,
		},
		{
			name:       "absolute number with sane bounds",
			input:      "Friends 304 The One With Ross.mkv",
			wantKind:   KindEpisode,
			wantShow:   "Friends",
			wantSeason: 3,
			wantEp:     4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.input)
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.ShowName != tt.wantShow {
				t.Errorf("ShowName = %q, want %q", got.ShowName, tt.wantShow)
			}
			if got.Season == nil || *got.Season != tt.wantSeason {
				t.Errorf("Season = %v, want %v", got.Season, tt.wantSeason)
			}
			if got.Episode == nil || *got.Episode != tt.wantEp {
				t.Errorf("Episode = %v, want %v", got.Episode, tt.wantEp)
			}
		})
	}
}

func TestClassifyMovie(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTitle string
		wantYear  int
	}{
		{
			name:      "parenthesized year",
			input:     "/media/movies/Dune Part Two (2024).mkv",
			wantTitle: "Dune Part Two",
			wantYear:  2024,
		},
		{
			name:      "dot separated with quality and group",
			input:     "Dune.Part.Two.2024.1080p.BluRay.x264-GROUP.mkv",
			wantTitle: "Dune Part Two",
			wantYear:  2024,
		},
		{
			name:      "bracketed tag and edition marker",
			input:     "The Matrix (1999) [Remastered] Director's Cut.mkv",
			wantTitle: "The Matrix",
			wantYear:  1999,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.input)
			if got.Kind != KindMovie {
				t.Fatalf("Kind = %v, want %v", got.Kind, KindMovie)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Year == nil || *got.Year != tt.wantYear {
				t.Errorf("Year = %v, want %v", got.Year, tt.wantYear)
			}
		})
	}
}

func TestClassifyTVFolderFallback(t *testing.T) {
	got := Classify(`/media/tvshows/The Office/Season 03/The Office - ep 05.mkv`)
	if got.Kind != KindEpisode {
		t.Fatalf("Kind = %v, want %v", got.Kind, KindEpisode)
	}
	if got.ShowName != "The Office" {
		t.Errorf("ShowName = %q, want %q", got.ShowName, "The Office")
	}
	if got.Season == nil || *got.Season != 3 {
		t.Errorf("Season = %v, want 3", got.Season)
	}
	if got.Episode == nil || *got.Episode != 5 {
		t.Errorf("Episode = %v, want 5", got.Episode)
	}
}
