package ids

import (
	"strings"
	"testing"
)

func TestDedupeKeyShape(t *testing.T) {
	lib := NewLibraryID()
	key := DedupeKey("analyze", lib, "/media/movies/a.mkv")

	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		t.Fatalf("DedupeKey = %q, want <kind>:<library>:<path-hash>", key)
	}
	if parts[0] != "analyze" {
		t.Errorf("kind component = %q, want analyze", parts[0])
	}
	if parts[1] != lib.String() {
		t.Errorf("library component = %q, want %s", parts[1], lib)
	}
	if len(parts[2]) != 16 {
		t.Errorf("path-hash component = %q, want 16 hex chars", parts[2])
	}
}

func TestDedupeKeyIsDeterministic(t *testing.T) {
	lib := NewLibraryID()
	a := DedupeKey("scan", lib, "/media/tv")
	b := DedupeKey("scan", lib, "/media/tv")
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}
	if a == DedupeKey("scan", lib, "/media/tv2") {
		t.Fatal("different paths produced identical keys")
	}
}

func TestMediaIDStringDispatchesOnKind(t *testing.T) {
	movie := NewMovieID()
	series := NewSeriesID()

	if got := MovieMediaID(movie).String(); got != movie.String() {
		t.Errorf("movie MediaID.String = %q, want %q", got, movie)
	}
	if got := SeriesMediaID(series).String(); got != series.String() {
		t.Errorf("series MediaID.String = %q, want %q", got, series)
	}
	if got := (MediaID{}).String(); got != "" {
		t.Errorf("zero MediaID.String = %q, want empty", got)
	}
}

func TestPathHashMatchesDedupeKeySuffix(t *testing.T) {
	lib := NewLibraryID()
	path := "/media/movies/b.mkv"
	key := DedupeKey("analyze", lib, path)
	if !strings.HasSuffix(key, keyHashHex(path)) {
		t.Fatalf("DedupeKey %q does not end with PathHash of %q", key, path)
	}
}

func keyHashHex(path string) string {
	const hexDigits = "0123456789abcdef"
	h := PathHash(path)
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(buf)
}
