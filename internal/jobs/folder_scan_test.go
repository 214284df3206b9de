package jobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ferrex-media/ferrex/internal/classify"
)

func listDir(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return entries
}

func TestListingFingerprintStableAcrossRescans(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mkv", "a.mkv", "c.srt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	first := listingFingerprint(listDir(t, dir))
	second := listingFingerprint(listDir(t, dir))
	if first != second {
		t.Fatalf("fingerprint changed across identical listings: %q vs %q", first, second)
	}
}

func TestListingFingerprintDetectsContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mkv")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	before := listingFingerprint(listDir(t, dir))

	if err := os.WriteFile(path, []byte("v1 but longer"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	after := listingFingerprint(listDir(t, dir))
	if before == after {
		t.Fatal("fingerprint did not change when a file's size changed")
	}

	if err := os.WriteFile(filepath.Join(dir, "new.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("add file: %v", err)
	}
	if listingFingerprint(listDir(t, dir)) == after {
		t.Fatal("fingerprint did not change when a file was added")
	}
}

func TestNormalizePathUsesForwardSlashes(t *testing.T) {
	if got := normalizePath("/media/movies/"); got != "/media/movies" {
		t.Errorf("normalizePath trailing slash = %q, want /media/movies", got)
	}
	if got := normalizePath("/media//tv/../tv/show"); got != "/media/tv/show" {
		t.Errorf("normalizePath = %q, want cleaned /media/tv/show", got)
	}
}

func TestClassifyEligibleRequiresSomeSignal(t *testing.T) {
	if classifyEligible(classify.ParsedMediaInfo{}) {
		t.Fatal("empty classification should not be eligible")
	}
	if !classifyEligible(classify.ParsedMediaInfo{Title: "Heat"}) {
		t.Fatal("movie title should be eligible")
	}
	if !classifyEligible(classify.ParsedMediaInfo{ShowName: "Severance"}) {
		t.Fatal("show name should be eligible")
	}
}
