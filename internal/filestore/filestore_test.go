package filestore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferrex-media/ferrex/internal/ferrors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestTokenForIsHexOfDigest(t *testing.T) {
	tok := TokenFor([]byte{0xde, 0xad, 0xbe, 0xef})
	if tok != "deadbeef" {
		t.Fatalf("TokenFor = %q, want deadbeef", tok)
	}
}

func TestPathForShardsByFirstTwoHex(t *testing.T) {
	s := newTestStore(t)
	p := s.PathFor("deadbeef")
	if filepath.Base(filepath.Dir(p)) != "de" {
		t.Errorf("PathFor shard dir = %q, want de", filepath.Base(filepath.Dir(p)))
	}
	if !strings.HasSuffix(p, filepath.Join("de", "adbeef")) {
		t.Errorf("PathFor = %q, want .../de/adbeef", p)
	}
}

func TestStoreRootsUnderBlobsV2(t *testing.T) {
	s := newTestStore(t)
	if filepath.Base(s.Root()) != "blobs-v2" {
		t.Fatalf("Root = %q, want a blobs-v2 directory", s.Root())
	}
}

func TestWriteIfMissingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("materialized image")
	tok := TokenFor([]byte{0x01, 0x02})

	if s.Exists(tok) {
		t.Fatal("token should not exist before write")
	}
	if err := s.WriteIfMissing(tok, data); err != nil {
		t.Fatalf("WriteIfMissing: %v", err)
	}
	if !s.Exists(tok) {
		t.Fatal("token should exist after write")
	}

	// A second write for the same token is a no-op, not an overwrite.
	if err := s.WriteIfMissing(tok, []byte("different bytes")); err != nil {
		t.Fatalf("second WriteIfMissing: %v", err)
	}
	got, err := s.Read(tok)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Read = %q, want first writer's bytes %q", got, data)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("cafe00")
	if !ferrors.Is(err, ferrors.NotFound) {
		t.Fatalf("Read(missing) = %v, want NotFound", err)
	}
}
