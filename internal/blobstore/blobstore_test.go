package blobstore

import (
	"os"
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

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("poster bytes")

	meta, err := s.Put("image:abc:poster@500", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if meta.Len != int64(len(data)) {
		t.Errorf("meta.Len = %d, want %d", meta.Len, len(data))
	}
	if meta.Digest == "" {
		t.Error("meta.Digest is empty")
	}

	got, err := s.Get("image:abc:poster@500")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("nope")
	if !ferrors.Is(err, ferrors.NotFound) {
		t.Fatalf("Get(missing) = %v, want NotFound", err)
	}
}

func TestGetRefusesCorruptBytes(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put("k", []byte("original")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := os.WriteFile(s.pathFor("k"), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	_, err := s.Get("k")
	if !ferrors.Is(err, ferrors.InvalidMedia) {
		t.Fatalf("Get(corrupt) = %v, want InvalidMedia", err)
	}
	// The corrupt entry self-heals by deletion; the next read is a plain miss.
	_, err = s.Get("k")
	if !ferrors.Is(err, ferrors.NotFound) {
		t.Fatalf("Get after self-heal = %v, want NotFound", err)
	}
}

func TestMetaMissingIsNil(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Meta("absent")
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if m != nil {
		t.Fatalf("Meta(absent) = %+v, want nil", m)
	}
}

func TestWalkAndRemove(t *testing.T) {
	s := newTestStore(t)
	meta, err := s.Put("k1", []byte("one"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	var entries []Entry
	if err := s.Walk(func(e Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Walk found %d entries, want 1", len(entries))
	}
	if entries[0].Digest != meta.Digest {
		t.Errorf("walked digest = %q, want %q", entries[0].Digest, meta.Digest)
	}
	if entries[0].StoredAt.IsZero() {
		t.Error("walked entry has zero StoredAt")
	}

	if err := s.Remove(entries[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	count := 0
	if err := s.Walk(func(Entry) error { count++; return nil }); err != nil {
		t.Fatalf("Walk after Remove: %v", err)
	}
	if count != 0 {
		t.Fatalf("Walk after Remove found %d entries, want 0", count)
	}
}

func TestNewStoreRejectsRelativeRoot(t *testing.T) {
	if _, err := NewStore("relative/path"); err == nil {
		t.Fatal("expected error for relative root")
	}
}
