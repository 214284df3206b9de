// Package filestore implements the materialized-file half of the Blob &
// File Stores component: exactly one file per image digest token, written
// atomically via temp-then-rename under blobs-v2/<first-two-hex>/<rest>.
package filestore

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/ferrex-media/ferrex/internal/ferrors"
)

type Store struct {
	root string
}

// NewStore roots the file store at <cacheRoot>/blobs-v2, the fixed
// subdirectory name the external-interfaces file system layout specifies.
func NewStore(cacheRoot string) (*Store, error) {
	if !filepath.IsAbs(cacheRoot) {
		return nil, ferrors.New(ferrors.Internal, "filestore cache root must be absolute")
	}
	root := filepath.Join(cacheRoot, "blobs-v2")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "create filestore root", err)
	}
	return &Store{root: root}, nil
}

// TokenFor derives a token bijectively from a digest: the digest itself,
// hex-encoded, since the digest already uniquely identifies the content.
func TokenFor(digest []byte) string {
	return hex.EncodeToString(digest)
}

func (s *Store) PathFor(token string) string {
	if len(token) < 2 {
		return filepath.Join(s.root, "_short", token)
	}
	return filepath.Join(s.root, token[:2], token[2:])
}

func (s *Store) Exists(token string) bool {
	_, err := os.Stat(s.PathFor(token))
	return err == nil
}

// WriteIfMissing publishes bytes atomically via temp-then-rename, skipping
// the write entirely when the token's file already exists — callers that
// raced to materialize the same digest converge on one winner's bytes.
func (s *Store) WriteIfMissing(token string, data []byte) error {
	p := s.PathFor(token)
	if _, err := os.Stat(p); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return ferrors.Wrap(ferrors.Io, "mkdir file store dir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return ferrors.Wrap(ferrors.Io, "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ferrors.Wrap(ferrors.Io, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ferrors.Wrap(ferrors.Io, "fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ferrors.Wrap(ferrors.Io, "close temp file", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		if os.IsExist(err) {
			return nil
		}
		return ferrors.Wrap(ferrors.Io, "publish file", err)
	}
	return nil
}

func (s *Store) Read(token string) ([]byte, error) {
	data, err := os.ReadFile(s.PathFor(token))
	if os.IsNotExist(err) {
		return nil, ferrors.New(ferrors.NotFound, "file not found")
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "read file", err)
	}
	return data, nil
}

func (s *Store) Root() string { return s.root }
