// Package blobstore implements the content-addressed blob store half of
// the Blob & File Stores component: put/get/meta over a digest-keyed
// directory tree, guaranteeing atomic publish and refusing to return bytes
// whose digest mismatches on read.
package blobstore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/ferrex-media/ferrex/internal/ferrors"
)

type Meta struct {
	Digest   string
	Len      int64
	StoredAt time.Time
}

type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if !filepath.IsAbs(root) {
		return nil, ferrors.New(ferrors.Internal, "blobstore root must be absolute")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "create blobstore root", err)
	}
	return &Store{root: root}, nil
}

func digestOf(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// pathFor mirrors the file store's <first-two-hex>/<rest> fan-out so both
// stores shard identically under the same cache root.
func (s *Store) pathFor(key string) string {
	digest := digestOf([]byte(key))
	return filepath.Join(s.root, digest[:2], digest[2:])
}

func (s *Store) metaPathFor(key string) string {
	return s.pathFor(key) + ".meta"
}

// Put writes bytes for key atomically via temp-then-rename: readers never
// observe a partial write.
func (s *Store) Put(key string, data []byte) (Meta, error) {
	digest := digestOf(data)
	p := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Meta{}, ferrors.Wrap(ferrors.Io, "mkdir blob dir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return Meta{}, ferrors.Wrap(ferrors.Io, "create temp blob", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Meta{}, ferrors.Wrap(ferrors.Io, "write temp blob", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Meta{}, ferrors.Wrap(ferrors.Io, "fsync temp blob", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Meta{}, ferrors.Wrap(ferrors.Io, "close temp blob", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return Meta{}, ferrors.Wrap(ferrors.Io, "publish blob", err)
	}

	meta := Meta{Digest: digest, Len: int64(len(data)), StoredAt: time.Now()}
	if err := s.writeMeta(key, meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

func (s *Store) writeMeta(key string, m Meta) error {
	line := fmt.Sprintf("%s %d %d", m.Digest, m.Len, m.StoredAt.UnixNano())
	mp := s.metaPathFor(key)
	tmp, err := os.CreateTemp(filepath.Dir(mp), ".tmp-meta-*")
	if err != nil {
		return ferrors.Wrap(ferrors.Io, "create temp blob meta", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(line); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ferrors.Wrap(ferrors.Io, "write temp blob meta", err)
	}
	tmp.Close()
	if err := os.Rename(tmpName, mp); err != nil {
		os.Remove(tmpName)
		return ferrors.Wrap(ferrors.Io, "publish blob meta", err)
	}
	return nil
}

// Get reads bytes for key, verifying the stored digest against a recompute
// over the bytes actually read; a mismatch is treated as corruption, never
// silently served.
func (s *Store) Get(key string) ([]byte, error) {
	p := s.pathFor(key)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ferrors.New(ferrors.NotFound, "blob not found")
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "read blob", err)
	}

	m, err := s.Meta(key)
	if err == nil && m != nil && digestOf(data) != m.Digest {
		// Self-heal: refuse to serve corrupt bytes.
		os.Remove(p)
		return nil, ferrors.New(ferrors.InvalidMedia, "blob digest mismatch")
	}
	return data, nil
}

func (s *Store) Meta(key string) (*Meta, error) {
	f, err := os.Open(s.metaPathFor(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "read blob meta", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "read blob meta", err)
	}

	var digest string
	var length int64
	var storedAtNano int64
	if _, err := fmt.Sscanf(string(raw), "%s %d %d", &digest, &length, &storedAtNano); err != nil {
		return nil, ferrors.Wrap(ferrors.Internal, "parse blob meta", err)
	}
	return &Meta{Digest: digest, Len: length, StoredAt: time.Unix(0, storedAtNano)}, nil
}

// Root reports the store's root directory, for diagnostics.
func (s *Store) Root() string { return s.root }

// Entry is one stored blob discovered by Walk: its data path, meta path, and
// recorded digest.
type Entry struct {
	DataPath string
	MetaPath string
	Digest   string
	Len      int64
	StoredAt time.Time
}

// Walk visits every blob currently on disk by scanning for ".meta" sidecar
// files, since the store is keyed by a one-way hash of the caller's logical
// key rather than by digest — the meta file is the only place the digest
// that was actually stored is recoverable from.
func (s *Store) Walk(fn func(Entry) error) error {
	return filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".meta" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return ferrors.Wrap(ferrors.Io, "read blob meta", err)
		}
		var digest string
		var length int64
		var storedAtNano int64
		if _, err := fmt.Sscanf(string(raw), "%s %d %d", &digest, &length, &storedAtNano); err != nil {
			return ferrors.Wrap(ferrors.Internal, "parse blob meta", err)
		}
		dataPath := path[:len(path)-len(".meta")]
		return fn(Entry{
			DataPath: dataPath, MetaPath: path,
			Digest: digest, Len: length, StoredAt: time.Unix(0, storedAtNano),
		})
	})
}

// Remove deletes a blob's data and meta files; used by housekeeping to
// reclaim orphaned entries. Missing files are not an error.
func (s *Store) Remove(e Entry) error {
	if err := os.Remove(e.DataPath); err != nil && !os.IsNotExist(err) {
		return ferrors.Wrap(ferrors.Io, "remove orphaned blob", err)
	}
	if err := os.Remove(e.MetaPath); err != nil && !os.IsNotExist(err) {
		return ferrors.Wrap(ferrors.Io, "remove orphaned blob meta", err)
	}
	return nil
}
