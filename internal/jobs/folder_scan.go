package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ferrex-media/ferrex/internal/classify"
	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/queue"
	"github.com/ferrex-media/ferrex/internal/scancursor"
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
}

// FolderScanParams is empty today but kept as an explicit payload type
// rather than decoding straight into struct{} so a future per-scan hint
// (e.g. a single changed subtree) has somewhere to live without changing
// the queue.Payload shape.
type FolderScanParams struct{}

// handleFolderScan walks every root path of the job's library, diffing each
// folder's listing fingerprint against scan_cursors; unchanged folders are
// skipped entirely, and changed ones get a MediaAnalyze job enqueued per
// video file plus an updated cursor.
func (w *Worker) handleFolderScan(ctx context.Context, lease *queue.Lease) error {
	library, err := w.mediarepo.GetLibrary(ctx, lease.Job.LibraryID)
	if err != nil {
		return err
	}

	folders := map[string][]os.DirEntry{}
	for _, root := range library.RootPaths {
		if err := collectFolders(root, folders); err != nil {
			return ferrors.Wrap(ferrors.Io, "walk library root "+root, err)
		}
	}

	for folderPath, entries := range folders {
		norm := normalizePath(folderPath)
		pathHash := ids.PathHash(norm)
		listingHash := listingFingerprint(entries)

		existing, err := w.scancursor.Get(ctx, scancursor.CursorID{LibraryID: library.ID, PathHash: pathHash})
		if err != nil && !ferrors.Is(err, ferrors.NotFound) {
			return err
		}
		if existing != nil && existing.ListingHash == listingHash {
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if !videoExtensions[ext] {
				continue
			}
			filePath := filepath.Join(folderPath, entry.Name())
			if err := w.enqueueMediaAnalyze(ctx, library.ID, filePath); err != nil {
				return err
			}
		}

		now := w.now()
		if err := w.scancursor.Upsert(ctx, scancursor.Cursor{
			ID:             scancursor.CursorID{LibraryID: library.ID, PathHash: pathHash},
			FolderPathNorm: norm,
			ListingHash:    listingHash,
			EntryCount:     len(entries),
			LastScanAt:     now,
		}); err != nil {
			return err
		}
	}

	return w.mediarepo.TouchLibraryScanned(ctx, library.ID, w.now())
}

func (w *Worker) enqueueMediaAnalyze(ctx context.Context, library ids.LibraryID, filePath string) error {
	params, err := json.Marshal(MediaAnalyzeParams{FilePath: filePath})
	if err != nil {
		return ferrors.Wrap(ferrors.Internal, "marshal media-analyze params", err)
	}
	_, err = w.queue.Enqueue(ctx, queue.EnqueueRequest{
		Payload: queue.Payload{
			LibraryID: library,
			Kind:      queue.KindMediaAnalyze,
			Params:    params,
		},
		Priority:  queue.P1,
		DedupeKey: ids.DedupeKey(string(queue.KindMediaAnalyze), library, filePath),
	})
	return err
}

// collectFolders walks root and records, for every directory that contains
// at least one entry, its own []os.DirEntry listing.
func collectFolders(root string, out map[string][]os.DirEntry) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			out[path] = entries
		}
		return nil
	})
}

// listingFingerprint hashes the sorted (name, size) pairs of a folder's
// entries so a cursor comparison is insensitive to OS listing order.
func listingFingerprint(entries []os.DirEntry) string {
	type nameSize struct {
		name string
		size int64
	}
	rows := make([]nameSize, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		rows = append(rows, nameSize{e.Name(), size})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	h := xxhash.New()
	for _, r := range rows {
		h.WriteString(r.name)
		h.WriteString("\x00")
		h.WriteString(strconvItoa64(r.size))
		h.WriteString("\x1f")
	}
	return strconvItoa64(int64(h.Sum64()))
}

func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// classifyEligible reports whether classify.Classify found enough signal
// to be worth indexing; used by handleMediaAnalyze before enqueuing
// MetadataEnrich.
func classifyEligible(info classify.ParsedMediaInfo) bool {
	return strings.TrimSpace(info.Title) != "" || strings.TrimSpace(info.ShowName) != ""
}
