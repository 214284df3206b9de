// Package housekeeping drives the orchestrator's periodic maintenance
// sweeps off a cron schedule: one cron entry per duty, each duty
// independently logged and independently failable so one broken sweep
// never blocks the others.
package housekeeping

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ferrex-media/ferrex/internal/blobstore"
	"github.com/ferrex-media/ferrex/internal/imagepipeline"
	"github.com/ferrex-media/ferrex/internal/mediarepo"
	"github.com/ferrex-media/ferrex/internal/queue"
	"github.com/ferrex-media/ferrex/internal/scancursor"
)

// Config carries every schedule and threshold an operator might want to
// retune without a redeploy; zero values fall back to the defaults NewRunner
// applies.
type Config struct {
	LeaseSweepCron    string
	OrphanCleanupCron string
	CursorPruneCron   string
	CacheStatsCron    string
	BlobCleanupCron   string
	MaxLeaseAttempts  uint16
	StaleCursorAfter  time.Duration
}

func (c Config) withDefaults() Config {
	if c.LeaseSweepCron == "" {
		c.LeaseSweepCron = "@every 1m"
	}
	if c.OrphanCleanupCron == "" {
		c.OrphanCleanupCron = "@every 15m"
	}
	if c.CursorPruneCron == "" {
		c.CursorPruneCron = "@every 1h"
	}
	if c.CacheStatsCron == "" {
		c.CacheStatsCron = "@every 5m"
	}
	if c.BlobCleanupCron == "" {
		c.BlobCleanupCron = "@every 1h"
	}
	if c.MaxLeaseAttempts == 0 {
		c.MaxLeaseAttempts = 5
	}
	if c.StaleCursorAfter == 0 {
		c.StaleCursorAfter = 30 * 24 * time.Hour
	}
	return c
}

// Runner wires the queue, mediarepo, scancursor, and image pipeline
// together behind a single cron.Cron so each duty runs on its own schedule.
type Runner struct {
	cron *cron.Cron
	cfg  Config

	queue      *queue.Service
	mediarepo  *mediarepo.Repository
	scancursor *scancursor.Store
	images     *imagepipeline.Pipeline
}

func NewRunner(q *queue.Service, mr *mediarepo.Repository, sc *scancursor.Store, images *imagepipeline.Pipeline, cfg Config) *Runner {
	return &Runner{
		cron:       cron.New(),
		cfg:        cfg.withDefaults(),
		queue:      q,
		mediarepo:  mr,
		scancursor: sc,
		images:     images,
	}
}

// Start registers every duty on its schedule and launches the cron
// scheduler loop; call Stop to drain running jobs on shutdown.
func (r *Runner) Start(ctx context.Context) error {
	entries := []struct {
		spec string
		fn   func()
	}{
		{r.cfg.LeaseSweepCron, func() { r.sweepExpiredLeases(ctx) }},
		{r.cfg.OrphanCleanupCron, func() { r.cleanupOrphanTvReferences(ctx) }},
		{r.cfg.CursorPruneCron, func() { r.pruneStaleCursors(ctx) }},
		{r.cfg.CacheStatsCron, func() { r.reportCacheStatistics(ctx) }},
		{r.cfg.BlobCleanupCron, func() { r.cleanupOrphanBlobs(ctx) }},
	}
	for _, e := range entries {
		if _, err := r.cron.AddFunc(e.spec, e.fn); err != nil {
			return err
		}
	}
	r.cron.Start()
	return nil
}

// Stop waits for any in-flight duty to finish before returning.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// sweepExpiredLeases resurrects or dead-letters leases past their expiry,
// wrapping queue.Service.ScanExpiredLeases.
func (r *Runner) sweepExpiredLeases(ctx context.Context) {
	n, err := r.queue.ScanExpiredLeases(ctx, r.cfg.MaxLeaseAttempts)
	if err != nil {
		log.Printf("housekeeping: sweep expired leases: %v", err)
		return
	}
	if n > 0 {
		log.Printf("housekeeping: recovered %d expired lease(s)", n)
	}
}

// cleanupOrphanTvReferences runs the season/series orphan sweep for every
// library, not just the one a given scan touched, since bulk deletes
// elsewhere in the tree (e.g. a manual episode removal) can orphan a season
// or series without any scan ever running again for that library.
func (r *Runner) cleanupOrphanTvReferences(ctx context.Context) {
	libraries, err := r.mediarepo.ListLibraries(ctx)
	if err != nil {
		log.Printf("housekeeping: list libraries for orphan cleanup: %v", err)
		return
	}
	for _, lib := range libraries {
		if lib.Kind != mediarepo.LibraryTypeSeries {
			continue
		}
		result, err := r.mediarepo.CleanupOrphanTvReferences(ctx, lib.ID)
		if err != nil {
			log.Printf("housekeeping: cleanup orphan tv references for %s: %v", lib.ID, err)
			continue
		}
		if result.DeletedSeasons > 0 || result.DeletedSeries > 0 {
			log.Printf("housekeeping: library %s: removed %d orphan season(s), %d orphan series",
				lib.ID, result.DeletedSeasons, result.DeletedSeries)
		}
	}
}

// pruneStaleCursors deletes cursors for folders that no longer exist on
// disk — a folder rename or removal outside a library root leaves its old
// cursor behind forever otherwise, since FolderScan only ever upserts
// cursors for folders it still finds.
func (r *Runner) pruneStaleCursors(ctx context.Context) {
	libraries, err := r.mediarepo.ListLibraries(ctx)
	if err != nil {
		log.Printf("housekeeping: list libraries for cursor pruning: %v", err)
		return
	}
	cutoff := time.Now().Add(-r.cfg.StaleCursorAfter)
	for _, lib := range libraries {
		cursors, err := r.scancursor.ListStale(ctx, lib.ID, cutoff)
		if err != nil {
			log.Printf("housekeeping: list stale cursors for %s: %v", lib.ID, err)
			continue
		}
		pruned := 0
		for _, c := range cursors {
			if _, err := os.Stat(c.FolderPathNorm); err == nil {
				continue // folder still exists; just hasn't been rescanned recently
			}
			if err := r.scancursor.Delete(ctx, c.ID); err != nil {
				log.Printf("housekeeping: delete stale cursor %s: %v", c.FolderPathNorm, err)
				continue
			}
			pruned++
		}
		if pruned > 0 {
			log.Printf("housekeeping: library %s: pruned %d stale cursor(s)", lib.ID, pruned)
		}
	}
}

// reportCacheStatistics logs queue depth by (kind, state) and blob-store
// size/count/oldest-age for operator visibility; this is observation only,
// it deletes nothing.
func (r *Runner) reportCacheStatistics(ctx context.Context) {
	counts, err := r.queue.MetricsSnapshot(ctx)
	if err != nil {
		log.Printf("housekeeping: queue metrics snapshot: %v", err)
	} else {
		for _, c := range counts {
			log.Printf("housekeeping: queue %s/%s: %d", c.Kind, c.State, c.Count)
		}
	}

	var fileCount int
	var totalBytes int64
	var oldest time.Time
	walkErr := r.images.Blobs().Walk(func(e blobstore.Entry) error {
		fileCount++
		totalBytes += e.Len
		if !e.StoredAt.IsZero() && (oldest.IsZero() || e.StoredAt.Before(oldest)) {
			oldest = e.StoredAt
		}
		return nil
	})
	if walkErr != nil {
		log.Printf("housekeeping: walk blob store for stats: %v", walkErr)
		return
	}
	if oldest.IsZero() {
		log.Printf("housekeeping: blob store: %d file(s), %d byte(s)", fileCount, totalBytes)
		return
	}
	log.Printf("housekeeping: blob store: %d file(s), %d byte(s), oldest %s old",
		fileCount, totalBytes, time.Since(oldest).Round(time.Minute))
}

// cleanupOrphanBlobs deletes blob-store entries whose digest is no longer
// referenced by any image_variants row, covering the blob store the same
// way the TV-reference sweep covers dangling season/series rows.
func (r *Runner) cleanupOrphanBlobs(ctx context.Context) {
	referenced, err := r.images.ReferencedDigests(ctx)
	if err != nil {
		log.Printf("housekeeping: list referenced digests: %v", err)
		return
	}

	removed := 0
	walkErr := r.images.Blobs().Walk(func(e blobstore.Entry) error {
		if referenced[e.Digest] {
			return nil
		}
		if rmErr := r.images.Blobs().Remove(e); rmErr != nil {
			log.Printf("housekeeping: remove orphan blob %s: %v", e.DataPath, rmErr)
			return nil
		}
		removed++
		return nil
	})
	if walkErr != nil {
		log.Printf("housekeeping: walk blob store: %v", walkErr)
		return
	}
	if removed > 0 {
		log.Printf("housekeeping: removed %d orphaned blob(s)", removed)
	}
}
