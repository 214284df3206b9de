package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ferrex-media/ferrex/internal/backoff"
	"github.com/ferrex-media/ferrex/internal/blobstore"
	"github.com/ferrex-media/ferrex/internal/catalog"
	"github.com/ferrex-media/ferrex/internal/config"
	"github.com/ferrex-media/ferrex/internal/db"
	"github.com/ferrex-media/ferrex/internal/events"
	"github.com/ferrex-media/ferrex/internal/filestore"
	"github.com/ferrex-media/ferrex/internal/housekeeping"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/imagepipeline"
	"github.com/ferrex-media/ferrex/internal/jobs"
	"github.com/ferrex-media/ferrex/internal/mediarepo"
	"github.com/ferrex-media/ferrex/internal/queue"
	"github.com/ferrex-media/ferrex/internal/scancursor"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer database.Close()

	if err := db.Preflight(database, cfg.RequiredExtensions); err != nil {
		log.Fatalf("%v", err)
	}
	if err := db.Migrate(database, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	cfg.MergeFromDB(database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := blobstore.NewStore(filepath.Join(cfg.ImageCacheRoot, "blobs"))
	if err != nil {
		log.Fatalf("open blob store: %v", err)
	}
	files, err := filestore.NewStore(cfg.ImageCacheRoot)
	if err != nil {
		log.Fatalf("open file store: %v", err)
	}

	bus := events.NewBus(cfg.EventBusBacklog)

	resolver := imagepipeline.NewTMDBResolver(database, cfg.TMDBImageBase)
	pipeline := imagepipeline.NewPipeline(database, blobs, files, bus, resolver,
		imagepipeline.WithDownloadConcurrency(cfg.DownloadConcurrency),
		imagepipeline.WithCacheFillQueueSize(cfg.CacheFillQueueSize),
		imagepipeline.WithCacheFillWorkers(cfg.CacheFillWorkerCount(db.PoolSize())),
		imagepipeline.WithMaxRetries(cfg.CacheFillMaxRetries),
	)
	pipeline.Start(ctx)

	retry := backoff.Policy{
		MaxAttempts:  uint16(cfg.RetryMaxAttempts),
		BaseMs:       int64(cfg.RetryBaseMs),
		BackoffMaxMs: int64(cfg.RetryMaxMs),
	}
	queueSvc := queue.NewService(database, retry)
	mediaRepo := mediarepo.NewRepository(database)
	cursors := scancursor.NewStore(database)

	var metadata jobs.MetadataProvider
	if cfg.TMDBAPIKey != "" {
		metadata = catalog.NewTMDBClient(cfg.TMDBAPIKey)
	} else {
		log.Println("TMDB_API_KEY not set; indexing will rely on filename classification alone")
	}

	if counts, err := queueSvc.ReadyCountsGrouped(ctx); err == nil && len(counts) > 0 {
		for _, c := range counts {
			log.Printf("queue: %d ready %s job(s) for library %s at priority %d", c.Ready, c.Kind, c.LibraryID, c.Priority)
		}
	}

	workerID, _ := os.Hostname()
	if workerID == "" {
		workerID = "ferrex"
	}
	worker := jobs.NewWorker(workerID, queueSvc, mediaRepo, cursors, pipeline, bus, metadata,
		cfg.FFmpegPath, cfg.FFprobePath,
		jobs.LeaseTTLs{
			FolderScan:     cfg.LeaseTTLFolderScan,
			MediaAnalyze:   cfg.LeaseTTLMediaAnalyze,
			MetadataEnrich: cfg.LeaseTTLMetadataEnrich,
			IndexUpsert:    cfg.LeaseTTLIndexUpsert,
			ImageFetch:     cfg.LeaseTTLImageFetch,
		},
	)
	go worker.Run(ctx)

	keeper := housekeeping.NewRunner(queueSvc, mediaRepo, cursors, pipeline, housekeeping.Config{
		MaxLeaseAttempts: uint16(cfg.RetryMaxAttempts),
	})
	if err := keeper.Start(ctx); err != nil {
		log.Fatalf("start housekeeping: %v", err)
	}
	defer keeper.Stop()

	log.Printf("ferrex started (worker %s, %d download slots)", workerID, cfg.DownloadConcurrency)

	runScanPlanner(ctx, queueSvc, mediaRepo)
}

// runScanPlanner enqueues a FolderScan for every enabled library whose last
// scan predates its own interval, then blocks until shutdown. Dedupe keys
// collapse repeated plans for the same library into one active job.
func runScanPlanner(ctx context.Context, queueSvc *queue.Service, mediaRepo *mediarepo.Repository) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	plan := func() {
		due, err := mediaRepo.ListDueForScan(ctx, time.Now())
		if err != nil {
			log.Printf("scan planner: list libraries: %v", err)
			return
		}
		for _, lib := range due {
			params, err := json.Marshal(jobs.FolderScanParams{})
			if err != nil {
				continue
			}
			handle, err := queueSvc.Enqueue(ctx, queue.EnqueueRequest{
				Payload: queue.Payload{
					LibraryID: lib.ID,
					Kind:      queue.KindFolderScan,
					Params:    params,
				},
				Priority:  queue.P2,
				DedupeKey: ids.DedupeKey(string(queue.KindFolderScan), lib.ID, "library"),
			})
			if err != nil {
				log.Printf("scan planner: enqueue scan for %s: %v", lib.Name, err)
				continue
			}
			if handle.Outcome == queue.Accepted {
				log.Printf("scan planner: queued scan for library %s", lib.Name)
			}
		}
	}

	plan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			plan()
		}
	}
}
