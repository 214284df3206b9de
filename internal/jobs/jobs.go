// Package jobs implements the orchestrator's worker side: one poll loop per
// job kind, each leasing from internal/queue and dispatching to the handler
// for that kind.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/ferrex-media/ferrex/internal/events"
	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/imagepipeline"
	"github.com/ferrex-media/ferrex/internal/mediarepo"
	"github.com/ferrex-media/ferrex/internal/queue"
	"github.com/ferrex-media/ferrex/internal/scancursor"
)

// LeaseTTLs carries the per-kind lease duration from config, so the worker
// never hardcodes a TTL the operator can't override.
type LeaseTTLs struct {
	FolderScan     time.Duration
	MediaAnalyze   time.Duration
	MetadataEnrich time.Duration
	IndexUpsert    time.Duration
	ImageFetch     time.Duration
}

func (t LeaseTTLs) forKind(k queue.Kind) time.Duration {
	switch k {
	case queue.KindFolderScan:
		return t.FolderScan
	case queue.KindMediaAnalyze:
		return t.MediaAnalyze
	case queue.KindMetadataEnrich:
		return t.MetadataEnrich
	case queue.KindIndexUpsert:
		return t.IndexUpsert
	case queue.KindImageFetch:
		return t.ImageFetch
	default:
		return 30 * time.Second
	}
}

// Worker owns one poll loop per queue.Kind and the handlers that process
// leased jobs.
type Worker struct {
	queue       *queue.Service
	mediarepo   *mediarepo.Repository
	scancursor  *scancursor.Store
	images      *imagepipeline.Pipeline
	bus         *events.Bus
	metadata    MetadataProvider
	ffmpegPath  string
	ffprobePath string

	id        string
	leaseTTLs LeaseTTLs
	idleDelay time.Duration
}

type Option func(*Worker)

func WithIdleDelay(d time.Duration) Option { return func(w *Worker) { w.idleDelay = d } }

func NewWorker(
	workerID string,
	q *queue.Service,
	mr *mediarepo.Repository,
	sc *scancursor.Store,
	images *imagepipeline.Pipeline,
	bus *events.Bus,
	metadata MetadataProvider,
	ffmpegPath, ffprobePath string,
	leaseTTLs LeaseTTLs,
	opts ...Option,
) *Worker {
	w := &Worker{
		queue:       q,
		mediarepo:   mr,
		scancursor:  sc,
		images:      images,
		bus:         bus,
		metadata:    metadata,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		id:          workerID,
		leaseTTLs:   leaseTTLs,
		idleDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts one poll goroutine per kind and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	done := make(chan struct{}, len(queue.AllKinds))
	for _, k := range queue.AllKinds {
		go func(kind queue.Kind) {
			w.pollLoop(ctx, kind)
			done <- struct{}{}
		}(k)
	}
	for range queue.AllKinds {
		<-done
	}
}

func (w *Worker) pollLoop(ctx context.Context, kind queue.Kind) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lease, err := w.queue.Dequeue(ctx, queue.DequeueRequest{
			Kind:     kind,
			LeaseTTL: w.leaseTTLs.forKind(kind),
			WorkerID: w.id,
		})
		if err != nil {
			log.Printf("jobs: dequeue %s: %v", kind, err)
			w.sleep(ctx, w.idleDelay)
			continue
		}
		if lease == nil {
			w.sleep(ctx, w.idleDelay)
			continue
		}

		w.process(ctx, lease)
	}
}

// keepLeaseAlive renews the lease at half its TTL until the job finishes,
// so a handler that legitimately runs long never loses ownership to the
// expiry sweeper. A NotFound renewal means the lease is already gone;
// nothing left to keep alive.
func (w *Worker) keepLeaseAlive(ctx context.Context, leaseID ids.LeaseID, ttl time.Duration) {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.Renew(ctx, leaseID, interval); err != nil {
				if ferrors.Is(err, ferrors.NotFound) {
					return
				}
				log.Printf("jobs: renew lease %s: %v", leaseID, err)
			}
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (w *Worker) process(ctx context.Context, lease *queue.Lease) {
	renewCtx, stopRenew := context.WithCancel(ctx)
	defer stopRenew()
	go w.keepLeaseAlive(renewCtx, lease.LeaseID, w.leaseTTLs.forKind(lease.Job.Kind))

	var err error
	switch lease.Job.Kind {
	case queue.KindFolderScan:
		err = w.handleFolderScan(ctx, lease)
	case queue.KindMediaAnalyze:
		err = w.handleMediaAnalyze(ctx, lease)
	case queue.KindMetadataEnrich:
		err = w.handleMetadataEnrich(ctx, lease)
	case queue.KindIndexUpsert:
		err = w.handleIndexUpsert(ctx, lease)
	case queue.KindImageFetch:
		err = w.handleImageFetch(ctx, lease)
	default:
		err = ferrors.New(ferrors.Internal, "unknown job kind")
	}

	if err == nil {
		if cErr := w.queue.Complete(ctx, lease.LeaseID); cErr != nil {
			log.Printf("jobs: complete %s %s: %v", lease.Job.Kind, lease.Job.ID, cErr)
		}
		return
	}

	msg := err.Error()
	retryable := ferrors.IsRetryable(err)
	log.Printf("jobs: %s %s failed (retryable=%v): %v", lease.Job.Kind, lease.Job.ID, retryable, err)
	if fErr := w.queue.Fail(ctx, lease.LeaseID, retryable, &msg); fErr != nil {
		log.Printf("jobs: record failure %s %s: %v", lease.Job.Kind, lease.Job.ID, fErr)
	}
}
