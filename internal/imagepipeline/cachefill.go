package imagepipeline

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

type cacheFillJob struct {
	imageID ids.ImageID
	size    SizeDescriptor
}

// cacheFillQueue is the bounded MPSC channel handlers enqueue refresh jobs
// onto without awaiting them; submission never blocks the caller, and a
// full queue drops the job with an explicit counter rather than backing up
// producers.
type cacheFillQueue struct {
	ch      chan cacheFillJob
	dropped int64
}

func newCacheFillQueue(capacity int) *cacheFillQueue {
	if capacity <= 0 {
		capacity = 4096
	}
	return &cacheFillQueue{ch: make(chan cacheFillJob, capacity)}
}

func (q *cacheFillQueue) submit(job cacheFillJob) bool {
	select {
	case q.ch <- job:
		return true
	default:
		atomic.AddInt64(&q.dropped, 1)
		log.Printf("imagepipeline: cache-fill queue full, dropping %s:%s", job.imageID, job.size)
		return false
	}
}

func (q *cacheFillQueue) droppedCount() int64 {
	return atomic.LoadInt64(&q.dropped)
}

// runCacheFillWorkers starts workerCount goroutines draining the queue;
// each job retries on retryable failures up to maxRetries, backing off per
// backoff.Policy but capped at 5s regardless of the policy's own ceiling
// (the cache-fill queue's own, tighter retry budget).
func (p *Pipeline) runCacheFillWorkers(ctx context.Context, workerCount int) {
	if workerCount < 1 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		go p.cacheFillWorkerLoop(ctx)
	}
}

func (p *Pipeline) cacheFillWorkerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.cacheFill.ch:
			p.runCacheFillJob(ctx, job)
		}
	}
}

const cacheFillBackoffCap = 5 * time.Second

func (p *Pipeline) runCacheFillJob(ctx context.Context, job cacheFillJob) {
	if err := p.fillLimiter.Wait(ctx); err != nil {
		return
	}
	var lastErr error
	for attempt := 1; attempt <= p.cfg.maxRetries; attempt++ {
		_, err := p.fetchAndMaterialize(ctx, job.imageID, job.size)
		if err == nil {
			return
		}
		lastErr = err
		if !ferrors.IsRetryable(err) {
			break
		}
		delay := p.backoff.Jittered(uint16(attempt))
		if delay > cacheFillBackoffCap {
			delay = cacheFillBackoffCap
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	if lastErr != nil {
		log.Printf("imagepipeline: cache-fill %s:%s failed after retries: %v", job.imageID, job.size, lastErr)
		_ = p.repo.recordFailure(ctx, job.imageID, job.size, lastErr.Error())
	}
}
