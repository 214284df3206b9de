package imagepipeline

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ferrex-media/ferrex/internal/backoff"
	"github.com/ferrex-media/ferrex/internal/blobstore"
	"github.com/ferrex-media/ferrex/internal/events"
	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/filestore"
	"github.com/ferrex-media/ferrex/internal/ids"
)

// SourceResolver maps an (image, size) pair to the HTTP URL (TMDB image
// CDN) the pipeline should materialize from. Episode thumbnails do not go
// through a resolver: GenerateEpisodeThumbnail extracts them from the local
// video file instead of the HTTP path.
type SourceResolver interface {
	ImageURL(ctx context.Context, imageID ids.ImageID, size SizeDescriptor) (string, error)
}

type pipelineConfig struct {
	downloadConcurrency int
	cacheFillQueueSize  int
	cacheFillWorkers    int
	maxRetries          int
	httpTimeout         time.Duration
}

// Pipeline is the image pipeline's process-wide shared state: the
// semaphore, single-flight map, and cache-fill queue are the only
// sanctioned global mutable state besides the DB pool and event bus.
type Pipeline struct {
	repo      *imageRepo
	originals *originalImageRepo
	blobs     *blobstore.Store
	files     *filestore.Store
	events    *events.Bus
	resolver  SourceResolver
	http      *http.Client

	sem         chan struct{}
	sf          *singleFlightGroup
	cacheFill   *cacheFillQueue
	fillLimiter *rate.Limiter
	backoff     backoff.Policy
	cfg         pipelineConfig
}

type Option func(*pipelineConfig)

func WithDownloadConcurrency(n int) Option {
	return func(c *pipelineConfig) { c.downloadConcurrency = n }
}
func WithCacheFillQueueSize(n int) Option {
	return func(c *pipelineConfig) { c.cacheFillQueueSize = n }
}
func WithCacheFillWorkers(n int) Option { return func(c *pipelineConfig) { c.cacheFillWorkers = n } }
func WithMaxRetries(n int) Option       { return func(c *pipelineConfig) { c.maxRetries = n } }

// NewPipeline wires the blob/file stores, event bus, and source resolver
// into a ready-to-run pipeline with the default concurrency knobs
// (download_concurrency=12, cache_fill_queue_size=4096).
func NewPipeline(db *sql.DB, blobs *blobstore.Store, files *filestore.Store, bus *events.Bus, resolver SourceResolver, opts ...Option) *Pipeline {
	repo := newImageRepo(db)
	originals := newOriginalImageRepo(db)
	cfg := pipelineConfig{
		downloadConcurrency: 12,
		cacheFillQueueSize:  4096,
		cacheFillWorkers:    3,
		maxRetries:          5,
		httpTimeout:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Pipeline{
		repo:      repo,
		originals: originals,
		blobs:     blobs,
		files:     files,
		events:    bus,
		resolver:  resolver,
		http:      &http.Client{Timeout: cfg.httpTimeout},
		sem:       make(chan struct{}, cfg.downloadConcurrency),
		sf:        newSingleFlightGroup(),
		cacheFill: newCacheFillQueue(cfg.cacheFillQueueSize),
		// Background fills are paced so a deep queue never saturates the
		// download semaphore that interactive requests also contend on.
		fillLimiter: rate.NewLimiter(rate.Limit(cfg.downloadConcurrency), cfg.downloadConcurrency),
		backoff:     backoff.DefaultPolicy(),
		cfg:         cfg,
	}
}

// Start launches the cache-fill worker pool; call once at process startup.
func (p *Pipeline) Start(ctx context.Context) {
	p.runCacheFillWorkers(ctx, p.cfg.cacheFillWorkers)
}

// EnqueueCacheFill submits a non-blocking refresh request; callers never
// await the result. Returns false if the queue was full and the job was
// dropped.
func (p *Pipeline) EnqueueCacheFill(imageID ids.ImageID, size SizeDescriptor) bool {
	return p.cacheFill.submit(cacheFillJob{imageID: imageID, size: size})
}

// CachedImage implements the Ensure/Refresh state machine: Ensure returns
// the existing record if cached; Refresh always fetches. Single-flight
// dedupes concurrent callers for the same variant; on leader failure,
// followers fall through and try for themselves rather than inheriting the
// leader's error.
func (p *Pipeline) CachedImage(ctx context.Context, imageID ids.ImageID, size SizeDescriptor, policy Policy) (Record, error) {
	if policy == Ensure {
		if rec, err := p.repo.get(ctx, imageID, size); err == nil && rec.cached() {
			if _, readErr := p.blobs.Get(blobKey(imageID, size)); readErr == nil {
				return rec, nil
			}
			// DB attests cached but bytes are gone or corrupt: repair via
			// a single automatic Refresh-policy retry (S4).
			return p.cachedImageRefresh(ctx, imageID, size, true)
		}
	}
	return p.cachedImageRefresh(ctx, imageID, size, false)
}

func (p *Pipeline) cachedImageRefresh(ctx context.Context, imageID ids.ImageID, size SizeDescriptor, isRepair bool) (Record, error) {
	key := variantKey(imageID, size)
	n, isLeader := p.sf.lead(key)
	if !isLeader {
		if err := n.wait(); err != nil && !isRepair {
			// Leader failed; fall through and try ourselves rather than
			// propagating the leader's error to every follower.
			return p.cachedImageRefresh(ctx, imageID, size, isRepair)
		}
		return p.repo.get(ctx, imageID, size)
	}

	rec, err := p.fetchAndMaterialize(ctx, imageID, size)
	p.sf.release(key, n, err)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func variantKey(imageID ids.ImageID, size SizeDescriptor) string {
	return imageID.String() + ":" + string(size)
}

func blobKey(imageID ids.ImageID, size SizeDescriptor) string {
	return "image:" + variantKey(imageID, size)
}

// fetchAndMaterialize acquires the download semaphore, fetches bytes
// (network for posters/stills, ffmpeg frame extraction for episode
// thumbnails handled by the caller before reaching here), writes blob and
// file stores, updates the durable record, and publishes ImageReady.
func (p *Pipeline) fetchAndMaterialize(ctx context.Context, imageID ids.ImageID, size SizeDescriptor) (Record, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return Record{}, ferrors.Wrap(ferrors.Internal, "acquire download semaphore", ctx.Err())
	}

	url, err := p.resolver.ImageURL(ctx, imageID, size)
	if err != nil {
		return Record{}, err
	}

	data, err := p.downloadExact(ctx, url)
	if err != nil {
		return Record{}, err
	}

	return p.materialize(ctx, imageID, size, data)
}

// materialize publishes data into the blob and file stores, upserts the
// durable record, and emits ImageReady exactly once on success.
func (p *Pipeline) materialize(ctx context.Context, imageID ids.ImageID, size SizeDescriptor, data []byte) (Record, error) {
	meta, err := p.blobs.Put(blobKey(imageID, size), data)
	if err != nil {
		return Record{}, err
	}
	digestBytes, err := hex.DecodeString(meta.Digest)
	if err != nil {
		return Record{}, ferrors.Wrap(ferrors.Internal, "decode blob digest", err)
	}
	token := filestore.TokenFor(digestBytes)
	if err := p.files.WriteIfMissing(token, data); err != nil {
		return Record{}, err
	}

	rec := Record{ImageID: imageID, Size: size, Digest: meta.Digest, Token: token, ByteLen: meta.Len}
	if err := p.repo.upsert(ctx, rec); err != nil {
		return Record{}, err
	}

	p.events.PublishImageReady(imageID, string(size), token)
	return rec, nil
}

// downloadExact fetches url with a non-compressed Accept-Encoding policy
// (preserving byte-exact Content-Length) and validates the body length
// against any advertised Content-Length.
func (p *Pipeline) downloadExact(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Internal, "build image request", err)
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Http, "fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ferrors.WrapHTTPStatus(resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Http, "read image body", err)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if want, perr := strconv.Atoi(cl); perr == nil && want != len(data) {
			return nil, ferrors.New(ferrors.InvalidMedia, fmt.Sprintf("content-length mismatch: want %d, got %d", want, len(data)))
		}
	}
	return data, nil
}

// GenerateEpisodeThumbnail extracts a raw RGB24 frame at targetPct into the
// episode's video (at the probed srcW x srcH), center-crops and resizes it,
// materializes it the same way a network-fetched variant is materialized,
// and publishes ImageReady.
func (p *Pipeline) GenerateEpisodeThumbnail(ctx context.Context, imageID ids.ImageID, size SizeDescriptor, ffmpegPath, videoPath string, durationSec int, targetPct float64, srcW, srcH int) (Record, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return Record{}, ferrors.Wrap(ferrors.Internal, "acquire download semaphore", ctx.Err())
	}

	frame, err := extractFrameRGB24(ffmpegPath, videoPath, durationSec, targetPct, srcW, srcH)
	if err != nil {
		return Record{}, err
	}

	thumb, err := generateThumbnail(frame, srcW, srcH, defaultThumbnailSpec())
	if err != nil {
		return Record{}, err
	}

	return p.materialize(ctx, imageID, size, thumb)
}

// GeneratePosterThemeColor extracts and persists a poster's dominant theme
// color onto its already-materialized Poster variant record.
func (p *Pipeline) GeneratePosterThemeColor(ctx context.Context, imageID ids.ImageID, posterSize SizeDescriptor) (string, error) {
	rec, err := p.repo.get(ctx, imageID, posterSize)
	if err != nil {
		return "", err
	}
	data, err := p.blobs.Get(blobKey(imageID, posterSize))
	if err != nil {
		return "", err
	}

	color, err := extractThemeColor(data)
	if err != nil {
		return "", err
	}

	rec.ThemeColor = color
	if err := p.repo.upsert(ctx, rec); err != nil {
		return "", err
	}
	return color, nil
}

// RegisterOriginal records a catalog-sourced or locally-generated original
// image for a media entity; indexing calls this once per poster/backdrop/
// thumbnail it learns about, then enqueues an ImageFetch job keyed on the
// returned ImageID.
func (p *Pipeline) RegisterOriginal(ctx context.Context, mediaID ids.MediaID, role Role, catalogPath string, isPrimary bool) (ids.ImageID, error) {
	return p.originals.Create(ctx, mediaID, role, catalogPath, isPrimary)
}

// OriginalForMedia returns the primary original of the given role for a
// media entity, if one has been registered.
func (p *Pipeline) OriginalForMedia(ctx context.Context, mediaID ids.MediaID, role Role) (*OriginalImage, error) {
	return p.originals.GetByMedia(ctx, mediaID, role)
}

// ReferencedDigests returns every blob digest still attested by an
// image_variants row, for housekeeping's orphaned blob-store sweep.
func (p *Pipeline) ReferencedDigests(ctx context.Context) (map[string]bool, error) {
	return p.repo.allDigests(ctx)
}

// Blobs exposes the underlying blob store so housekeeping can walk it
// without the pipeline needing to re-expose every blobstore method.
func (p *Pipeline) Blobs() *blobstore.Store { return p.blobs }
