package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every operator-tunable knob enumerated in the "Configuration
// options" section of the external interfaces: queue leases, retry policy,
// image pipeline concurrency, and storage paths.
type Config struct {
	Port          int
	DatabaseURL   string
	DataDir       string
	MigrationsDir string

	ImageCacheRoot string
	TMDBImageBase  string
	TMDBAPIKey     string

	FFmpegPath  string
	FFprobePath string

	DownloadConcurrency  int
	CacheFillQueueSize   int
	CacheFillConcurrency int
	CacheFillMaxRetries  int

	RetryMaxAttempts int
	RetryBaseMs      int
	RetryMaxMs       int

	LeaseTTLFolderScan     time.Duration
	LeaseTTLMediaAnalyze   time.Duration
	LeaseTTLMetadataEnrich time.Duration
	LeaseTTLIndexUpsert    time.Duration
	LeaseTTLImageFetch     time.Duration

	EventBusBacklog int

	RequiredExtensions []string
}

func Load() *Config {
	return &Config{
		Port:          envInt("PORT", 8080),
		DatabaseURL:   env("DATABASE_URL", "postgres://ferrex:ferrex@db:5432/ferrex?sslmode=disable"),
		DataDir:       env("DATA_DIR", "/data"),
		MigrationsDir: env("MIGRATIONS_DIR", "migrations"),

		ImageCacheRoot: env("IMAGE_CACHE_ROOT", "/data/images"),
		TMDBImageBase:  env("TMDB_IMAGE_BASE", "https://image.tmdb.org/t/p"),
		TMDBAPIKey:     env("TMDB_API_KEY", ""),

		FFmpegPath:  env("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: env("FFPROBE_PATH", "ffprobe"),

		DownloadConcurrency:  envInt("DOWNLOAD_CONCURRENCY", 12),
		CacheFillQueueSize:   envInt("CACHE_FILL_QUEUE_SIZE", 4096),
		CacheFillConcurrency: envInt("CACHE_FILL_CONCURRENCY", 0), // 0 => derived, see below
		CacheFillMaxRetries:  envInt("CACHE_FILL_MAX_RETRIES", 5),

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseMs:      envInt("RETRY_BACKOFF_BASE_MS", 500),
		RetryMaxMs:       envInt("RETRY_BACKOFF_MAX_MS", 5*60*1000),

		LeaseTTLFolderScan:     envDuration("LEASE_TTL_FOLDER_SCAN", 2*time.Minute),
		LeaseTTLMediaAnalyze:   envDuration("LEASE_TTL_MEDIA_ANALYZE", 5*time.Minute),
		LeaseTTLMetadataEnrich: envDuration("LEASE_TTL_METADATA_ENRICH", 30*time.Second),
		LeaseTTLIndexUpsert:    envDuration("LEASE_TTL_INDEX_UPSERT", 15*time.Second),
		LeaseTTLImageFetch:     envDuration("LEASE_TTL_IMAGE_FETCH", 30*time.Second),

		EventBusBacklog: envInt("EVENT_BUS_BACKLOG", 4096),

		RequiredExtensions: []string{"citext", "pg_trgm", "pgcrypto"},
	}
}

// CacheFillWorkerCount resolves the default = min(download_concurrency,
// DB_pool_budget/4) rule when the operator hasn't pinned one.
func (c *Config) CacheFillWorkerCount(dbPoolBudget int) int {
	if c.CacheFillConcurrency > 0 {
		return c.CacheFillConcurrency
	}
	byPool := dbPoolBudget / 4
	if byPool < 1 {
		byPool = 1
	}
	if c.DownloadConcurrency < byPool {
		return c.DownloadConcurrency
	}
	return byPool
}

// MergeFromDB overlays operator-set values from the settings table onto the
// env-derived defaults, so tunables survive a container recreate.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "download_concurrency":
			if v, err := strconv.Atoi(value); err == nil {
				c.DownloadConcurrency = v
			}
		case "cache_fill_max_retries":
			if v, err := strconv.Atoi(value); err == nil {
				c.CacheFillMaxRetries = v
			}
		case "retry_max_attempts":
			if v, err := strconv.Atoi(value); err == nil {
				c.RetryMaxAttempts = v
			}
		case "retry_backoff_base_ms":
			if v, err := strconv.Atoi(value); err == nil {
				c.RetryBaseMs = v
			}
		case "retry_backoff_max_ms":
			if v, err := strconv.Atoi(value); err == nil {
				c.RetryMaxMs = v
			}
		}
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
