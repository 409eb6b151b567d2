// Package fetcher keeps the image catalog in sync with the remote archive
// and materializes image bytes into the local cache on demand.
package fetcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/domain/event"
	"github.com/astraldesk/skywall/internal/metrics"
	"github.com/astraldesk/skywall/internal/port"
)

// MetaLastSyncAt is the meta key holding the last successful sync time,
// RFC3339. Read back by the status endpoint.
const MetaLastSyncAt = "last_sync_at"

// Config contains fetcher configuration
type Config struct {
	SyncInterval    time.Duration
	DownloadTimeout time.Duration // overall budget for one image, retries included
	MaxRetries      int
	RetryInterval   time.Duration // initial backoff between download attempts
	MaxImageBytes   int64         // reject downloads above this size, 0 disables
	PrefetchWorkers int
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:    6 * time.Hour,
		DownloadTimeout: 2 * time.Minute,
		MaxRetries:      3,
		RetryInterval:   500 * time.Millisecond,
		MaxImageBytes:   64 * 1024 * 1024, // 64MB
		PrefetchWorkers: 2,
	}
}

// Fetcher synchronizes the catalog and downloads image bytes
type Fetcher struct {
	config  *Config
	archive port.ArchiveClient
	images  port.ImageRepository
	store   port.Store
	blobs   port.BlobCache
	events  event.Dispatcher
	metrics metrics.MetricsCollector
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflightCall
	running  bool
	cancel   context.CancelFunc
}

// New creates a new Fetcher
func New(
	cfg *Config,
	archive port.ArchiveClient,
	images port.ImageRepository,
	store port.Store,
	blobs port.BlobCache,
	events event.Dispatcher,
	collector metrics.MetricsCollector,
	logger *zap.Logger,
) *Fetcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 6 * time.Hour
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 2 * time.Minute
	}
	if cfg.PrefetchWorkers == 0 {
		cfg.PrefetchWorkers = 2
	}

	return &Fetcher{
		config:   cfg,
		archive:  archive,
		images:   images,
		store:    store,
		blobs:    blobs,
		events:   events,
		metrics:  collector,
		logger:   logger,
		inflight: make(map[string]*inflightCall),
	}
}

// Start runs the periodic sync loop until ctx is cancelled
func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	f.running = true
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.logger.Info("fetcher started",
		zap.Duration("sync_interval", f.config.SyncInterval))

	// An unreachable archive at boot is not fatal: rotation keeps serving
	// whatever the catalog already holds.
	if _, err := f.SyncCatalog(ctx); err != nil {
		f.logger.Warn("initial catalog sync failed, serving existing catalog",
			zap.Error(err))
	}

	ticker := time.NewTicker(f.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("fetcher stopped")
			return nil
		case <-ticker.C:
			if _, err := f.SyncCatalog(ctx); err != nil {
				f.logger.Error("catalog sync failed", zap.Error(err))
			}
		}
	}
}

// Stop stops the sync loop
func (f *Fetcher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	f.running = false
}

// SyncResult contains counters from one catalog sync
type SyncResult struct {
	ImagesSeen  int
	ImagesAdded int
	Duration    time.Duration
}

// SyncCatalog fetches the archive manifest and merges it into the catalog.
// On any manifest failure, or an empty manifest, the existing catalog is left
// untouched so rotation keeps running on stale data.
func (f *Fetcher) SyncCatalog(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	f.logger.Info("starting catalog sync")

	entries, err := f.archive.FetchManifest(ctx)
	if err != nil {
		f.metrics.RecordSyncRun(classifySyncError(err))
		return nil, err
	}
	if len(entries) == 0 {
		f.metrics.RecordSyncRun(metrics.ResultEmpty)
		return nil, domain.ErrEmptyManifest
	}

	records := make([]domain.ImageRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, domain.NewImageRecord(entry.SourceURL, entry.Theme, entry.FileName))
	}

	added, err := f.images.UpsertImages(records)
	if err != nil {
		f.metrics.RecordSyncRun(metrics.ResultError)
		return nil, domain.NewStorageError("upsert images", err)
	}

	if err := f.store.SetMeta(MetaLastSyncAt, start.UTC().Format(time.RFC3339)); err != nil {
		f.logger.Warn("failed to record sync time", zap.Error(err))
	}
	f.RefreshCatalogGauges()

	result := &SyncResult{
		ImagesSeen:  len(entries),
		ImagesAdded: added,
		Duration:    time.Since(start),
	}

	f.metrics.RecordSyncRun(metrics.ResultOK)
	f.events.Dispatch(event.NewCatalogSynced(result.ImagesSeen, result.ImagesAdded, result.Duration))
	f.logger.Info("catalog sync completed",
		zap.Int("images_seen", result.ImagesSeen),
		zap.Int("images_added", result.ImagesAdded),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// RefreshCatalogGauges pushes current catalog counters into the metrics
func (f *Fetcher) RefreshCatalogGauges() {
	stats, err := f.store.GetCatalogStats()
	if err != nil {
		f.logger.Warn("failed to read catalog stats", zap.Error(err))
		return
	}
	f.metrics.SetCatalogStats(stats.TotalImages, stats.CachedImages, stats.CacheBytes)
}

// classifySyncError maps a manifest failure to its metrics label
func classifySyncError(err error) string {
	switch {
	case domain.IsParseError(err):
		return metrics.ResultParseError
	case domain.IsNetworkError(err):
		return metrics.ResultNetworkError
	default:
		return metrics.ResultError
	}
}
