// Package maintenance keeps the wallpaper cache healthy: it removes stale
// partial downloads, clears catalog records whose files vanished, and
// enforces the cache size budget by evicting already-shown images.
package maintenance

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

// Config contains maintenance service configuration
type Config struct {
	// Interval is how often the janitor runs
	Interval time.Duration

	// PartMaxAge is the age after which an abandoned .part file is removed
	PartMaxAge time.Duration

	// MaxCacheBytes caps the cache directory size, 0 disables the cap
	MaxCacheBytes int64

	// MinFreeBytes keeps this much free space on the cache volume,
	// 0 disables the check
	MinFreeBytes uint64

	// EvictBatch is the most images evicted in one run
	EvictBatch int
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:   30 * time.Minute,
		PartMaxAge: time.Hour,
		EvictBatch: 16,
	}
}

// Service runs periodic cache maintenance
type Service struct {
	config  *Config
	images  port.ImageRepository
	store   port.Store
	blobs   port.BlobCache
	keys    port.ActiveKeySource
	events  event.Dispatcher
	metrics metrics.MetricsCollector
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(
	cfg *Config,
	images port.ImageRepository,
	store port.Store,
	blobs port.BlobCache,
	keys port.ActiveKeySource,
	events event.Dispatcher,
	collector metrics.MetricsCollector,
	logger *zap.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.PartMaxAge == 0 {
		cfg.PartMaxAge = time.Hour
	}
	if cfg.EvictBatch == 0 {
		cfg.EvictBatch = 16
	}

	return &Service{
		config:  cfg,
		images:  images,
		store:   store,
		blobs:   blobs,
		keys:    keys,
		events:  events,
		metrics: collector,
		logger:  logger,
	}
}

// Start runs the janitor until ctx is cancelled. The first run happens
// immediately so leftovers from a crash are cleared at boot.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("interval", s.config.Interval),
		zap.Int64("max_cache_bytes", s.config.MaxCacheBytes))

	s.wg.Add(1)
	go s.loop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce executes one full janitor pass
func (s *Service) RunOnce() {
	s.cleanStaleParts()
	s.clearMissingFiles()
	s.enforceCacheBudget()
	s.refreshGauges()
}

// cleanStaleParts removes partial downloads nothing is writing anymore
func (s *Service) cleanStaleParts() {
	removed, err := s.blobs.CleanStaleParts(s.config.PartMaxAge)
	if err != nil {
		s.logger.Error("failed to clean stale partial downloads", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("removed stale partial downloads", zap.Int("count", removed))
	}
}

// clearMissingFiles detaches catalog records whose cache file disappeared,
// so they become "needs re-fetch" instead of pointing at nothing
func (s *Service) clearMissingFiles() {
	records, err := s.images.ListCached()
	if err != nil {
		s.logger.Error("failed to list cached images", zap.Error(err))
		return
	}

	cleared := 0
	for _, rec := range records {
		if s.blobs.Exists(rec.CachePath) {
			continue
		}
		if err := s.images.ClearCached(rec.ID); err != nil {
			s.logger.Error("failed to clear record with missing file",
				zap.String("image_id", rec.ID),
				zap.Error(err))
			continue
		}
		s.logger.Warn("cache file missing, record cleared for re-fetch",
			zap.String("image_id", rec.ID),
			zap.String("path", rec.CachePath))
		cleared++
	}
	if cleared > 0 {
		s.logger.Info("cleared records with missing files", zap.Int("count", cleared))
	}
}

// enforceCacheBudget evicts already-shown images until the cache fits the
// size cap and the free-space floor. Images an active rotation still owes a
// showing are never touched.
func (s *Service) enforceCacheBudget() {
	over := s.bytesOverBudget()
	if over <= 0 {
		return
	}

	var activeKeys []domain.RotationKey
	if s.keys != nil {
		activeKeys = s.keys.ActiveKeys()
	}

	candidates, err := s.images.GetEvictionCandidates(activeKeys, s.config.EvictBatch)
	if err != nil {
		s.logger.Error("failed to list eviction candidates", zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		s.logger.Warn("cache over budget but nothing is safe to evict",
			zap.Int64("over_bytes", over))
		return
	}

	refs := s.pathRefCounts()

	evicted := 0
	for _, rec := range candidates {
		if over <= 0 {
			break
		}

		// Identical bytes can back several records. The file goes only
		// when this record is its last reference; the record itself is
		// always detached and stays re-fetchable.
		if refs[rec.CachePath] <= 1 {
			if err := s.blobs.Remove(rec.CachePath); err != nil {
				s.logger.Error("failed to remove cache file",
					zap.String("path", rec.CachePath),
					zap.Error(err))
				continue
			}
			over -= rec.ByteSize
		}
		refs[rec.CachePath]--

		if err := s.images.ClearCached(rec.ID); err != nil {
			s.logger.Error("failed to detach evicted record",
				zap.String("image_id", rec.ID),
				zap.Error(err))
			continue
		}

		s.events.Dispatch(event.NewImageEvicted(rec.ID, rec.CachePath, rec.ByteSize))
		evicted++
	}

	if evicted > 0 {
		s.metrics.RecordEvictions(evicted)
		s.logger.Info("evicted cached images",
			zap.Int("count", evicted),
			zap.Int64("still_over_bytes", over))
	}
}

// bytesOverBudget returns how many bytes must go to satisfy both the size
// cap and the free-space floor
func (s *Service) bytesOverBudget() int64 {
	var over int64

	if s.config.MaxCacheBytes > 0 {
		size, err := s.blobs.Size()
		if err != nil {
			s.logger.Error("failed to measure cache size", zap.Error(err))
			return 0
		}
		if size > s.config.MaxCacheBytes {
			over = size - s.config.MaxCacheBytes
		}
	}

	if s.config.MinFreeBytes > 0 {
		free, err := s.blobs.FreeSpace()
		if err != nil {
			s.logger.Error("failed to measure free space", zap.Error(err))
		} else if free < s.config.MinFreeBytes {
			if need := int64(s.config.MinFreeBytes - free); need > over {
				over = need
			}
		}
	}

	return over
}

// pathRefCounts counts cached records per cache path
func (s *Service) pathRefCounts() map[string]int {
	refs := make(map[string]int)
	records, err := s.images.ListCached()
	if err != nil {
		s.logger.Error("failed to count cache references", zap.Error(err))
		return refs
	}
	for _, rec := range records {
		refs[rec.CachePath]++
	}
	return refs
}

// refreshGauges pushes catalog and cache counters into the metrics
func (s *Service) refreshGauges() {
	stats, err := s.store.GetCatalogStats()
	if err != nil {
		s.logger.Error("failed to read catalog stats", zap.Error(err))
		return
	}
	s.metrics.SetCatalogStats(stats.TotalImages, stats.CachedImages, stats.CacheBytes)
}
