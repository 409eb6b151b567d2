package fetcher

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
)

// Prefetch downloads up to count uncached images for a filter ahead of
// demand, so selections rarely wait on the network. Individual failures are
// logged and skipped. Returns how many images were cached.
func (f *Fetcher) Prefetch(ctx context.Context, filter domain.Theme, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}

	records, err := f.images.ListUncachedByTheme(filter, count)
	if err != nil {
		return 0, domain.NewStorageError("list uncached", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	f.logger.Debug("prefetching images",
		zap.String("filter", filter.String()),
		zap.Int("count", len(records)))

	workers := f.config.PrefetchWorkers
	if workers > len(records) {
		workers = len(records)
	}

	ids := make(chan string)
	var cached atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				if _, err := f.EnsureCached(ctx, id); err != nil {
					f.logger.Debug("prefetch skipped image",
						zap.String("image_id", id),
						zap.Error(err))
					continue
				}
				cached.Add(1)
			}
		}()
	}

send:
	for _, rec := range records {
		select {
		case <-ctx.Done():
			break send
		case ids <- rec.ID:
		}
	}
	close(ids)
	wg.Wait()

	if n := int(cached.Load()); n > 0 {
		f.RefreshCatalogGauges()
		f.logger.Info("prefetch finished",
			zap.String("filter", filter.String()),
			zap.Int("cached", n))
		return n, nil
	}
	return 0, nil
}
