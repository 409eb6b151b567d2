package fetcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/domain/event"
	"github.com/astraldesk/skywall/internal/metrics"
	"github.com/astraldesk/skywall/internal/port"
)

// inflightCall tracks one in-progress download so concurrent requests for
// the same image join it instead of downloading twice
type inflightCall struct {
	done chan struct{}
	path string
	err  error
}

// EnsureCached guarantees the image's bytes are on disk and returns the
// cache path. Already-cached images return immediately; a record whose file
// vanished from disk is cleared and re-fetched. Concurrent calls for the
// same identifier share a single download.
func (f *Fetcher) EnsureCached(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	if call, ok := f.inflight[id]; ok {
		f.mu.Unlock()
		select {
		case <-call.done:
			return call.path, call.err
		case <-ctx.Done():
			return "", domain.NewNetworkError("await download", ctx.Err())
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	f.inflight[id] = call
	f.mu.Unlock()

	call.path, call.err = f.ensure(ctx, id)

	f.mu.Lock()
	delete(f.inflight, id)
	f.mu.Unlock()
	close(call.done)

	return call.path, call.err
}

func (f *Fetcher) ensure(ctx context.Context, id string) (string, error) {
	rec, err := f.images.GetImage(id)
	if err != nil {
		return "", domain.NewStorageError("get image", err)
	}
	if rec == nil {
		return "", domain.ErrImageNotFound
	}

	if rec.Cached() {
		if f.blobs.Exists(rec.CachePath) {
			return rec.CachePath, nil
		}
		// The catalog says cached but the file is gone. Clear and re-fetch.
		f.logger.Warn("cached file missing on disk, re-fetching",
			zap.String("image_id", id),
			zap.String("path", rec.CachePath))
		if err := f.images.ClearCached(id); err != nil {
			return "", domain.NewStorageError("clear cached", err)
		}
		rec.ClearCache()
	}

	return f.download(ctx, rec)
}

// download fetches, verifies and promotes one image with retries. The whole
// attempt sequence shares the configured download budget.
func (f *Fetcher) download(ctx context.Context, rec *domain.ImageRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.DownloadTimeout)
	defer cancel()

	start := time.Now()
	var cachePath string
	var size int64

	attempt := func() error {
		body, expected, err := f.archive.Download(ctx, rec.SourceURL)
		if err != nil {
			if errors.Is(err, domain.ErrSourceGone) {
				return backoff.Permanent(err)
			}
			return err
		}

		staged, err := f.blobs.Stage(rec.ID, body)
		body.Close()
		if err != nil {
			return domain.NewNetworkError("download", err)
		}

		if err := verifyStaged(staged, expected, f.config.MaxImageBytes); err != nil {
			f.blobs.Discard(staged)
			return err
		}

		path, err := f.blobs.Promote(staged, filepath.Ext(rec.FileName))
		if err != nil {
			f.blobs.Discard(staged)
			return backoff.Permanent(domain.NewStorageError("promote", err))
		}

		// The blob stays if this fails: it may back another record with the
		// same content, and the janitor collects orphans.
		if err := f.images.SetCached(rec.ID, path, staged.Hash, staged.Size); err != nil {
			return backoff.Permanent(domain.NewStorageError("set cached", err))
		}

		cachePath = path
		size = staged.Size
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	if f.config.RetryInterval > 0 {
		bo.InitialInterval = f.config.RetryInterval
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(f.config.MaxRetries)),
		ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		f.metrics.RecordDownload(classifyDownloadError(err), 0, 0)
		f.logger.Warn("download failed",
			zap.String("image_id", rec.ID),
			zap.String("url", rec.SourceURL),
			zap.Error(err))
		return "", err
	}

	duration := time.Since(start)
	f.metrics.RecordDownload(metrics.ResultOK, size, duration)
	f.events.Dispatch(event.NewImageCached(rec.ID, rec.Theme, cachePath, size, duration))
	f.logger.Info("image cached",
		zap.String("image_id", rec.ID),
		zap.String("theme", rec.Theme.String()),
		zap.Int64("size", size),
		zap.Duration("duration", duration))

	return cachePath, nil
}

// verifyStaged checks a finished download before it is promoted
func verifyStaged(staged *port.StagedBlob, expectedSize, maxBytes int64) error {
	if staged.Size == 0 {
		return domain.NewIntegrityError("empty download", nil)
	}
	if expectedSize >= 0 && staged.Size != expectedSize {
		return domain.NewIntegrityError(
			fmt.Sprintf("size mismatch: got %d, expected %d", staged.Size, expectedSize), nil)
	}
	if maxBytes > 0 && staged.Size > maxBytes {
		return domain.NewIntegrityError(
			fmt.Sprintf("image too large: %d bytes exceeds limit %d", staged.Size, maxBytes), nil)
	}
	if !strings.HasPrefix(staged.Sniffed, "image/") {
		return domain.NewIntegrityError("content is not an image: "+staged.Sniffed, nil)
	}
	return nil
}

// classifyDownloadError maps a failed download to its metrics label
func classifyDownloadError(err error) string {
	switch {
	case errors.Is(err, domain.ErrSourceGone):
		return metrics.ResultGone
	case domain.IsIntegrityError(err):
		return metrics.ResultIntegrityError
	case domain.IsNetworkError(err):
		return metrics.ResultNetworkError
	default:
		return metrics.ResultError
	}
}
