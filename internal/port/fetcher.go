package port

import (
	"context"

	"github.com/astraldesk/skywall/internal/domain"
)

// ImageFetcher materializes image bytes into the local cache on demand
type ImageFetcher interface {
	// EnsureCached guarantees the image's bytes are on disk and returns the
	// cache path. Concurrent calls for the same identifier share a download.
	EnsureCached(ctx context.Context, id string) (string, error)

	// Prefetch caches up to count not-yet-cached images for a filter.
	// Returns how many were cached; individual failures are skipped.
	Prefetch(ctx context.Context, filter domain.Theme, count int) (int, error)
}
