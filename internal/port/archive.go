package port

import (
	"context"
	"io"

	"github.com/astraldesk/skywall/internal/domain"
)

// ArchiveClient talks to the remote photo archive
type ArchiveClient interface {
	// FetchManifest walks the archive listing and returns one entry per
	// available image. Failures are classified into the domain taxonomy
	// (NetworkError or ParseError).
	FetchManifest(ctx context.Context) ([]domain.ManifestEntry, error)

	// Download opens a streaming read of the image bytes.
	// Returns the body, the expected size from Content-Length (-1 when the
	// server does not say), and an error classified into the taxonomy.
	Download(ctx context.Context, sourceURL string) (io.ReadCloser, int64, error)
}
