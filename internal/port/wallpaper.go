package port

import (
	"context"

	"github.com/astraldesk/skywall/internal/domain"
)

// Applier is the external collaborator that performs the OS-level wallpaper
// assignment. Failures are reported to the caller but are never fatal to
// rotation.
type Applier interface {
	// Apply hands a cached image to the desktop for one screen
	Apply(ctx context.Context, screen domain.ScreenConfig, imagePath string) error
}
