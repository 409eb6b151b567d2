package port

import (
	"context"

	"github.com/astraldesk/skywall/internal/domain"
)

// Selector picks the next image for a screen's rotation
type Selector interface {
	// SelectNext returns the next image for a screen and filter with its
	// cache path resolved, recording the showing durably.
	SelectNext(ctx context.Context, screenID string, filter domain.Theme) (*domain.ImageRecord, error)

	// CycleCount reports the current rotation cycle for a key, 0 when
	// unknown
	CycleCount(screenID string, filter domain.Theme) int64
}

// ActiveKeySource reports which rotation keys are currently in use. The
// cache evictor spares images those keys still owe a showing.
type ActiveKeySource interface {
	ActiveKeys() []domain.RotationKey
}
