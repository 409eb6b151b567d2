package domain

import (
	"fmt"
	"time"
)

// FitMode is how the apply collaborator should scale an image onto a screen.
// Passed through to the apply command verbatim.
type FitMode string

const (
	FitFill    FitMode = "fill"
	FitFit     FitMode = "fit"
	FitStretch FitMode = "stretch"
	FitCenter  FitMode = "center"
	FitTile    FitMode = "tile"
)

// ScreenConfig describes one monitor's rotation settings. Owned by the
// orchestrator and replaced wholesale on configuration changes.
type ScreenConfig struct {
	ID        string
	Name      string
	Theme     Theme
	Delay     time.Duration
	Slideshow bool
	Enabled   bool
	Fit       FitMode
}

// Validate checks the fields a scheduler depends on.
func (c ScreenConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: screen id is empty", ErrInvalidInput)
	}
	if !c.Theme.Valid() {
		return fmt.Errorf("%w: %q for screen %s", ErrInvalidTheme, c.Theme, c.ID)
	}
	if c.Delay <= 0 {
		return fmt.Errorf("%w: non-positive delay for screen %s", ErrInvalidInput, c.ID)
	}
	return nil
}

// ScreenState is the lifecycle state of one screen's scheduler.
type ScreenState string

const (
	ScreenStopped ScreenState = "stopped"
	ScreenRunning ScreenState = "running"
	ScreenPaused  ScreenState = "paused"
)

// ScreenStatus is a point-in-time snapshot for the status surface.
type ScreenStatus struct {
	ID            string      `json:"id"`
	Name          string      `json:"name,omitempty"`
	State         ScreenState `json:"state"`
	Theme         Theme       `json:"theme"`
	Delay         string      `json:"delay"`
	LastImageID   string      `json:"last_image_id,omitempty"`
	LastImagePath string      `json:"last_image_path,omitempty"`
	LastAppliedAt *time.Time  `json:"last_applied_at,omitempty"`
	Cycle         int64       `json:"cycle,omitempty"`
}
