package event

import (
	"time"

	"github.com/astraldesk/skywall/internal/domain"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// Event names. Wildcard subscribes a handler to everything.
const (
	Wildcard = "*"

	NameCatalogSynced    = "catalog.synced"
	NameImageCached      = "image.cached"
	NameImageEvicted     = "image.evicted"
	NameWallpaperApplied = "wallpaper.applied"
	NameScreenAttached   = "screen.attached"
	NameScreenDetached   = "screen.detached"
	NameConfigUpdated    = "config.updated"
)

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// CatalogSynced is raised after a manifest sync has been applied.
type CatalogSynced struct {
	BaseEvent
	ImagesSeen  int
	ImagesAdded int
	Duration    time.Duration
}

// EventName returns the event name
func (e CatalogSynced) EventName() string {
	return NameCatalogSynced
}

// NewCatalogSynced creates a new CatalogSynced event
func NewCatalogSynced(seen, added int, duration time.Duration) CatalogSynced {
	return CatalogSynced{
		BaseEvent:   BaseEvent{Timestamp: time.Now()},
		ImagesSeen:  seen,
		ImagesAdded: added,
		Duration:    duration,
	}
}

// ImageCached is raised when image bytes have been downloaded and verified.
type ImageCached struct {
	BaseEvent
	ImageID   string
	Theme     domain.Theme
	CachePath string
	Size      int64
	Duration  time.Duration
}

// EventName returns the event name
func (e ImageCached) EventName() string {
	return NameImageCached
}

// NewImageCached creates a new ImageCached event
func NewImageCached(imageID string, theme domain.Theme, cachePath string, size int64, duration time.Duration) ImageCached {
	return ImageCached{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		ImageID:   imageID,
		Theme:     theme,
		CachePath: cachePath,
		Size:      size,
		Duration:  duration,
	}
}

// ImageEvicted is raised when the janitor removes cached bytes.
type ImageEvicted struct {
	BaseEvent
	ImageID   string
	CachePath string
	Size      int64
}

// EventName returns the event name
func (e ImageEvicted) EventName() string {
	return NameImageEvicted
}

// NewImageEvicted creates a new ImageEvicted event
func NewImageEvicted(imageID, cachePath string, size int64) ImageEvicted {
	return ImageEvicted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		ImageID:   imageID,
		CachePath: cachePath,
		Size:      size,
	}
}

// WallpaperApplied is raised after a scheduler handed an image to the apply
// collaborator.
type WallpaperApplied struct {
	BaseEvent
	ScreenID  string
	ImageID   string
	CachePath string
	Cycle     int64
}

// EventName returns the event name
func (e WallpaperApplied) EventName() string {
	return NameWallpaperApplied
}

// NewWallpaperApplied creates a new WallpaperApplied event
func NewWallpaperApplied(screenID, imageID, cachePath string, cycle int64) WallpaperApplied {
	return WallpaperApplied{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		ScreenID:  screenID,
		ImageID:   imageID,
		CachePath: cachePath,
		Cycle:     cycle,
	}
}

// ScreenAttached is raised when a monitor appears. Carries the full config
// so the orchestrator can start a scheduler for it.
type ScreenAttached struct {
	BaseEvent
	Screen domain.ScreenConfig
}

// EventName returns the event name
func (e ScreenAttached) EventName() string {
	return NameScreenAttached
}

// NewScreenAttached creates a new ScreenAttached event
func NewScreenAttached(screen domain.ScreenConfig) ScreenAttached {
	return ScreenAttached{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Screen:    screen,
	}
}

// ScreenDetached is raised when a monitor disappears.
type ScreenDetached struct {
	BaseEvent
	ScreenID string
}

// EventName returns the event name
func (e ScreenDetached) EventName() string {
	return NameScreenDetached
}

// NewScreenDetached creates a new ScreenDetached event
func NewScreenDetached(screenID string) ScreenDetached {
	return ScreenDetached{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		ScreenID:  screenID,
	}
}

// ConfigUpdated is raised when the watched configuration file changes and
// revalidates. Carries the new per-screen settings.
type ConfigUpdated struct {
	BaseEvent
	Screens []domain.ScreenConfig
}

// EventName returns the event name
func (e ConfigUpdated) EventName() string {
	return NameConfigUpdated
}

// NewConfigUpdated creates a new ConfigUpdated event
func NewConfigUpdated(screens []domain.ScreenConfig) ConfigUpdated {
	return ConfigUpdated{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Screens:   screens,
	}
}
