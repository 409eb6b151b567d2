package event

import (
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case CatalogSynced:
		h.logger.Info("catalog synced",
			zap.Int("images_seen", e.ImagesSeen),
			zap.Int("images_added", e.ImagesAdded),
			zap.Duration("duration", e.Duration),
		)
	case ImageCached:
		h.logger.Info("image cached",
			zap.String("image_id", e.ImageID),
			zap.String("theme", string(e.Theme)),
			zap.String("cache_path", e.CachePath),
			zap.Int64("size", e.Size),
			zap.Duration("duration", e.Duration),
		)
	case ImageEvicted:
		h.logger.Info("image evicted",
			zap.String("image_id", e.ImageID),
			zap.String("cache_path", e.CachePath),
			zap.Int64("size", e.Size),
		)
	case WallpaperApplied:
		h.logger.Debug("wallpaper applied",
			zap.String("screen_id", e.ScreenID),
			zap.String("image_id", e.ImageID),
			zap.Int64("cycle", e.Cycle),
		)
	case ScreenAttached:
		h.logger.Info("screen attached",
			zap.String("screen_id", e.Screen.ID),
			zap.String("theme", string(e.Screen.Theme)),
		)
	case ScreenDetached:
		h.logger.Info("screen detached",
			zap.String("screen_id", e.ScreenID),
		)
	case ConfigUpdated:
		h.logger.Info("configuration updated",
			zap.Int("screens", len(e.Screens)),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents subscribes the logging handler to every event
func (h *LoggingHandler) HandledEvents() []string {
	return []string{Wildcard}
}
