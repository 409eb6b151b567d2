package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/port"
	"github.com/astraldesk/skywall/internal/service/fetcher"
)

// StatusHandler serves the status and sync endpoints
type StatusHandler struct {
	store  port.Store
	ctrl   ScreenController
	syncer CatalogSyncer
	logger *zap.Logger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(store port.Store, ctrl ScreenController, syncer CatalogSyncer, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		ctrl:   ctrl,
		syncer: syncer,
		logger: logger,
	}
}

// statusResponse is the GET /api/status payload
type statusResponse struct {
	Screens    []domain.ScreenStatus `json:"screens"`
	Catalog    *domain.CatalogStats  `json:"catalog"`
	LastSyncAt string                `json:"last_sync_at,omitempty"`
}

// HandleStatus reports per-screen rotation state and catalog counters
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.store.GetCatalogStats()
	if err != nil {
		h.logger.Error("failed to get catalog stats", zap.Error(err))
		http.Error(w, "Failed to get catalog stats", http.StatusInternalServerError)
		return
	}

	lastSync, err := h.store.GetMeta(fetcher.MetaLastSyncAt)
	if err != nil {
		h.logger.Warn("failed to read last sync time", zap.Error(err))
	}

	response := statusResponse{
		Screens:    h.ctrl.Statuses(),
		Catalog:    stats,
		LastSyncAt: lastSync,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleSync triggers an immediate catalog sync
func (h *StatusHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.syncer.SyncCatalog(r.Context())
	if err != nil {
		h.logger.Error("manual catalog sync failed", zap.Error(err))
		// Storage trouble is ours; everything else is the archive's.
		if domain.IsStorageError(err) {
			http.Error(w, "Failed to store catalog", http.StatusInternalServerError)
		} else {
			http.Error(w, "Sync failed: "+err.Error(), http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"images_seen":  result.ImagesSeen,
		"images_added": result.ImagesAdded,
		"duration_ms":  result.Duration.Milliseconds(),
	})
}
