package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
)

// ScreenHandler serves the per-screen control endpoints
type ScreenHandler struct {
	ctrl   ScreenController
	logger *zap.Logger
}

// NewScreenHandler creates a new ScreenHandler
func NewScreenHandler(ctrl ScreenController, logger *zap.Logger) *ScreenHandler {
	return &ScreenHandler{
		ctrl:   ctrl,
		logger: logger,
	}
}

// HandleControl dispatches screen actions: /api/screens/{id}/{action}
func (h *ScreenHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/screens/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "Screen and action required", http.StatusBadRequest)
		return
	}
	screenID, action := parts[0], parts[1]

	h.logger.Debug("screen control requested",
		zap.String("screen_id", screenID),
		zap.String("action", action))

	var err error
	switch action {
	case "next":
		err = h.ctrl.TriggerNext(screenID)
	case "pause":
		err = h.ctrl.Pause(screenID)
	case "resume":
		err = h.ctrl.Resume(screenID)
	case "start":
		err = h.ctrl.StartScreen(screenID)
	case "stop":
		err = h.ctrl.StopScreen(screenID)
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		h.writeControlError(w, screenID, action, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// writeControlError maps orchestrator errors onto HTTP statuses
func (h *ScreenHandler) writeControlError(w http.ResponseWriter, screenID, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrScreenNotFound):
		http.Error(w, "Screen not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrNotRunning):
		http.Error(w, "Screen not running", http.StatusConflict)
	case errors.Is(err, domain.ErrAlreadyRunning):
		http.Error(w, "Screen already running", http.StatusConflict)
	default:
		h.logger.Error("screen control failed",
			zap.String("screen_id", screenID),
			zap.String("action", action),
			zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
