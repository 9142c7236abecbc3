// Package handler provides the HTTP and WebSocket handlers of the doggos API.
package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/doggos/internal/model"
	"github.com/vyrodovalexey/doggos/internal/roster"
)

// Version is the application version.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}

// ProbeHandler answers liveness and readiness probes.
type ProbeHandler struct {
	ready  atomic.Bool
	logger *zap.Logger
}

// NewProbeHandler creates a ProbeHandler that starts out not ready.
func NewProbeHandler(logger *zap.Logger) *ProbeHandler {
	return &ProbeHandler{logger: logger}
}

// SetReady flips the readiness state reported by /ready.
func (h *ProbeHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// RegisterRoutes registers /health and /ready.
func (h *ProbeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
}

// Health handles GET /health requests.
func (h *ProbeHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, model.NewSuccessResponse(HealthResponse{
		Status:  "healthy",
		Version: Version,
	}))
}

// Ready handles GET /ready requests.
func (h *ProbeHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Load() {
		writeJSON(h.logger, w, http.StatusServiceUnavailable,
			model.NewErrorResponse(http.StatusServiceUnavailable, "not ready"))
		return
	}
	writeJSON(h.logger, w, http.StatusOK, model.NewSuccessResponse(ReadyResponse{Status: "ready"}))
}

// currentView derives the ordered, filtered view of r for query.
func currentView(r *roster.Roster, query string) model.View {
	return model.NewView(query, r.View(query))
}

// writeJSON writes data as JSON with the given status code. A nil data writes
// only the status.
func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, data any) {
	if data == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func writeError(logger *zap.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(logger, w, status, model.NewErrorResponse(status, message))
}
