package handlers

import (
	"encoding/json"
	"net/http"

	"crm-insights/internal/dispatch"
)

// HealthHandler reports liveness and queue pressure.
type HealthHandler struct {
	queue *dispatch.Queue
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(queue *dispatch.Queue) *HealthHandler {
	return &HealthHandler{queue: queue}
}

// ServeHTTP answers health probes.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        "ok",
		"queue_pending": h.queue.Pending(),
		"queue_dropped": h.queue.Dropped(),
	})
}
