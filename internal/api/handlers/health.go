package handlers

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	now func() time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: time.Now}
}

// Health reports liveness only; it never calls the provider.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "OK",
		"time":   h.now().UTC().Format(time.RFC3339),
	})
}
