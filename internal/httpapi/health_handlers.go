package httpapi

import (
	"net/http"
	"time"

	"djangojobs/internal/events"
)

type HealthHandler struct {
	Tracker *Tracker
	Hub     *events.Hub
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	out := struct {
		RunStatus
		Subscribers int `json:"subscribers"`
	}{RunStatus: h.Tracker.Status()}
	if h.Hub != nil {
		out.Subscribers, _ = h.Hub.Stats()
	}
	WriteJSON(w, http.StatusOK, out)
}
