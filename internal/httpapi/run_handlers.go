package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"djangojobs/internal/store"
)

type RunHandler struct {
	Tracker *Tracker
	// Base is the context runs started over HTTP inherit; the request
	// context ends with the response.
	Base context.Context
}

// Trigger starts a run in the background and answers 202, or 409 if one
// is already in progress.
func (h RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.Tracker.Status().Running {
		WriteError(w, r, http.StatusConflict, "busy", ErrBusy.Error())
		return
	}
	reqID := RequestIDFrom(r.Context())
	base := h.Base
	if base == nil {
		base = context.Background()
	}
	h.Tracker.Start(base, reqID)
	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "request_id": reqID})
}

type RunsHandler struct {
	DB *sql.DB
}

func (h RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		WriteError(w, r, http.StatusNotFound, "no_history", "run history is not configured")
		return
	}
	runs, err := store.ListRuns(r.Context(), h.DB, intQuery(r, "limit", 20, 500))
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "history_error", err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	WriteJSON(w, http.StatusOK, runs)
}
