package httpapi

import (
	"errors"
	"net/http"
	"os"
)

// FeedHandler serves the last published documents straight from disk.
type FeedHandler struct {
	Path        string
	ContentType string
}

func (h FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.Path)
	if errors.Is(err, os.ErrNotExist) {
		WriteError(w, r, http.StatusNotFound, "not_published", "feed has not been published yet")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "read_error", err.Error())
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "read_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", h.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}
