package httpapi

import (
	"djangojobs/internal/domain"
	"djangojobs/internal/scrape"
)

// RunStatus is the view of the most recent run served at /status.
type RunStatus struct {
	LastRunAt string               `json:"last_run_at,omitempty"`
	LastOkAt  string               `json:"last_ok_at,omitempty"`
	LastError string               `json:"last_error,omitempty"`
	LastRunID string               `json:"last_run_id,omitempty"`
	Records   int                  `json:"records"`
	Changes   domain.ChangeSummary `json:"changes"`
	Sources   []scrape.SourceCount `json:"sources,omitempty"`
	Running   bool                 `json:"running"`
}
