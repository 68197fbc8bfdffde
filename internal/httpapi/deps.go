package httpapi

import (
	"database/sql"
	"log/slog"

	"djangojobs/internal/events"
)

type Deps struct {
	// DB is the run history; nil disables /runs.
	DB *sql.DB

	Hub     *events.Hub
	Tracker *Tracker

	// Published documents served read-only.
	JSONPath string
	RSSPath  string

	Logger *slog.Logger
}
