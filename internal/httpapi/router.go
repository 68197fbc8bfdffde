package httpapi

import (
	"context"
	"log/slog"
	"net/http"
)

// NewHandler builds the status API with its middleware chain. ctx bounds
// runs triggered through POST /run.
func NewHandler(ctx context.Context, d Deps) http.Handler {
	lg := d.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("component", "httpapi")

	mux := http.NewServeMux()

	hh := HealthHandler{Tracker: d.Tracker, Hub: d.Hub}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))
	mux.HandleFunc("/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Status,
	}))

	rh := RunHandler{Tracker: d.Tracker, Base: ctx}
	mux.HandleFunc("/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: rh.Trigger,
	}))
	runs := RunsHandler{DB: d.DB}
	mux.HandleFunc("/runs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: runs.List,
	}))

	jf := FeedHandler{Path: d.JSONPath, ContentType: "application/json; charset=utf-8"}
	mux.HandleFunc("/feed.json", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  jf.Get,
		http.MethodHead: jf.Get,
	}))
	rf := FeedHandler{Path: d.RSSPath, ContentType: "application/rss+xml; charset=utf-8"}
	mux.HandleFunc("/feed.xml", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  rf.Get,
		http.MethodHead: rf.Get,
	}))

	if d.Hub != nil {
		eh := EventsHandler{Hub: d.Hub}
		mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
			http.MethodGet: eh.ServeSSE,
		}))
	}

	return Chain(mux, RequestID, Recover(lg), AccessLog(lg), Cors)
}
