package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"djangojobs/internal/events"
	"djangojobs/internal/pipeline"
)

// ErrBusy is returned by Tracker.Run while another run is in flight.
var ErrBusy = errors.New("a run is already in progress")

// RunFunc performs one pipeline run.
type RunFunc func(ctx context.Context) (pipeline.Report, error)

// Tracker serializes runs from the scheduler and /run, keeps the last
// RunStatus and publishes lifecycle events on the hub.
type Tracker struct {
	run     RunFunc
	hub     *events.Hub
	log     *slog.Logger
	now     func() time.Time
	running atomic.Bool
	status  atomic.Value // RunStatus
	bg      sync.WaitGroup
}

func NewTracker(run RunFunc, hub *events.Hub, lg *slog.Logger) *Tracker {
	if lg == nil {
		lg = slog.Default()
	}
	t := &Tracker{run: run, hub: hub, log: lg.With("component", "tracker"), now: time.Now}
	t.status.Store(RunStatus{})
	return t
}

func (t *Tracker) Status() RunStatus {
	return t.status.Load().(RunStatus)
}

// Run executes one run unless one is already going, in which case it
// returns ErrBusy without waiting.
func (t *Tracker) Run(ctx context.Context, reqID string) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer t.running.Store(false)

	st := t.Status()
	st.Running = true
	st.LastRunAt = t.stamp()
	t.status.Store(st)
	t.publish(reqID, events.RunStarted, nil)

	rep, err := t.run(ctx)

	st = t.Status()
	st.Running = false
	st.LastRunAt = t.stamp()
	if err != nil {
		st.LastError = err.Error()
		t.status.Store(st)
		t.publish(reqID, events.RunFailed, map[string]string{"error": err.Error()})
		return err
	}
	st.LastError = ""
	st.LastOkAt = st.LastRunAt
	st.LastRunID = rep.RunID
	st.Records = rep.Records
	st.Changes = rep.Changes
	st.Sources = rep.Sources
	t.status.Store(st)
	t.publish(reqID, events.RunFinished, map[string]any{
		"run_id":  rep.RunID,
		"records": rep.Records,
		"changes": rep.Changes,
		"written": rep.Written,
	})
	return nil
}

// Start runs in the background. Errors other than ErrBusy go to the log.
func (t *Tracker) Start(ctx context.Context, reqID string) {
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		if err := t.Run(ctx, reqID); err != nil && !errors.Is(err, ErrBusy) {
			t.log.Warn("background run failed", "request_id", reqID, "err", err)
		}
	}()
}

// Wait blocks until every run begun with Start has returned.
func (t *Tracker) Wait() {
	t.bg.Wait()
}

func (t *Tracker) stamp() string {
	return t.now().UTC().Format(time.RFC3339)
}

func (t *Tracker) publish(reqID, typ string, data any) {
	if t.hub == nil {
		return
	}
	t.hub.Publish(events.MakeEvent(reqID, typ, data))
}
