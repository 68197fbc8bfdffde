// Package scheduler fires a task on a cron schedule until its context ends.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Task func(ctx context.Context) error

type Options struct {
	// RunNow fires the task once at start-up before the first tick.
	RunNow bool
	Logger *slog.Logger
}

// Cron blocks until ctx is done. A tick that arrives while the previous run
// is still going is skipped. Task errors are logged and do not stop the loop.
func Cron(ctx context.Context, spec, name string, task Task, opts Options) error {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("component", "scheduler", "task", name)

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{lg}),
		cron.WithChain(cron.Recover(cronLogger{lg}), cron.SkipIfStillRunning(cronLogger{lg})),
	)
	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			lg.Error("run failed", "err", err, "took", time.Since(start))
			return
		}
		lg.Info("run ok", "took", time.Since(start))
	}
	id, err := c.AddFunc(spec, run)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	c.Start()
	lg.Info("scheduled", "spec", spec, "next", c.Entry(id).Next)
	// cron's Stop only waits for jobs it started itself.
	var first sync.WaitGroup
	if opts.RunNow {
		first.Add(1)
		go func() {
			defer first.Done()
			c.Entry(id).WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	<-c.Stop().Done()
	first.Wait()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ lg *slog.Logger }

func (l cronLogger) Info(msg string, kv ...any) { l.lg.Debug(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.lg.Error(msg, append(kv, "err", err)...)
}
