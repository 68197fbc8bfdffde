package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "djangojobs",
		Usage: "Unified, deduplicated Django jobs feed (JSON + RSS)",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Fetch every source once and publish the feed",
				Flags:  runFlags(),
				Action: runAction,
			},
			{
				Name:   "schedule",
				Usage:  "Run on a cron schedule until interrupted",
				Flags:  scheduleFlags(),
				Action: scheduleAction,
			},
			{
				Name:  "history",
				Usage: "Show recent runs from the history database",
				Flags: []cli.Flag{
					configFlag(),
					envFlag(),
					&cli.StringFlag{
						Name:  "history-db",
						Usage: "SQLite run history path",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "number of runs to show",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "prune-days",
						Usage: "delete runs older than this many days first (0 keeps all)",
					},
				},
				Action: historyAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "djangojobs:", err)
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file (missing file means defaults)",
		Value: "djangojobs.yaml",
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "env file path",
		Value: ".env",
	}
}

func scheduleFlags() []cli.Flag {
	return append(runFlags(),
		&cli.StringFlag{
			Name:  "cron",
			Usage: "cron spec (5 fields or @daily style descriptor)",
		},
		&cli.BoolFlag{
			Name:  "run-now",
			Usage: "run once immediately before the first tick",
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "serve the status API on host:port (empty disables it)",
		},
	)
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(),
		envFlag(),
		&cli.StringFlag{
			Name:  "json-output",
			Usage: "where to write the JSON feed (also read as previous state)",
		},
		&cli.StringFlag{
			Name:  "rss-output",
			Usage: "where to write the RSS feed",
		},
		&cli.StringFlag{
			Name:  "history-db",
			Usage: "SQLite run history path (empty disables history)",
		},
		&cli.BoolFlag{
			Name:  "allow-partial",
			Usage: "publish when some, but not all, sources fail to fetch",
		},
		&cli.IntFlag{
			Name:  "grace-hours",
			Usage: "keep vanished jobs for this long (0 drops them immediately)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "text or json",
		},
	}
}
