package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/bissquit/uptime-garden/internal/app"
	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/internal/uptime"
	"github.com/bissquit/uptime-garden/internal/version"
	"github.com/urfave/cli/v2"
)

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "uptimectl",
		Usage:     "manage service status history and query uptime",
		Version:   version.String(),
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			recalculateCommand(),
			uptimeCommand(),
			chartCommand(),
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if err := postgres.Migrate(cfg.Database.URL); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "migrations applied")
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
				},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					if steps <= 0 {
						return errors.New("--steps must be positive")
					}
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if err := postgres.MigrateDown(cfg.Database.URL, steps); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "rolled back %d migration(s)\n", steps)
					return nil
				},
			},
		},
	}
}

func recalculateCommand() *cli.Command {
	return &cli.Command{
		Name:  "recalculate",
		Usage: "recompute the status of every service of an organization from its active incidents",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "org", Usage: "organization ID", Required: true},
		},
		Action: func(c *cli.Context) error {
			core, closeFn, err := openCore(c)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := core.Aggregator.RecalculateAllServicesStatus(c.Context, c.String("org"))
			if err != nil {
				return err
			}
			if err := writeJSON(c.App.Writer, report); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return cli.Exit(fmt.Sprintf("%d service(s) failed", len(report.Failed)), 2)
			}
			return nil
		},
	}
}

func uptimeCommand() *cli.Command {
	return &cli.Command{
		Name:  "uptime",
		Usage: "print the uptime of a service over a window",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "service", Usage: "service ID", Required: true},
			&cli.StringFlag{Name: "start", Usage: "window start, RFC3339 (default: end minus 30 days)"},
			&cli.StringFlag{Name: "end", Usage: "window end, RFC3339 (default: now)"},
		},
		Action: func(c *cli.Context) error {
			start, end, err := parseWindow(c.String("start"), c.String("end"), time.Now())
			if err != nil {
				return err
			}

			core, closeFn, err := openCore(c)
			if err != nil {
				return err
			}
			defer closeFn()

			breakdown, err := core.Calculator.Breakdown(c.Context, c.String("service"), start, end)
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, breakdown)
		},
	}
}

func chartCommand() *cli.Command {
	return &cli.Command{
		Name:  "chart",
		Usage: "print bucketed uptime of a service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "service", Usage: "service ID", Required: true},
			&cli.StringFlag{Name: "period", Value: uptime.DefaultPeriod, Usage: "24h, 7d, 30d or 90d"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			period := c.String("period")
			if !uptime.IsValidPeriod(period) {
				return fmt.Errorf("unknown period %q: must be one of 24h, 7d, 30d, 90d", period)
			}

			core, closeFn, err := openCore(c)
			if err != nil {
				return err
			}
			defer closeFn()

			points, err := core.Charter.GetUptimeChartData(c.Context, c.String("service"), period)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, points)
			}
			return writeChart(c.App.Writer, points)
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(app.InitLogger(cfg.Log, c.App.ErrWriter))
	return cfg, nil
}

// openCore wires the domain services without the HTTP layer. The returned
// close function waits for pending notifications before releasing storage.
func openCore(c *cli.Context) (*app.Core, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}

	storage, err := app.OpenStorage(c.Context, cfg)
	if err != nil {
		return nil, nil, err
	}

	core, closeFn, err := wireCore(c.Context, cfg, storage)
	if err != nil {
		storage.Close()
		return nil, nil, err
	}
	return core, closeFn, nil
}

// wireCore builds the core on storage. When notifications are enabled, status
// changes are delivered to the configured webhooks; the CLI serves no
// WebSocket clients.
func wireCore(ctx context.Context, cfg *config.Config, storage *app.Storage) (*app.Core, func(), error) {
	if !cfg.Notifications.Enabled {
		return app.NewCore(cfg, storage, nil), storage.Close, nil
	}

	worker, notifier, err := app.StartNotifications(context.WithoutCancel(ctx), cfg.Notifications, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("setup notifications: %w", err)
	}

	closeFn := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := worker.Drain(drainCtx); err != nil {
			slog.Error("notifications not delivered before exit", "error", err)
		}
		storage.Close()
	}

	return app.NewCore(cfg, storage, notifier), closeFn, nil
}

func parseWindow(startRaw, endRaw string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if endRaw != "" {
		t, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --end: %w", err)
		}
		end = t
	}

	start := end.Add(-uptime.DefaultWindow)
	if startRaw != "" {
		t, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --start: %w", err)
		}
		start = t
	}

	return start, end, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeChart(w io.Writer, points []uptime.ChartPoint) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tSTART\tUPTIME")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%.2f%%\n", p.Label, p.Timestamp.UTC().Format(time.RFC3339), p.Uptime)
	}
	return tw.Flush()
}
