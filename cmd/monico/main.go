// Command monico is the thin CLI adapter over the core App facade: it
// parses flags, loads configuration, dispatches to App, and formats
// output. No scheduling, probing or storage logic lives here.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Scorpil/monico/internal/app"
	"github.com/Scorpil/monico/internal/config"
	"github.com/Scorpil/monico/internal/humantime"
	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	cliApp := &cli.App{
		Name:  "monico",
		Usage: "distributed HTTP endpoint monitoring",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to YAML config file"},
		},
		Commands: []*cli.Command{
			{
				Name:  "setup",
				Usage: "create (or recreate) the storage schema",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "drop existing schema first"},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					return a.Setup(c.Context, c.Bool("force"))
				}),
			},
			{
				Name:  "create",
				Usage: "create a monitor",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id"},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "endpoint", Required: true},
					&cli.IntFlag{Name: "interval", Value: 60},
					&cli.StringFlag{Name: "body-regexp"},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					var bodyRegexp *string
					if v := c.String("body-regexp"); v != "" {
						bodyRegexp = &v
					}
					m, err := a.CreateMonitor(c.Context, c.String("id"), c.String("name"), c.String("endpoint"), c.Int("interval"), bodyRegexp)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "created monitor %s (%s)\n", m.ID, m.Endpoint)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "list monitors",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					monitors, err := a.ListMonitors(c.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tINTERVAL\tLAST PROBE")
					for _, m := range monitors {
						lastProbe := "never"
						if m.LastProbeAt != nil {
							lastProbe = humantime.Timestamp(*m.LastProbeAt)
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%s\n", m.ID, m.Name, m.Endpoint, m.Interval, lastProbe)
					}
					return w.Flush()
				}),
			},
			{
				Name:  "status",
				Usage: "show a monitor's recent probe history",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.BoolFlag{Name: "live", Aliases: []string{"l"}},
					&cli.IntFlag{Name: "number-of-probes", Aliases: []string{"n"}, Value: 10},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					limit := c.Int("number-of-probes")
					if limit < 1 || limit > 100 {
						return fmt.Errorf("number-of-probes must be between 1 and 100")
					}
					for {
						if err := printStatus(c, a, c.String("id"), limit); err != nil {
							return err
						}
						if !c.Bool("live") {
							return nil
						}
						select {
						case <-c.Context.Done():
							return nil
						case <-time.After(time.Second):
						}
					}
				}),
			},
			{
				Name:  "delete",
				Usage: "delete a monitor",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					m, err := a.DeleteMonitor(c.Context, c.String("id"))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "deleted monitor %s\n", m.ID)
					return nil
				}),
			},
			{
				Name:   "run-manager",
				Usage:  "run the scheduling loop",
				Action: withApp(func(c *cli.Context, a *app.App) error { return a.RunManager(c.Context) }),
			},
			{
				Name:  "run-worker",
				Usage: "run the lease-and-probe loop",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id"},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error { return a.RunWorker(c.Context, c.String("id")) }),
			},
			{
				Name:  "run",
				Usage: "run manager and worker concurrently in one process",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "worker-id", Aliases: []string{"w"}},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error { return a.Run(c.Context, c.String("worker-id")) }),
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version)
					return nil
				},
			},
		},
	}

	if err := cliApp.RunContext(signalContext(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printStatus(c *cli.Context, a *app.App, id string, limit int) error {
	monitor, probes, err := a.Status(c.Context, id, limit)
	if err != nil {
		return err
	}
	lastProbe := "never"
	if monitor.LastProbeAt != nil {
		lastProbe = humantime.Timestamp(*monitor.LastProbeAt)
	}
	fmt.Fprintf(c.App.Writer, "%s  %s  last probe: %s\n", monitor.ID, monitor.Endpoint, lastProbe)

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRESPONSE TIME\tCODE\tERROR\tCONTENT MATCH")
	for _, p := range probes {
		code := "-"
		if p.ResponseCode != nil {
			code = fmt.Sprintf("%d", *p.ResponseCode)
		}
		probeErr := "-"
		if p.ResponseError != nil {
			probeErr = string(*p.ResponseError)
		}
		match := "-"
		if p.ContentMatch != nil {
			match = *p.ContentMatch
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			humantime.Timestamp(p.Timestamp), humantime.Seconds(p.ResponseTime), code, probeErr, match)
	}
	return w.Flush()
}

// withApp loads configuration, builds and connects an App, runs fn,
// and always shuts the App down afterward, even on error.
func withApp(fn func(c *cli.Context, a *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		if err := a.Connect(c.Context); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", "error", err)
			}
		}()

		return fn(c, a)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}
