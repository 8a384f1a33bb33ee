// Package main is the command line entry point of the receding-horizon planner.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/rhplanner/config"
	"go.viam.com/rhplanner/follower"
	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/messages"
	"go.viam.com/rhplanner/motionplan"
	"go.viam.com/rhplanner/replan"
	"go.viam.com/rhplanner/trajopt"
)

const (
	// Flags.
	flagConfig      = "config"
	flagDebug       = "debug"
	flagMetricsAddr = "metrics-addr"
	flagTelemetry   = "telemetry"
)

func main() {
	var logger logging.Logger

	configFlag := &cli.StringFlag{
		Name:     flagConfig,
		Aliases:  []string{"c"},
		Usage:    "load configuration from `FILE`",
		Required: true,
	}

	app := &cli.App{
		Name:  "rhplanner",
		Usage: "plan and track collision-free trajectories through point cloud obstacles",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("rhplanner")
			} else {
				logger = logging.NewLogger("rhplanner")
			}
			config.InitLoggingSettings(logger, c.Bool(flagDebug))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "read and validate a configuration file",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := readConfig(c, logger)
					if err != nil {
						return err
					}
					logger.Infow("config is valid", "path", cfg.ConfigFilePath)
					return nil
				},
			},
			{
				Name:  "plan",
				Usage: "plan once from the configured start to the goal and print the result as JSON",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := readConfig(c, logger)
					if err != nil {
						return err
					}
					summary, err := planOnce(c.Context, cfg, logger)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(c.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(summary)
				},
			},
			{
				Name:  "run",
				Usage: "fly the configured mission in closed loop against a simulated robot",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  flagMetricsAddr,
						Usage: "serve prometheus metrics on `ADDR`",
					},
					&cli.StringFlag{
						Name:  flagTelemetry,
						Usage: "write outbound messages as JSON lines to `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := readConfig(c, logger)
					if err != nil {
						return err
					}
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()
					return runMission(ctx, cfg, c.String(flagMetricsAddr), c.String(flagTelemetry), logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if logger == nil {
			logger = logging.NewLogger("rhplanner")
		}
		logger.Fatal(err)
	}
}

func readConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	cfg, err := config.Read(c.String(flagConfig), logger)
	if err != nil {
		return nil, err
	}
	config.UpdateFileConfigDebug(cfg.Debug)
	return cfg, nil
}

// pipeline is the planning side of the system wired onto a bus.
type pipeline struct {
	bus          *messages.Bus
	orchestrator *replan.Orchestrator
	follower     *follower.Follower
}

func newPipeline(cfg *config.Config, reg prometheus.Registerer, logger logging.Logger) (*pipeline, error) {
	planner, err := motionplan.NewSafeRegionRRTStar(logger, cfg.Tree)
	if err != nil {
		return nil, err
	}
	bus := messages.NewBus()
	orch := replan.NewOrchestrator(
		logger,
		cfg.ReplanConfig(),
		planner,
		trajopt.NewCorridorMinJerk(logger),
		bus,
		nil,
		replan.NewMetrics(reg),
	)
	fol := follower.New(logger, cfg.FollowerConfig(), bus, nil)
	return &pipeline{bus: bus, orchestrator: orch, follower: fol}, nil
}

func runMission(ctx context.Context, cfg *config.Config, metricsAddr, telemetryPath string, logger logging.Logger) error {
	reg := prometheus.NewRegistry()
	p, err := newPipeline(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer p.bus.Close()

	if telemetryPath != "" {
		//nolint:gosec
		f, err := os.Create(telemetryPath)
		if err != nil {
			return errors.Wrap(err, "cannot open telemetry file")
		}
		defer utils.UncheckedErrorFunc(f.Close)
		recorder := messages.NewJSONLinesSink(f, logger).Record(p.bus)
		defer recorder.Stop()
	}

	planIn, unsubscribePlan := replan.InputsFromBus(p.bus)
	defer unsubscribePlan()
	followIn, unsubscribeFollow := follower.InputsFromBus(p.bus)
	defer unsubscribeFollow()
	sim, err := newSimulator(cfg, p.bus, nil, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.orchestrator.Run(gctx, planIn) })
	g.Go(func() error { return p.follower.Run(gctx, followIn) })
	g.Go(func() error { return sim.Run(gctx) })
	if metricsAddr != "" {
		// http and promhttp errors go through the metrics sublogger.
		errorLog := zap.NewStdLog(logger.Sublogger("metrics").Desugar())
		server := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorLog: errorLog}),
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          errorLog,
		}
		g.Go(func() error {
			logger.Infow("serving metrics", "addr", metricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	switch {
	case errors.Is(err, errGoalReached):
		logger.Infow("mission complete", "run", p.orchestrator.RunID())
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted")
		return nil
	default:
		return err
	}
}
