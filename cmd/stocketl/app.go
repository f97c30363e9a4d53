package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/rickgao/stock-data/internal/api"
	"github.com/rickgao/stock-data/internal/config"
	"github.com/rickgao/stock-data/internal/logging"
	"github.com/rickgao/stock-data/internal/normalize"
	"github.com/rickgao/stock-data/internal/ratelimit"
	"github.com/rickgao/stock-data/internal/report"
	"github.com/rickgao/stock-data/internal/scheduler"
	"github.com/rickgao/stock-data/internal/store"
	"github.com/rickgao/stock-data/internal/version"
)

// app holds everything a command needs once startup succeeded.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	gateway   store.Gateway
}

// loadConfig reads the config file named by --config and applies the job
// flags of cmd on top of it.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	return config.LoadWithOverrides(cmd.String("config"), func(c *config.Config) {
		if s := cmd.String("symbols"); s != "" {
			c.Job.Symbols = splitList(s)
		}
		if e := cmd.String("endpoints"); e != "" {
			c.Job.Endpoints = splitList(e)
		}
		if w := int(cmd.Int("workers")); w > 0 {
			c.Job.MaxWorkers = w
		}
	})
}

// newApp loads configuration, builds the logger and opens, pings and
// migrates storage. Any failure here is fatal for the command.
func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}
	slog.SetDefault(logger)

	logger.Info("starting stocketl",
		version.Attr(),
		"command", cmd.Name,
		"config", cmd.String("config"),
		"driver", cfg.Storage.Driver,
		"symbols", len(cfg.Job.Symbols),
		"endpoints", cfg.Job.Endpoints,
		"workers", cfg.Job.MaxWorkers,
	)

	gw, err := store.Open(ctx, cfg.Storage, cfg.Job.MaxWorkers, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := gw.Ping(ctx); err != nil {
		gw.Close()
		closer.Close()
		return nil, fmt.Errorf("ping storage: %w", err)
	}
	if err := gw.Migrate(ctx); err != nil {
		gw.Close()
		closer.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}

	return &app{cfg: cfg, logger: logger, logCloser: closer, gateway: gw}, nil
}

func (a *app) close() {
	if err := a.gateway.Close(); err != nil {
		a.logger.Warn("close storage", "err", err)
	}
	a.logCloser.Close()
}

// newScheduler wires the API client, limiter and normalizer for a.
func (a *app) newScheduler(sink report.Sink) *scheduler.Scheduler {
	cfg := a.cfg

	client := api.NewClient(cfg.API.BaseURL, cfg.API.APIKey,
		api.WithLogger(a.logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithIntradayInterval(cfg.API.IntradayInterval),
		api.WithOutputSize(cfg.API.OutputSize),
		api.WithSMAParams(api.SMAParams{
			Interval:   cfg.API.SMA.Interval,
			TimePeriod: cfg.API.SMA.TimePeriod,
			SeriesType: cfg.API.SMA.SeriesType,
		}),
	)
	limiter := ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window)

	return scheduler.New(scheduler.Config{
		MaxWorkers: cfg.Job.MaxWorkers,
		Retry: scheduler.RetryPolicy{
			FetchAttempts:      cfg.Retry.FetchAttempts,
			PersistAttempts:    cfg.Retry.PersistAttempts,
			BaseBackoff:        cfg.Retry.BaseBackoff,
			MaxBackoff:         cfg.Retry.MaxBackoff,
			RateLimitedBackoff: cfg.Retry.RateLimitedBackoff,
		},
	}, client, limiter, normalize.New(cfg.API.IntradayInterval), a.gateway, a.logger,
		scheduler.WithSink(sink),
	)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(ctx, a.logger)
	defer cancel()

	sinks := report.MultiSink{report.NewLogSink(a.logger)}
	var progress *report.ProgressSink
	if cmd.Bool("progress") {
		units, err := scheduler.BuildUnits(a.cfg.Job.Symbols, a.cfg.Job.EndpointKinds())
		if err != nil {
			return err
		}
		progress = report.NewProgressSink(os.Stderr, len(units))
		sinks = append(sinks, progress)
	}

	rep, err := a.newScheduler(sinks).Run(ctx, a.cfg.Job.Symbols, a.cfg.Job.EndpointKinds())
	if progress != nil {
		progress.Close()
	}
	if err != nil {
		return err
	}

	// Unit failures are in the summary; they do not change the exit code.
	return rep.WriteSummary(os.Stdout)
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("tables ready", "driver", a.cfg.Storage.Driver)
	return nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
