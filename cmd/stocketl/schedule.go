package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/urfave/cli/v3"

	"github.com/rickgao/stock-data/internal/report"
)

func scheduleAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if !a.cfg.Schedule.HasSchedule() {
		return errors.New("schedule: set schedule.cron or schedule.every")
	}

	ctx, cancel := signalContext(ctx, a.logger)
	defer cancel()

	state := &healthState{}
	sched := a.newScheduler(report.NewLogSink(a.logger))
	symbols, endpoints := a.cfg.Job.Symbols, a.cfg.Job.EndpointKinds()

	job := func() {
		if ctx.Err() != nil {
			return
		}
		state.started()
		rep, err := sched.Run(ctx, symbols, endpoints)
		if err != nil {
			a.logger.Error("run rejected", "err", err)
			state.finished(nil)
			return
		}
		state.finished(rep)
		if err := rep.WriteSummary(os.Stdout); err != nil {
			a.logger.Warn("write summary", "err", err)
		}
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	if expr := a.cfg.Schedule.Cron; expr != "" {
		_, err = cron.Cron(expr).Do(job)
	} else {
		_, err = cron.Every(a.cfg.Schedule.Every).Do(job)
	}
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	var healthServer *http.Server
	if port := a.cfg.Health.Port; port > 0 {
		healthServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newHealthHandler(a.gateway, state),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("starting health server", "port", port)
			if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("health server error", "err", err)
			}
		}()
	}

	cron.StartAsync()
	a.logger.Info("scheduler running",
		"cron", a.cfg.Schedule.Cron,
		"every", a.cfg.Schedule.Every,
		"health_port", a.cfg.Health.Port,
	)

	<-ctx.Done()
	a.logger.Info("shutting down...")

	// Waits for an in-flight run; ctx is already cancelled so it drains quickly.
	cron.Stop()

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}

	a.logger.Info("scheduler stopped")
	return nil
}
