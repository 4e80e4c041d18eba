// Command advisor scans option positions on a schedule, records exit
// recommendations and delivers alerts.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_advisor/internal/api"
	"github.com/eddiefleurent/options_advisor/internal/config"
	"github.com/eddiefleurent/options_advisor/internal/jobs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var (
		configPath string
		once       bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&once, "once", false, "Run a single scan and delivery cycle, then exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Environment)
	logger.WithFields(logrus.Fields{
		"storage":     cfg.Storage.Backend,
		"market_data": cfg.MarketData.Provider,
		"oracle":      cfg.Oracle.Enabled,
		"accounts":    len(cfg.Scanner.Accounts),
	}).Info("Starting options advisor")

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.WithError(err).Warn("Error during cleanup")
		}
	}()

	if once {
		app.Runner.RunCycle(ctx)
		return
	}

	if err := run(ctx, cfg, app, logger); err != nil {
		logger.WithError(err).Error("Advisor stopped with error")
		_ = app.Close()
		os.Exit(1)
	}
	logger.Info("Advisor stopped successfully")
}

func run(ctx context.Context, cfg *config.Config, app *App, logger *logrus.Logger) error {
	scheduler := jobs.NewScheduler(ctx, cfg.Location(), logger.WithField("component", "scheduler"))
	if err := jobs.ScheduleRunner(scheduler, app.Runner, cfg.Schedule.Scan, cfg.Schedule.Deliver); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(api.Config{Port: cfg.API.Port, AuthToken: cfg.API.AuthToken},
			app.Store, app.Runner, logger.WithField("component", "api"))
		go func() { errCh <- server.Start() }()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping advisor...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API shutdown failed")
		}
	}
	return nil
}
