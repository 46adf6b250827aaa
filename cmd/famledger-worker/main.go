// Command famledger-worker runs the reminder scheduler and the change feed
// consumer without the HTTP API, for a household's always-on box.
package main

import (
	"context"
	"os"
	"time"

	"famledger/internal/backend"
	"famledger/internal/cli"
	"famledger/internal/log"
	"famledger/internal/scheduler"
	"famledger/internal/state"
	"famledger/internal/weather"
	"famledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.Info("Starting famledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	b, err := backend.NewFactory(logger).Build(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	if b.Store.UserID() == "" {
		logger.Warn("No persisted session, reminders and weather stay idle until a user signs in")
	}

	session := state.NewSession(b.Store)
	sched := scheduler.New(b.Store, weather.NewWttrClient(cfg.WeatherCity), scheduler.Config{
		PollInterval:       cfg.PollInterval,
		WeatherTriggerHour: cfg.WeatherTriggerHour,
		Location:           time.Local,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := sched.Stop(ctx); err != nil {
			logger.Error("Scheduler shutdown error", log.FieldError, err)
		}
		session.Close()
		if err := b.Queue.Stop(ctx); err != nil {
			logger.Error("Write queue shutdown error", log.FieldError, err)
		}
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	if err := session.Resume(ctx); err != nil {
		logger.Warn("Session resume incomplete", log.FieldError, err)
	}
	if err := b.Queue.Start(ctx); err != nil {
		logger.Error("Failed to start write queue", log.FieldError, err)
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}

	if b.Feed != nil {
		changes := worker.NewChangeWorker(b.Notifier, b.Origin, logger)
		go func() {
			if err := changes.Run(ctx, b.Feed); err != nil {
				logger.Error("Change feed consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("Change feed disabled - no AMQP_URL provided")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("famledger-worker stopped gracefully")
}
