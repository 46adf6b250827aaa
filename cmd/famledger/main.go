// Command famledger serves the household ledger API and runs the reminder
// scheduler next to it.
package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"famledger/internal/backend"
	"famledger/internal/cache"
	"famledger/internal/cli"
	apphttp "famledger/internal/http"
	"famledger/internal/log"
	"famledger/internal/middleware/ratelimit"
	"famledger/internal/scheduler"
	"famledger/internal/state"
	"famledger/internal/weather"
	"famledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting famledger", "port", cfg.Port)

	b, err := backend.NewFactory(logger).Build(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	session := state.NewSession(b.Store)
	summaries := cache.NewSummaryCache(cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})

	janitor := cache.NewJanitor(logger)
	janitor.Register(summaries)
	janitor.Register(limiter)

	sched := scheduler.New(b.Store, weather.NewWttrClient(cfg.WeatherCity), scheduler.Config{
		PollInterval:       cfg.PollInterval,
		WeatherTriggerHour: cfg.WeatherTriggerHour,
		Location:           time.Local,
	}, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Store:     b.Store,
		Session:   session,
		Exporter:  b.Exporter,
		Summaries: summaries,
		Limiter:   limiter,
		SoftLimit: cfg.MonthlyExpenseSoftLimit,
		Logger:    logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown error", log.FieldError, err)
		}
		if err := sched.Stop(ctx); err != nil {
			logger.Error("Scheduler shutdown error", log.FieldError, err)
		}
		janitor.Stop()
		session.Close()
		if err := b.Queue.Stop(ctx); err != nil {
			logger.Error("Write queue shutdown error", log.FieldError, err)
		}
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	if err := session.Resume(ctx); err != nil {
		logger.Warn("Session resume incomplete, serving local state", log.FieldError, err)
	}
	if err := b.Queue.Start(ctx); err != nil {
		logger.Error("Failed to start write queue", log.FieldError, err)
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}
	janitor.Start(time.Minute)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(":" + cfg.Port)
	})
	if b.Feed != nil {
		changes := worker.NewChangeWorker(b.Notifier, b.Origin, logger)
		g.Go(func() error {
			return changes.Run(gctx, b.Feed)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		if cerr := b.Close(); cerr != nil {
			logger.Error("Backend close error", log.FieldError, cerr)
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("famledger stopped gracefully")
}
