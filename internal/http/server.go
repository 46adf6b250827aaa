// Package http exposes the ledger state over a JSON API.
package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"famledger/internal/analytics"
	"famledger/internal/cache"
	"famledger/internal/log"
	"famledger/internal/middleware/ratelimit"
	"famledger/internal/middleware/security"
	"famledger/internal/state"
)

// Exporter writes a month summary to an external sheet.
type Exporter interface {
	Enabled() bool
	Export(ctx context.Context, year int, month time.Month) (string, error)
}

type Options struct {
	Store   *state.Store
	Session *state.Session

	// Optional. Without an exporter POST /export answers 503.
	Exporter Exporter
	// Optional. Without a cache every summary is computed.
	Summaries *cache.SummaryCache
	// Optional. Without a limiter requests are not throttled.
	Limiter *ratelimit.Limiter

	SoftLimit float64
	Logger    *log.Logger
	Now       func() time.Time
}

type Server struct {
	app       *fiber.App
	store     *state.Store
	session   *state.Session
	exporter  Exporter
	summaries *cache.SummaryCache
	softLimit float64
	logger    *log.Logger
	now       func() time.Time
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SoftLimit <= 0 {
		opts.SoftLimit = analytics.DefaultMonthlySoftLimit
	}

	s := &Server{
		store:     opts.Store,
		session:   opts.Session,
		exporter:  opts.Exporter,
		summaries: opts.Summaries,
		softLimit: opts.SoftLimit,
		logger:    opts.Logger.WithComponent(log.ComponentHTTP),
		now:       opts.Now,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "famledger",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		BodyLimit:             64 * 1024,
	})

	s.app.Use(recover.New())
	s.app.Use(log.Middleware(opts.Logger))
	s.app.Use(security.Headers(security.DefaultHeadersConfig()))
	if opts.Limiter != nil {
		s.app.Use(opts.Limiter.Handler())
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", handleHealth)

	api := s.app.Group("/api/v1")

	api.Get("/session", s.handleGetSession)
	api.Put("/session", s.handleSignIn)
	api.Delete("/session", s.handleSignOut)

	api.Get("/transactions", s.handleListTransactions)
	api.Post("/transactions", s.handleCreateTransaction)
	api.Patch("/transactions/:id", s.handleUpdateTransaction)
	api.Delete("/transactions/:id", s.handleDeleteTransaction)
	api.Post("/reset", s.handleReset)

	api.Get("/categories", s.handleListCategories)
	api.Post("/categories", s.handleCreateCategory)

	api.Get("/tasks", s.handleListTasks)
	api.Post("/tasks", s.handleCreateTask)
	api.Patch("/tasks/:id", s.handleUpdateTask)
	api.Post("/tasks/:id/advance", s.handleAdvanceTask)
	api.Delete("/tasks/:id", s.handleDeleteTask)

	api.Get("/notifications", s.handleListNotifications)
	api.Post("/notifications/:id/read", s.handleMarkNotificationRead)
	api.Delete("/notifications", s.handleClearNotifications)

	api.Get("/analytics/summary", s.handleSummary)
	api.Post("/export", s.handleExport)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
