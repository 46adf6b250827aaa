package log

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"

	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"
)

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// Middleware returns fiber middleware that tags each request with an id,
// stores a request-scoped logger in the user context and logs completion.
func Middleware(logger *Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDHeader, requestID)

		reqLogger := logger.WithComponent(ComponentHTTP).With(FieldRequestID, requestID)
		c.SetUserContext(WithLogger(c.UserContext(), reqLogger))

		err := c.Next()
		if err != nil {
			// let the app's error handler pick the status before we log it
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		fields := NewFields().
			WithHTTPRequest(c.Method(), c.Path(), string(c.Request().URI().QueryString()), c.Get(fiber.HeaderUserAgent)).
			WithHTTPResponse(status, time.Since(start).Milliseconds()).
			WithComponent(ComponentHTTP)
		fields[FieldClientIP] = c.IP()

		reqLogger.Logger.Log(c.UserContext(), level, "HTTP request completed", fields.ToSlice()...)
		return nil
	}
}
