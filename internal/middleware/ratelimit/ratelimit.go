// Package ratelimit throttles API clients per IP with a one-minute window.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	// Entries idle longer than StaleAfter are dropped by Sweep (default: 10m)
	StaleAfter time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		StaleAfter:        10 * time.Minute,
	}
}

type client struct {
	windowStart time.Time
	requests    int
}

// Limiter counts requests per client key in fixed one-minute windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	config  Config
	now     func() time.Time
}

func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Limiter{
		clients: make(map[string]*client),
		config:  config,
		now:     time.Now,
	}
}

// Allow records a request from key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok || now.Sub(c.windowStart) >= time.Minute {
		l.clients[key] = &client{windowStart: now, requests: 1}
		return true
	}
	c.requests++
	return c.requests <= l.config.RequestsPerMinute
}

// SweepExpired drops clients idle past StaleAfter and returns how many were
// dropped, so the limiter can be registered with a cache janitor.
func (l *Limiter) SweepExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.config.StaleAfter)
	n := 0
	for key, c := range l.clients {
		if c.windowStart.Before(cutoff) {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

// ActiveClients returns the number of tracked clients.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Handler rejects requests over the limit with 429 and a Retry-After header.
func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded, try again later")
		}
		return c.Next()
	}
}
