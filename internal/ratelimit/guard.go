// Package ratelimit enforces a fixed-window cap on attempts per identifier,
// backed by the login_attempts table so horizontally scaled instances share
// one counter.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avolkovs/portal-api/internal/config"
	"github.com/avolkovs/portal-api/internal/metrics"
	"github.com/avolkovs/portal-api/internal/repository"
)

// UnknownIdentifier is the sentinel used when no identifier can be derived
// from the request. An empty identifier is never allowed.
const UnknownIdentifier = "unknown"

// Decision is the outcome of consulting the guard before a protected action
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Guard wraps one protected action (login or registration) with a
// fixed-window attempt limit
type Guard struct {
	action   string
	attempts repository.AttemptRepository
	cfg      config.LimiterConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewGuard creates a Guard for the named action
func NewGuard(action string, attempts repository.AttemptRepository, cfg config.LimiterConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		action:   action,
		attempts: attempts,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Consume checks the counter for the identifier without modifying it.
// A missing record, or one whose window has elapsed, counts as zero.
func (g *Guard) Consume(ctx context.Context, identifier string) (Decision, error) {
	if identifier == "" {
		identifier = UnknownIdentifier
	}

	record, err := g.attempts.Find(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptNotFound) {
			return Decision{Allowed: true}, nil
		}
		return Decision{}, err
	}

	elapsed := g.now().Sub(record.LastAttempt)
	if elapsed > g.cfg.Window {
		return Decision{Allowed: true}, nil
	}

	if record.Attempts >= g.cfg.MaxAttempts {
		retryAfter := g.cfg.Window - elapsed
		if retryAfter < 0 {
			retryAfter = 0
		}
		metrics.RateLimitRejections.WithLabelValues(g.action).Inc()
		g.logger.Warn("rate limit exceeded",
			"action", g.action,
			"identifier", identifier,
			"attempts", record.Attempts,
			"retry_after", retryAfter,
		)
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}

// RecordAttempt books one attempt regardless of outcome. Under the
// failures-only policy this is a no-op; call it before the protected
// action executes.
func (g *Guard) RecordAttempt(ctx context.Context, identifier string) error {
	if !g.cfg.CountAll {
		return nil
	}
	return g.increment(ctx, identifier)
}

// RecordFailure books one failed attempt. Under the count-all policy the
// attempt was already recorded up front, so this is a no-op; a legitimate
// user repeatedly succeeding can never be locked out under failures-only.
func (g *Guard) RecordFailure(ctx context.Context, identifier string) error {
	if g.cfg.CountAll {
		return nil
	}
	return g.increment(ctx, identifier)
}

func (g *Guard) increment(ctx context.Context, identifier string) error {
	if identifier == "" {
		identifier = UnknownIdentifier
	}

	record, err := g.attempts.Increment(ctx, identifier, g.cfg.Window)
	if err != nil {
		return err
	}

	if record.Attempts == g.cfg.MaxAttempts {
		g.logger.Warn("identifier reached attempt limit",
			"action", g.action,
			"identifier", identifier,
			"attempts", record.Attempts,
		)
	}
	return nil
}

// MaxAttempts returns the configured failure allowance
func (g *Guard) MaxAttempts() int {
	return g.cfg.MaxAttempts
}

// Window returns the configured lockout window
func (g *Guard) Window() time.Duration {
	return g.cfg.Window
}
