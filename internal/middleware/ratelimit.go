package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/handlers"
	apperrors "github.com/Proton-105/debtbot/internal/errors"
	"github.com/Proton-105/debtbot/internal/ratelimit"
	"github.com/Proton-105/debtbot/pkg/metrics"
)

// RateLimit enforces the global, per-user and per-command limits. A denied
// update fails with a rate limit AppError for the error middleware to report.
func RateLimit(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) handlers.Middleware {
	if limiter == nil || !rules.Enabled() {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			sender := c.Sender()
			if sender == nil || rules.IsWhitelisted(sender.ID) {
				return next(c)
			}

			for _, check := range checksFor(rules, sender.ID, handlers.CommandName(c.Text())) {
				if err := check.run(c, limiter, log); err != nil {
					return err
				}
			}

			return next(c)
		}
	}
}

type limitCheck struct {
	scope  string
	key    string
	limit  int
	window time.Duration
}

func checksFor(rules *ratelimit.Rules, userID int64, command string) []limitCheck {
	var checks []limitCheck

	if limit, window, err := rules.GetGlobalLimit(); err == nil && limit > 0 {
		checks = append(checks, limitCheck{scope: "global", key: "global", limit: limit, window: window})
	}
	if limit, window, err := rules.GetPerUserLimit(); err == nil && limit > 0 {
		checks = append(checks, limitCheck{scope: "user", key: fmt.Sprintf("user:%d", userID), limit: limit, window: window})
	}
	if command != "" {
		if limit, window, err := rules.GetCommandLimit(command); err == nil && limit > 0 {
			checks = append(checks, limitCheck{scope: "command", key: fmt.Sprintf("cmd:%s:%d", command, userID), limit: limit, window: window})
		}
	}

	return checks
}

func (lc limitCheck) run(c telebot.Context, limiter ratelimit.Limiter, log *slog.Logger) error {
	result, err := limiter.Check(handlers.RequestContext(c), lc.key, lc.limit, lc.window)
	if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
		log.Warn("rate limiter error", slog.String("key", lc.key), slog.Any("error", err))
		return nil
	}

	allowed := result != nil && result.Allowed
	metrics.RecordRateLimitDecision(lc.scope, allowed)
	if allowed {
		return nil
	}

	log.Warn("rate limit exceeded", slog.String("scope", lc.scope), slog.String("key", lc.key))
	retryAfter := int(math.Ceil(result.RetryAfter(time.Now()).Seconds()))
	return apperrors.NewRateLimitError(retryAfter)
}
