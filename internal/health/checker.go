// Package health reports the status of the bot's dependencies over HTTP.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/debtbot/internal/errors"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

type registration struct {
	check    Checkable
	critical bool
}

// Report is the JSON body served by Handler.
type Report struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Checker aggregates health checks for multiple components.
type Checker struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]registration
}

// NewChecker instantiates a Checker. Each check gets at most timeout.
func NewChecker(log *slog.Logger, timeout time.Duration) *Checker {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		log:     log,
		timeout: timeout,
		checks:  make(map[string]registration),
	}
}

// AddCheck registers a component whose failure marks the service down.
func (c *Checker) AddCheck(name string, check Checkable) {
	c.add(name, check, true)
}

// AddOptionalCheck registers a component whose failure only degrades the service.
func (c *Checker) AddOptionalCheck(name string, check Checkable) {
	c.add(name, check, false)
}

func (c *Checker) add(name string, check Checkable, critical bool) {
	if name == "" || check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registration{check: check, critical: critical}
}

// Check runs all registered health checks concurrently.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	type outcome struct {
		name     string
		err      error
		critical bool
	}
	results := make(chan outcome, len(names))

	for _, name := range names {
		c.mu.RLock()
		reg := c.checks[name]
		c.mu.RUnlock()

		go func(name string, reg registration) {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			results <- outcome{name: name, err: reg.check.HealthCheck(checkCtx), critical: reg.critical}
		}(name, reg)
	}

	report := Report{Status: StatusOK, Components: make(map[string]string, len(names))}
	for range names {
		res := <-results
		if res.err == nil {
			report.Components[res.name] = StatusOK
			continue
		}

		report.Components[res.name] = res.err.Error()
		c.log.Error("health check failed", slog.String("component", res.name), slog.Any("error", res.err))
		switch {
		case res.critical:
			report.Status = StatusDown
		case report.Status == StatusOK:
			report.Status = StatusDegraded
		}
	}

	return report
}

// Handler serves the report; 503 when a critical component is down.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())

		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			c.log.Warn("failed to write health report", slog.Any("error", err))
		}
	})
}

// DBChecker verifies connectivity to a PostgreSQL database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker constructs a DBChecker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database to ensure it is reachable.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return sql.ErrConnDone
	}
	return c.db.PingContext(ctx)
}

// Pinger abstracts the subset of redis.Client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}

// TelegramChecker verifies that the bot has identified itself to Telegram.
type TelegramChecker struct {
	bot *telebot.Bot
}

// NewTelegramChecker constructs a TelegramChecker.
func NewTelegramChecker(bot *telebot.Bot) *TelegramChecker {
	return &TelegramChecker{bot: bot}
}

func (c *TelegramChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.bot == nil || c.bot.Me == nil || c.bot.Me.ID == 0 {
		return errors.New("telegram bot is not initialized or disconnected")
	}
	return nil
}

// BreakerStater exposes a circuit breaker state.
type BreakerStater interface {
	BreakerState() apperrors.State
}

// BreakerChecker fails while the rate provider's breaker is open.
type BreakerChecker struct {
	source BreakerStater
}

func NewBreakerChecker(source BreakerStater) *BreakerChecker {
	return &BreakerChecker{source: source}
}

func (c *BreakerChecker) HealthCheck(context.Context) error {
	if c == nil || c.source == nil {
		return nil
	}
	if c.source.BreakerState() == apperrors.StateOpen {
		return apperrors.ErrCircuitOpen
	}
	return nil
}
