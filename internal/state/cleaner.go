package state

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner drops sessions abandoned mid-flow so members are not stuck
// waiting for input they will never send.
type Cleaner struct {
	storage  Storage
	log      *slog.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(storage Storage, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		storage:  storage,
		log:      log,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.storage == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("state cleaner stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep clears every session idle for longer than ttl and returns how many were removed.
func (c *Cleaner) Sweep(ctx context.Context) int {
	sessions, err := c.storage.GetAllStates(ctx)
	if err != nil {
		c.log.Error("state cleaner scan failed", slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, session := range sessions {
		if session == nil || c.now().Sub(session.UpdatedAt) <= c.ttl {
			continue
		}

		if err := c.storage.ClearState(ctx, session.Key); err != nil {
			c.log.Error("state cleaner failed to clear session", slog.String("session", session.Key.String()), slog.Any("error", err))
			continue
		}
		removed++
	}

	if removed > 0 {
		c.log.Info("stale sessions cleared", slog.Int("count", removed))
	}

	return removed
}
