package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// warmupDedupWindow keeps a startup warmup and a manual one from piling up.
const warmupDedupWindow = time.Hour

// Manager requests rate warmups outside the cron schedule.
type Manager interface {
	// WarmupRates enqueues a warmup for day (zero means today). It reports
	// false when an identical warmup is already queued.
	WarmupRates(ctx context.Context, day time.Time) (bool, error)
	Close() error
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client enqueuer
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	return newManager(asynq.NewClient(redisOpt), log)
}

func newManager(client enqueuer, log *slog.Logger) *manager {
	if log == nil {
		log = slog.Default()
	}
	return &manager{client: client, log: log}
}

func (m *manager) WarmupRates(ctx context.Context, day time.Time) (bool, error) {
	task, err := NewRatesWarmupTask(day)
	if err != nil {
		return false, fmt.Errorf("build rates warmup: %w", err)
	}

	info, err := m.client.EnqueueContext(ctx, task, asynq.Unique(warmupDedupWindow))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		m.log.Debug("rates warmup already queued")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enqueue rates warmup: %w", err)
	}

	m.log.Info("rates warmup enqueued", slog.String("task_id", info.ID), slog.String("queue", info.Queue))
	return true, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
