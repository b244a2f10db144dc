package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	warmupCron     string
	log            *slog.Logger
}

// NewScheduler registers periodic tasks on warmupCron, a cron spec such as "5 0 * * *".
func NewScheduler(redisOpt asynq.RedisConnOpt, warmupCron string, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC}),
		warmupCron:     warmupCron,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	// A zero day makes the handler resolve "today" when the task runs.
	task, err := NewRatesWarmupTask(time.Time{})
	if err != nil {
		return err
	}

	entryID, err := s.asynqScheduler.Register(s.warmupCron, task)
	if err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered rates warmup task",
		slog.String("cron", s.warmupCron),
		slog.String("entry_id", entryID),
	)

	return nil
}

func (s *scheduler) Run() {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	go func() {
		if err := s.asynqScheduler.Run(); err != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", slog.Any("error", err))
		}
	}()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
