package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/debtbot/internal/bot"
	"github.com/Proton-105/debtbot/internal/currency"
	"github.com/Proton-105/debtbot/internal/database"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/health"
	"github.com/Proton-105/debtbot/internal/i18n"
	"github.com/Proton-105/debtbot/internal/idempotency"
	"github.com/Proton-105/debtbot/internal/jobs"
	jobhandlers "github.com/Proton-105/debtbot/internal/jobs/handlers"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/internal/lifecycle"
	"github.com/Proton-105/debtbot/internal/middleware"
	"github.com/Proton-105/debtbot/internal/ratelimit"
	"github.com/Proton-105/debtbot/internal/repository"
	"github.com/Proton-105/debtbot/internal/state"
	"github.com/Proton-105/debtbot/internal/usercache"
	"github.com/Proton-105/debtbot/pkg/config"
	"github.com/Proton-105/debtbot/pkg/graceful"
	"github.com/Proton-105/debtbot/pkg/logger"
	"github.com/Proton-105/debtbot/pkg/metrics"
	appredis "github.com/Proton-105/debtbot/pkg/redis"
)

const (
	sweepInterval   = 10 * time.Minute
	rateLimitMaxAge = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "debtbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser := logger.New(*cfg)
	defer logCloser.Close()

	flushSentry, err := logger.InitSentry(*cfg)
	if err != nil {
		log.Warn("sentry disabled", slog.Any("error", err))
	}
	defer flushSentry()

	config.Watch(v, func(updated *config.Config) {
		if err := logger.SetLevel(updated.Logger.Level); err != nil {
			log.Warn("ignoring log level change", slog.Any("error", err))
			return
		}
		log.Info("config reloaded", slog.String("log_level", updated.Logger.Level))
	}, func(err error) {
		log.Warn("config reload rejected", slog.Any("error", err))
	})

	log.Info("starting debt bot",
		slog.String("env", cfg.AppEnv),
		slog.String("mode", cfg.Bot.Mode),
		slog.String("ledger_store", cfg.Ledger.Store),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log, 2*time.Second)

	redisClient, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	rdb := redisClient.Client
	shutdown.Register(lifecycle.PhaseStorage, "redis", func(context.Context) error { return redisClient.Close() })
	checker.AddCheck("redis", health.NewRedisChecker(rdb))

	store, db, err := openStore(ctx, *cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		shutdown.Register(lifecycle.PhaseStorage, "postgres", func(context.Context) error { return db.Close() })
		checker.AddCheck("postgres", health.NewDBChecker(db))
	}

	currencies := domain.NewCurrencySet(cfg.Ledger.Currencies)
	rates := currency.NewStack(cfg.Rates, appredis.NewMetricsClient(redisClient), currencies, log)
	checker.AddOptionalCheck("rates", health.NewBreakerChecker(rates.Resilient))

	service := ledger.NewService(store, rates.Converter, log,
		ledger.WithLocker(repository.NewRedisLocker(rdb, cfg.Ledger.LockTTL, log)),
	)

	var registry ledger.Registry = store
	if cfg.Ledger.Store == "postgres" {
		registry = usercache.NewCache(store, rdb, 0, log)
	}

	stateStorage := state.NewRedisStorage(rdb, log, cfg.State.TTL)
	fsm := state.NewStateMachine(stateStorage, log, rdb)

	catalogs, err := i18n.Load(cfg.Ledger.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb, log), memoryLimiter, log)

	b, err := bot.New(*cfg, log, bot.Dependencies{
		Ledger:      service,
		Registry:    registry,
		FSM:         fsm,
		Catalogs:    catalogs,
		Idempotency: idempotency.NewManager(idempotency.NewRedisStore(rdb, log), log),
		Limiter:     limiter,
		Rules:       ratelimit.NewRules(cfg.RateLimit),
	})
	if err != nil {
		return err
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))

	background, cancelBackground := context.WithCancel(ctx)
	shutdown.Register(lifecycle.PhaseWorkers, "background", func(context.Context) error {
		cancelBackground()
		return nil
	})
	go state.NewCleaner(stateStorage, log, cfg.State.TTL, cfg.State.CleanupInterval).Run(background)
	go metrics.NewStateCollector(fsm, 0).Run(background)
	go idempotency.NewCleaner(rdb, log, sweepInterval, cfg.Idempotency.TTL).Run(background)
	go ratelimit.NewCleaner(rdb, memoryLimiter, log, sweepInterval, rateLimitMaxAge).Run(background)

	if cfg.Jobs.Enabled {
		if err := startJobs(background, *cfg, rates.Rates, currencies, shutdown, log); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checker.Handler())
	server := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           logger.Middleware(middleware.New(log)(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe(ctx) }()

	go b.Start()
	shutdown.Register(lifecycle.PhaseIngress, "telegram", func(context.Context) error {
		b.Stop()
		return nil
	})

	log.Info("debt bot started", slog.String("http_addr", cfg.Server.Addr()))

	select {
	case <-ctx.Done():
		// The HTTP server drains itself once ctx is done.
		if err := <-serverErr; err != nil {
			log.Warn("http server shutdown", slog.Any("error", err))
		}
	case err := <-serverErr:
		if err != nil {
			log.Error("http server stopped", slog.Any("error", err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return shutdown.Execute(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ledger.Store, *sql.DB, error) {
	if cfg.Ledger.Store == "memory" {
		log.Warn("using in-memory ledger; debts are lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}

	if err := database.NewMigrator(db, log).ApplyFS(ctx, database.Migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	return repository.NewPostgresStore(db, log), db, nil
}

func startJobs(ctx context.Context, cfg config.Config, rates currency.RateSource, currencies domain.CurrencySet, shutdown *lifecycle.Shutdown, log *slog.Logger) error {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	worker := jobs.NewWorker(redisOpt, jobs.Queues, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeRatesWarmup, jobhandlers.NewRatesWarmupHandler(rates, currencies, log))

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.WarmupCron, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return fmt.Errorf("register scheduled tasks: %w", err)
	}

	if err := worker.Start(); err != nil {
		return fmt.Errorf("start jobs worker: %w", err)
	}
	scheduler.Run()

	manager := jobs.NewManager(redisOpt, log)
	if _, err := manager.WarmupRates(ctx, time.Time{}); err != nil {
		log.Warn("initial rates warmup not enqueued", slog.Any("error", err))
	}

	shutdown.Register(lifecycle.PhaseWorkers, "jobs", func(context.Context) error {
		scheduler.Shutdown()
		worker.Shutdown()
		return manager.Close()
	})

	return nil
}
