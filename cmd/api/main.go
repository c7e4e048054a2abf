// Package main - точка входа HTTP API журнала оценок.
//
// API принимает итоговые и промежуточные оценки, пересчитывает GPA
// и академический статус студента и выдаёт оповещения о риске.
//
// Использование:
//
//	api                 запуск сервера
//	api hash-key <key>  вывод bcrypt-хеша для HTTP_API_KEY_HASHES
//	api migrate-down    откат последней миграции PostgreSQL
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/gradebook/config"
	"github.com/alem-hub/gradebook/internal/application/command"
	"github.com/alem-hub/gradebook/internal/application/eventhandler"
	"github.com/alem-hub/gradebook/internal/application/query"
	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/internal/infrastructure/metrics"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/gradebook/internal/infrastructure/service"
	httpapi "github.com/alem-hub/gradebook/internal/interface/http"
	"github.com/alem-hub/gradebook/internal/interface/http/handlers"
	"github.com/alem-hub/gradebook/pkg/logger"
	"github.com/alem-hub/gradebook/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		if err := hashKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "hash-key: %v\n", err)
			os.Exit(2)
		}
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		if err := migrateDown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "migrate-down: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func hashKey(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: api hash-key <key>")
	}
	hash, err := handlers.HashKey(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func migrateDown(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.UsePostgres() {
		return errors.New("migrations need STORAGE_BACKEND=postgres")
	}

	conn, err := postgres.NewConnection(ctx, postgres.ConfigFrom(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	version, err := postgres.NewMigrator(conn).RollbackLast(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Println("no migrations applied")
		return nil
	}
	fmt.Printf("rolled back migration %d\n", version)
	return nil
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	log := logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
	defer func() { _ = log.Sync() }()

	log.Info("starting gradebook API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("storage", cfg.Storage.Backend),
		logger.Bool("redis", cfg.Redis.Enabled),
		logger.String("notify_policy", cfg.Evaluation.NotifyFailurePolicy),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ХРАНИЛИЩЕ (PostgreSQL или память)
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()
	if store.check != nil {
		health.AddCheck("database", store.check)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. КЕШ СТАТУСА И БЛОКИРОВКИ (Redis, опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache  student.Cache
		locker student.Locker = memory.NewKeyedMutex()
	)
	if cfg.Redis.Enabled {
		rc, err := redis.NewCache(redis.ConfigFrom(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = rc.Close() }()

		retrier := retry.LockRetrier().With(
			retry.WithMaxAttempts(cfg.Evaluation.LockRetryAttempts),
			retry.WithInitialDelay(cfg.Evaluation.LockRetryDelay),
		)
		standingCache := redis.NewStudentCache(rc, redis.WithCacheLogger(log))
		if store.migrated > 0 {
			if err := standingCache.InvalidateAll(ctx); err != nil {
				log.Warn("failed to flush standing cache after migration", logger.Err(err))
			}
		}
		cache = standingCache
		locker = redis.NewStudentLocker(rc,
			redis.WithLockTTL(cfg.Evaluation.LockTTL),
			redis.WithLockRetrier(retrier),
			redis.WithLockLogger(log),
		)
		health.AddOptionalCheck("redis", standingCache.Check)
		log.Info("redis connected", logger.String("addr", redis.ConfigFrom(cfg.Redis).Addr()))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ШИНА УВЕДОМЛЕНИЙ И ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	policy := messaging.FailFast
	if cfg.CollectNotifyErrors() {
		policy = messaging.CollectErrors
	}
	bus := messaging.NewNotificationBus(messaging.BusConfig{
		Policy:  policy,
		Logger:  log,
		Metrics: collector,
	})

	alerts := service.NewAlertService(store.alerts, collector, log)
	registrations := []struct {
		name     string
		handler  messaging.Handler
		priority int
	}{
		{eventhandler.NameRecalculateGPA, eventhandler.NewRecalculateGPAHandler(store.enrollments, store.students, collector, log), eventhandler.PriorityRecalculateGPA},
		{eventhandler.NameRiskDetection, eventhandler.NewRiskDetectionHandler(alerts, log), eventhandler.PriorityRiskDetection},
		{eventhandler.NameStandingChange, eventhandler.NewStandingChangeHandler(alerts, log, eventhandler.DefaultStandingChangeConfig()), eventhandler.PriorityStandingChange},
	}
	for _, r := range registrations {
		if err := bus.Attach(r.name, r.handler, r.priority); err != nil {
			return fmt.Errorf("failed to attach %s: %w", r.name, err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(httpapi.ConfigFrom(cfg), httpapi.Dependencies{
		Evaluation: command.NewGradeEvaluationService(
			store.enrollments, store.students, store.nodes, bus, locker, cache, collector, log),
		GradeNodes:    command.NewGradeNodeHandler(store.enrollments, store.nodes, log),
		Students:      command.NewStudentHandler(store.students, store.enrollments, locker, cache, log),
		GetStanding:   query.NewGetStandingHandler(store.students, cache, cfg.Evaluation.StandingCacheTTL, log),
		GetGradeTree:  query.NewGetGradeTreeHandler(store.enrollments, store.nodes),
		ListAlerts:    query.NewListAlertsHandler(store.alerts),
		PreviewGrade:  query.NewPreviewGradeHandler(),
		Metrics:       collector,
		Gatherer:      registry,
		HealthChecker: health,
		Logger:        log,
		Auth:          handlers.NewAPIKeyAuth(cfg.HTTP.APIKeyHashes),
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("gradebook API stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

type storage struct {
	students    student.Repository
	enrollments enrollment.Repository
	nodes       gradetree.Repository
	alerts      alert.Repository

	check    handlers.HealthCheckFunc
	migrated int
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if !cfg.UsePostgres() {
		log.Warn("using in-memory storage; data is lost on restart")
		return &storage{
			students:    memory.NewStudentRepository(),
			enrollments: memory.NewEnrollmentRepository(),
			nodes:       memory.NewGradeNodeRepository(),
			alerts:      memory.NewAlertRepository(),
			close:       func() {},
		}, nil
	}

	conn, err := postgres.NewConnection(ctx, postgres.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	applied := 0
	if cfg.Database.MigrateOnStart {
		applied, err = postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database migrations applied", logger.Int("count", applied))
	}

	return &storage{
		students:    postgres.NewStudentRepository(conn),
		enrollments: postgres.NewEnrollmentRepository(conn),
		nodes:       postgres.NewGradeNodeRepository(conn),
		alerts:      postgres.NewAlertRepository(conn),
		check:       conn.Check,
		migrated:    applied,
		close:       conn.Close,
	}, nil
}
