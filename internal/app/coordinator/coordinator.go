package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/parkease-coordinator/internal/cache"
	"github.com/magabrotheeeer/parkease-coordinator/internal/config"
	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/health"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/jwt"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
	"github.com/magabrotheeeer/parkease-coordinator/internal/migrations"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/auth"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/backup"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/lifecycle"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/notification"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/scheduler"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/session"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/stats"
	"github.com/magabrotheeeer/parkease-coordinator/internal/storage/repository"
	"github.com/magabrotheeeer/parkease-coordinator/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

// Имена фоновых задач
const (
	TaskNotificationDrain   = "notification-drain"
	TaskLifecycleWarnings   = "lifecycle-warnings"
	TaskLifecycleExpiration = "lifecycle-expiration"
	TaskAdminHeartbeat      = "admin-heartbeat"
)

type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	cache      *cache.Cache
	relay      *eventbus.Relay
	hub        *websocket.Hub
	scheduler  *scheduler.Scheduler
	runOnStart bool
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "coordinator.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{
		logger:     logger,
		db:         db,
		runOnStart: cfg.RunOnStart,
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	bus := eventbus.New(logger, m)

	if cfg.RabbitMQ.URL != "" {
		relay, err := eventbus.NewRelay(logger, cfg.RabbitMQ, bus)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		bus.SetRelay(relay)
		app.relay = relay
	} else {
		logger.Info("rabbitmq url is empty, event relay disabled")
	}

	sessionOpts := []session.Option{session.WithMetrics(m)}
	var statsOpts []stats.Option
	if cfg.AddressRedis != "" {
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.cache = c
		sessionOpts = append(sessionOpts, session.WithLocker(c))
		statsOpts = append(statsOpts, stats.WithCache(c))
	} else {
		logger.Info("redis address is empty, stats cache and login lock disabled")
	}

	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL, cfg.RefreshTokenTTL)
	registry := session.New(logger, db, bus, sessionOpts...)
	authService := auth.New(logger, db, registry, tokens, cfg.Lifecycle)
	queue := notification.New(logger, db, bus,
		notification.WithBatchSize(cfg.DrainBatchSize),
		notification.WithConcurrency(cfg.DrainConcurrency),
		notification.WithMetrics(m),
	)
	backups := backup.New(logger, db, backup.WithMetrics(m))
	manager := lifecycle.New(logger, db, backups, queue, bus, cfg.Lifecycle, lifecycle.WithMetrics(m))
	statsService := stats.New(logger, db, bus, bus, cfg.Location(), statsOpts...)

	app.hub = websocket.NewHub(logger, bus, authService, registry, statsService, m)

	app.scheduler = scheduler.New(logger, m)
	if err := registerTasks(app.scheduler, logger, cfg.Scheduler, queue, manager, statsService); err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checks := map[string]health.Pinger{"postgres": db}
	if app.cache != nil {
		checks["redis"] = app.cache
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Routes{
		Auth:           authService,
		Sessions:       registry,
		Lifecycle:      manager,
		WebSocket:      app.hub.HandleWebSocket,
		Health:         health.New(logger, checks, bus),
		GuestTrialDays: cfg.GuestTrialDays,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return app, nil
}

func registerTasks(s *scheduler.Scheduler, logger *slog.Logger, cfg config.Scheduler, queue *notification.Queue, manager *lifecycle.Manager, st *stats.Service) error {
	tasks := []struct {
		name     string
		interval time.Duration
		fn       scheduler.Task
	}{
		{TaskNotificationDrain, cfg.DrainInterval, func(ctx context.Context) error {
			res, err := queue.Drain(ctx)
			if err != nil {
				return err
			}
			if res.Fetched > 0 {
				logger.Info("notification queue drained",
					slog.Int("fetched", res.Fetched), slog.Int("sent", res.Sent), slog.Int("failed", res.Failed))
			}
			return nil
		}},
		{TaskLifecycleWarnings, cfg.WarningInterval, func(ctx context.Context) error {
			res, err := manager.RunWarningScan(ctx)
			if err != nil {
				return err
			}
			logScan(logger, TaskLifecycleWarnings, res)
			return nil
		}},
		{TaskLifecycleExpiration, cfg.ExpirationInterval, func(ctx context.Context) error {
			res, err := manager.RunExpirationScan(ctx)
			if err != nil {
				return err
			}
			logScan(logger, TaskLifecycleExpiration, res)
			return nil
		}},
		{TaskAdminHeartbeat, cfg.HeartbeatInterval, st.Heartbeat},
	}

	for _, t := range tasks {
		if err := s.Register(t.name, t.interval, t.fn); err != nil {
			return err
		}
	}
	return nil
}

func logScan(logger *slog.Logger, task string, res lifecycle.ScanResult) {
	logger.Info("lifecycle scan finished",
		slog.String("task", task),
		slog.Int("scanned", res.Scanned),
		slog.Int("affected", res.Affected),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
}

// Run запускает HTTP-сервер, расписание и ретрансляцию событий и
// блокируется до отмены ctx или ошибки одного из них.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}

	if a.runOnStart {
		g.Go(func() error {
			a.warmUp(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.logger.Info("shutting down HTTP server gracefully")
		if err := a.hub.Shutdown(timeoutCtx); err != nil {
			a.logger.Warn("websocket hub shutdown incomplete", sl.Err(err))
		}
		return a.server.Shutdown(timeoutCtx)
	})

	return g.Wait()
}

// warmUp выполняет задачи жизненного цикла и доставку один раз при старте.
func (a *App) warmUp(ctx context.Context) {
	for _, name := range []string{TaskLifecycleExpiration, TaskLifecycleWarnings, TaskNotificationDrain} {
		if ctx.Err() != nil {
			return
		}
		if err := a.scheduler.RunNow(ctx, name); err != nil && !errors.Is(err, scheduler.ErrTaskBusy) {
			a.logger.Error("startup task failed", slog.String("task", name), sl.Err(err))
		}
	}
}

func (a *App) close() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.logger.Warn("failed to close event relay", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", sl.Err(err))
	}
}
