package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/merturl4576/pyservice-mini-itsm/internal/api/http"
	"github.com/merturl4576/pyservice-mini-itsm/internal/api/http/handlers"
	"github.com/merturl4576/pyservice-mini-itsm/internal/auth"
	"github.com/merturl4576/pyservice-mini-itsm/internal/config"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
	"github.com/merturl4576/pyservice-mini-itsm/internal/observability"
	"github.com/merturl4576/pyservice-mini-itsm/internal/persistence"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	"github.com/merturl4576/pyservice-mini-itsm/internal/service"
	"github.com/merturl4576/pyservice-mini-itsm/internal/sweeper"
	"github.com/merturl4576/pyservice-mini-itsm/internal/worker"
	"github.com/merturl4576/pyservice-mini-itsm/pkg/clock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	incidentRepo := repository.NewIncidentRepository(pool)
	requestRepo := repository.NewServiceRequestRepository(pool)
	assetRepo := repository.NewAssetRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	sequenceRepo := repository.NewSequenceRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	systemClock := clock.System()

	authService := service.NewAuthService(*cfg, userRepo)
	allocator := service.NewAssetAllocator(assetRepo, logger)
	incidentService := service.NewIncidentService(service.IncidentDependencies{
		IncidentRepo: incidentRepo,
		SequenceRepo: sequenceRepo,
		UserRepo:     userRepo,
		Dispatcher:   dispatcher,
		Clock:        systemClock,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo:  requestRepo,
		SequenceRepo: sequenceRepo,
		UserRepo:     userRepo,
		Allocator:    allocator,
		Dispatcher:   dispatcher,
		Clock:        systemClock,
	})
	assetService := service.NewAssetService(assetRepo)
	notificationService := service.NewNotificationService(notificationRepo, dispatcher, redis, logger, cfg.Notification)

	worker.StartNotificationWorker(notificationService)

	slaSweeper := sweeper.New(cfg.Sweeper, sweeper.Dependencies{
		IncidentRepo:    incidentRepo,
		IncidentService: incidentService,
		Dispatcher:      dispatcher,
		Clock:           systemClock,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err := slaSweeper.Start(); err != nil {
		logger.Fatal("failed to start sweeper", zap.Error(err))
	}
	defer slaSweeper.Stop()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Incidents:      handlers.NewIncidentsHandler(incidentService),
		Requests:       handlers.NewRequestsHandler(requestService),
		Assets:         handlers.NewAssetsHandler(assetService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
