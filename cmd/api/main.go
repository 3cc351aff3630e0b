package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

type repositories struct {
	companies repository.CompanyRepository
	users     repository.UserRepository
	tickets   repository.TicketRepository
	messages  repository.TicketMessageRepository
	history   repository.TicketHistoryRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	dependencies := map[string]handlers.Pinger{}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var repos repositories
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		pool := pg.PoolHandle()
		repos = repositories{
			companies: repository.NewCompanyRepository(pool),
			users:     repository.NewUserRepository(pool),
			tickets:   repository.NewTicketRepository(pool),
			messages:  repository.NewTicketMessageRepository(pool),
			history:   repository.NewTicketHistoryRepository(pool),
		}
		dependencies["postgres"] = pg
	} else {
		store := repository.NewMemoryStore()
		repos = repositories{
			companies: store.Companies(),
			users:     store.Users(),
			tickets:   store.Tickets(),
			messages:  store.Messages(),
			history:   store.History(),
		}
	}

	var registry realtime.Registry = realtime.NewMemoryRegistry()
	var relay *realtime.RedisRelay
	if cfg.Realtime.PresenceBackend == config.PresenceBackendRedis || cfg.Realtime.RedisRelay {
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rdb.Close()
		dependencies["redis"] = rdb

		if cfg.Realtime.PresenceBackend == config.PresenceBackendRedis {
			registry = realtime.NewRedisRegistry(rdb.Client, cfg.Realtime.PresenceTTL())
		}
		if cfg.Realtime.RedisRelay {
			relay = realtime.NewRedisRelay(rdb.Client, logger)
		}
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	hubOptions := realtime.HubOptions{
		Registry:   registry,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		SendBuffer: cfg.Realtime.SendBuffer,
	}
	if relay != nil {
		hubOptions.Relay = relay
	}
	hub := realtime.NewHub(hubOptions)

	var relayDone <-chan struct{}
	if relay != nil {
		relayDone = worker.StartEventRelay(ctx, relay, hub.Deliver, logger)
	}

	blobs, err := storage.NewLocalStore(cfg.Upload.Dir, cfg.Upload.PublicBaseURL, cfg.Upload.MaxBytes)
	if err != nil {
		logger.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		CompanyRepo: repos.companies,
		UserRepo:    repos.users,
	})
	userService := service.NewUserService(repos.users, authService, logger)
	ticketService := service.NewTicketService(cfg.Tickets, service.TicketDependencies{
		TicketRepo:  repos.tickets,
		MessageRepo: repos.messages,
		HistoryRepo: repos.history,
		Bus:         hub,
		Logger:      logger,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		Tickets:     ticketService,
		MessageRepo: repos.messages,
		Blobs:       blobs,
		Bus:         hub,
		Logger:      logger,
	})
	hub.SetAuthorizer(ticketService)

	worker.StartNotificationRelay(service.NewNotificationRelay(dispatcher, hub, logger, cfg.Notification))

	authenticator := auth.NewAuthenticator(authService.TokenManager(), repos.users)

	app := httptransport.NewApp(cfg.App.Name, cfg.Upload.MaxBytes)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	uploadPrefix := ""
	if strings.HasPrefix(cfg.Upload.PublicBaseURL, "/") {
		uploadPrefix = cfg.Upload.PublicBaseURL
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Messages:       handlers.NewMessagesHandler(messageService),
		AuthMiddleware: auth.NewAuthMiddleware(authenticator),
		UploadDir:      blobs.Dir(),
		UploadPrefix:   uploadPrefix,
	})

	realtimeServer := &http.Server{
		Addr:              cfg.Realtime.Addr(),
		Handler:           realtime.NewServer(hub, authenticator, cfg.Realtime.AllowedOrigins, logger).Handler(cfg.Realtime.Path),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("realtime listening", zap.String("addr", realtimeServer.Addr), zap.String("path", cfg.Realtime.Path))
		if err := realtimeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := realtimeServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("realtime shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	if relayDone != nil {
		<-relayDone
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
