// @title           Chat API
// @version         1.0
// @description     Conversation and unread-state sync service for the listing marketplace.
// @description     Provides REST endpoints and a websocket channel for live message delivery.

// @contact.name   Jan Team
// @contact.url    https://github.com/janhq/jan-server

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8190
// @BasePath  /v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token from Keycloak

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/infrastructure/crontab"
	"jan-server/services/chat-api/internal/infrastructure/logger"
	"jan-server/services/chat-api/internal/infrastructure/observability"
	"jan-server/services/chat-api/internal/infrastructure/realtime"
	"jan-server/services/chat-api/internal/interfaces/httpserver"
	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/chat-api/internal/interfaces/httpserver/routes"
)

// Application holds the main application components.
type Application struct {
	httpServer    *httpserver.HTTPServer
	hub           *realtime.Hub
	notifications *Notifications
	cron          *crontab.Crontab
	log           zerolog.Logger
}

// NewApplication creates a new application instance.
func NewApplication(
	httpServer *httpserver.HTTPServer,
	hub *realtime.Hub,
	notifications *Notifications,
	cron *crontab.Crontab,
	log zerolog.Logger,
) *Application {
	return &Application{
		httpServer:    httpServer,
		hub:           hub,
		notifications: notifications,
		cron:          cron,
		log:           log,
	}
}

// Start runs the application and blocks until ctx is cancelled or a component fails.
func (a *Application) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.httpServer.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		// hijacked websocket connections are not tracked by http.Server.Shutdown
		a.hub.Close()
		return nil
	})
	g.Go(func() error { return a.notifications.Queue.Run(ctx) })
	if a.notifications.Worker != nil {
		g.Go(func() error { return a.notifications.Worker.Run(ctx) })
	}
	if a.cron != nil {
		g.Go(func() error { return a.cron.Run(ctx) })
	}

	err := g.Wait()
	a.notifications.Close()
	return err
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup observability
	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	storage, err := ProvideStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	locker, closeLocker, err := ProvideLocker(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation locks")
	}
	defer closeLocker()

	directory, err := ProvideDirectory(storage, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize user directory")
	}

	sanitizer := ProvideSanitizer(cfg)
	inboxService := ProvideInboxService(storage, log)

	notifications, err := ProvideNotifications(cfg, inboxService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize notification queue")
	}

	// Hub and service reference each other: the hub asks the service for membership.
	hub := ProvideHub(log)
	conversationService := ProvideConversationService(cfg, storage, locker, hub, notifications, directory, sanitizer, log)
	cron := ProvideCrontab(cfg, conversationService, log)

	authValidator, err := ProvideAuthValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth validator")
	}

	socketHandler := handlers.NewSocketHandler(conversationService, hub, authValidator, handlers.NewSocketConfig(cfg), log)
	handlerProvider := handlers.NewProvider(conversationService, inboxService, socketHandler)
	routeProvider := routes.NewProvider(handlerProvider, authValidator)
	httpServer := httpserver.New(cfg, log, routeProvider, storage.Ready, sanitizer)

	app := NewApplication(httpServer, hub, notifications, cron, log)

	log.Info().
		Str("service", cfg.ServiceName).
		Str("port", fmt.Sprintf("%d", cfg.HTTPPort)).
		Str("environment", cfg.Environment).
		Str("db_driver", cfg.DBDriver).
		Str("lock_backend", cfg.LockBackend).
		Str("notify_backend", cfg.NotifyBackend).
		Msg("starting application")

	if err := app.Start(ctx); err != nil {
		log.Error().Err(err).Msg("application stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("application stopped")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
