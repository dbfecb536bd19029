package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/infrastructure/telemetry"
	"jan-server/services/chat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/chat-api/internal/interfaces/httpserver/routes"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
	readinessTimeout  = 2 * time.Second
)

// ReadinessProbe reports whether the storage backend is reachable.
type ReadinessProbe func(ctx context.Context) error

// HTTPServer is the HTTP server for the chat API.
type HTTPServer struct {
	cfg      *config.Config
	engine   *gin.Engine
	log      zerolog.Logger
	draining atomic.Bool
}

// New creates a new HTTP server.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	routeProvider *routes.Provider,
	ready ReadinessProbe,
	sanitizer *telemetry.Sanitizer,
) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	var userIDs func(string) string
	if sanitizer != nil {
		userIDs = sanitizer.SanitizeUserID
	}

	engine.Use(middlewares.RequestID())
	engine.Use(middlewares.Tracing(cfg.ServiceName))
	engine.Use(middlewares.Metrics())
	engine.Use(middlewares.CORS(cfg.WSAllowedOrigins))
	engine.Use(middlewares.RequestLogger(log, userIDs))

	server := &HTTPServer{
		cfg:    cfg,
		engine: engine,
		log:    log.With().Str("component", "http").Logger(),
	}
	server.registerCoreRoutes(ready)
	routeProvider.Register(engine)
	return server
}

// Handler exposes the gin engine, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured port and serves until ctx is cancelled. From
// then on /readyz reports draining while in-flight REST calls finish.
// Hijacked websocket connections are not tracked by Shutdown; the hub closes them.
func (s *HTTPServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", listener.Addr().String()).Msg("HTTP server listening")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			s.log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
		return err
	}

	s.draining.Store(true)
	s.log.Info().Dur("timeout", s.cfg.ShutdownTimeout).Msg("draining HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *HTTPServer) registerCoreRoutes(ready ReadinessProbe) {
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     s.cfg.ServiceName,
			"environment": s.cfg.Environment,
			"status":      "ok",
		})
	})

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	s.engine.GET("/readyz", func(c *gin.Context) {
		if s.draining.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
			return
		}
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				s.log.Warn().Err(err).Msg("readiness check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "storage unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
