// Package inspect serves a read-only view of the runtime configuration over
// HTTP. No route writes to the configuration.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

// Server is the introspection HTTP server.
type Server struct {
	router  *gin.Engine
	block   *rtconfig.Block
	metrics *monitoring.Metrics
	log     *zap.Logger
	cfg     config.InspectConfig
}

// New builds the router. gatherer backs /metrics; metrics may be nil.
func New(block *rtconfig.Block, cfg *config.Config, gatherer prometheus.Gatherer, metrics *monitoring.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if metrics != nil {
		router.Use(monitoring.Middleware(metrics))
	}
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	s := &Server{
		router:  router,
		block:   block,
		metrics: metrics,
		log:     log.Named("inspect"),
		cfg:     cfg.Inspect,
	}

	router.GET("/health", s.health)
	router.GET("/config", s.config)
	router.GET("/options", s.options)
	router.GET("/options/:name", s.option)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the router behind gzip compression for clients that
// accept it.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Serve accepts connections on l until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()
	s.log.Info("introspection server listening", zap.String("addr", l.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("inspect server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("inspect shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("inspect server: %w", err)
	}
	s.log.Info("introspection server stopped")
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("inspect listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, l)
}
