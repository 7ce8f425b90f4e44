// Package api exposes the HTTP surface: confession submission and queries,
// publish job management, stats, and operational endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/logger"
)

// Default timeout values.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Server wraps the HTTP server with lifecycle management.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// ServerOptions bundles the server's collaborators.
type ServerOptions struct {
	Handler  *Handler
	Checks   HealthChecks
	Registry *prometheus.Registry
	Config   config.ServerConfig
	Debug    bool
	Logger   logger.Logger
}

// NewServer builds the gin engine and HTTP server.
func NewServer(opts ServerOptions) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(corsMiddleware())

	SetupRoutes(router, opts.Handler, opts.Checks, opts.Registry)

	readTimeout := opts.Config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	writeTimeout := opts.Config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Config.Address,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		logger: log,
	}
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", logger.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
