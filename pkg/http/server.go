package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/errors"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/session"
	"interview-coach/pkg/version"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ConnectionChecker reports the state of an outbound dependency
type ConnectionChecker interface {
	IsConnected() bool
}

// Server serves health, metrics, the session REST API and the session websocket
type Server struct {
	config     *config.HTTPConfig
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	sessions   *session.Manager
	startTime  time.Time
	amqpClient ConnectionChecker
	wsHandler  *SessionWebSocketHandler
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, cfg *config.HTTPConfig, sessions *session.Manager) *Server {
	server := &Server{
		config:    cfg,
		logger:    logger,
		sessions:  sessions,
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}

	server.mux.HandleFunc("GET /health", addServerHeader(server.HealthHandler))
	server.mux.HandleFunc("GET /health/live", addServerHeader(server.LivenessHandler))
	server.mux.HandleFunc("GET /health/ready", addServerHeader(server.ReadinessHandler))

	if registry := metrics.GetRegistry(); cfg.EnableMetrics && registry != nil {
		promHandler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		server.mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", version.ServerHeader())
			promHandler.ServeHTTP(w, r)
		})
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoints disabled")
	}

	NewSessionHandler(logger, sessions).RegisterHandlers(server)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.Port),
		Handler:      server.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// addServerHeader wraps a handler to set the Server header
func addServerHeader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next(w, r)
	}
}

// RegisterHandler adds a custom handler to the server
func (s *Server) RegisterHandler(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, addServerHeader(handler))
	s.logger.WithField("pattern", pattern).Debug("Registered HTTP handler")
}

// SetAMQPClient sets the AMQP client reference for health checks
func (s *Server) SetAMQPClient(client ConnectionChecker) {
	s.amqpClient = client
}

// SetSessionWebSocketHandler registers the session websocket at /ws/session
func (s *Server) SetSessionWebSocketHandler(handler *SessionWebSocketHandler) {
	s.wsHandler = handler
	s.mux.HandleFunc("GET /ws/session", handler.ServeHTTP)
	s.logger.Info("Session WebSocket endpoint registered at /ws/session")
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, err error) {
	errors.WriteError(w, err)
	s.logger.WithError(err).Debug("HTTP error response sent")
}
