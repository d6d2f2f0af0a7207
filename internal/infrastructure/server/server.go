package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	nesthttp "github.com/kastrel/nest/internal/api/http"
	"github.com/kastrel/nest/internal/api/middleware"
	"github.com/kastrel/nest/internal/api/ws"
	"github.com/kastrel/nest/internal/auth"
	"github.com/kastrel/nest/internal/demo"
	"github.com/kastrel/nest/internal/hub"
	"github.com/kastrel/nest/internal/infrastructure/config"
	"github.com/kastrel/nest/internal/infrastructure/logging"
	"github.com/kastrel/nest/internal/infrastructure/monitoring"
	"github.com/kastrel/nest/internal/relay"
	"github.com/kastrel/nest/internal/service"
	"github.com/kastrel/nest/internal/trace"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	nest    *service.Nest
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing Kastrel Nest",
		zap.String("port", cfg.Server.Port),
		zap.String("summary_service", cfg.Upstream.BaseURL),
		zap.Bool("auth_enabled", cfg.Dashboard.Password != ""),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Core state: trace history plus the viewer broadcast hub
	store := trace.NewStore().WithLimit(cfg.Trace.HistoryLimit)
	broadcastHub := hub.New(logger).WithMetrics(metrics)
	nest := service.New(store, broadcastHub, logger, metrics)

	// Streaming relay to the summary service
	relayClient := relay.NewClient(relay.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		Timeout:        cfg.Upstream.Timeout,
		ConnectTimeout: cfg.Upstream.ConnectTimeout,
	}, logger)

	// Demo data loader
	loader, err := demo.NewLoader(cfg.Demo.DataPath)
	if err != nil {
		return nil, err
	}

	sessions := auth.NewSessions()

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	router.Use(middleware.SessionAuth(sessions, cfg.Dashboard.Password))

	// Create handlers
	handlers := nesthttp.NewHandlers(nest, relayClient, loader, sessions, cfg.Dashboard.Password, logger, metrics)
	wsHandler := ws.NewHandler(nest, logger, metrics, cfg.Hub.SendTimeout)

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Perch agent ingestion
	router.GET("/api/v1/health", handlers.AgentHealth)
	router.POST("/api/v1/agents/register", handlers.RegisterAgent)
	router.POST("/api/v1/traces", handlers.ReceiveTraces)

	// Dashboard query API
	router.GET("/dashboard/api/traces", handlers.ListTraces)
	router.GET("/dashboard/api/agents", handlers.ListAgents)
	router.GET("/dashboard/api/stats", handlers.GetStats)

	// Demo data
	router.GET("/dashboard/api/demo/available-data", handlers.ListAvailableData)
	router.POST("/dashboard/api/demo/load-local-data", handlers.LoadLocalData)

	// Streaming summarize relay
	router.POST("/dashboard/api/subjects/:id/summarize", handlers.Summarize)

	// Session auth
	router.POST("/login", handlers.Login)
	router.POST("/logout", handlers.Logout)

	// WebSocket
	router.GET("/dashboard/ws", wsHandler.HandleConnection)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		nest:    nest,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Router exposes the configured engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	defer s.logger.Sync()

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
