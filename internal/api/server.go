package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/melisync/melisync/internal/config"
	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
)

// ServiceName is reported by the status endpoint.
const ServiceName = "meli-faturamento-sync"

// SyncService is the part of the sync coordinator the API needs.
type SyncService interface {
	RunCycle(ctx context.Context) ([]models.SyncResult, error)
	Snapshot() models.RunSnapshot
	Accounts() models.AccountList
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	sync        SyncService
	interval    time.Duration
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// Options carries the optional collaborators of a Server.
type Options struct {
	// Interval is reported by the status endpoint.
	Interval time.Duration
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, svc SyncService, opts Options) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics("melisync")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	requestsPerMinute := apiCfg.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	burst := apiCfg.RateLimit.Burst
	if burst <= 0 {
		burst = 20
	}
	maxBody := apiCfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	server := &Server{
		router:      gin.New(),
		config:      cfg,
		apiConfig:   apiCfg,
		sync:        svc,
		interval:    opts.Interval,
		metrics:     m,
		logger:      logger,
		rateLimiter: newIPRateLimiter(requestsPerMinute, burst),
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(server.rateLimiter))
	server.router.Use(bodyLimitMiddleware(maxBody))
	server.router.Use(metrics.Middleware(m, logger, "/metrics"))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		logger.DebugWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.router.GET("/", s.handleStatus)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/last", s.handleLast)

	var keys []string
	if s.apiConfig.Auth.Enabled {
		keys = s.apiConfig.Auth.APIKeys
	}
	s.router.POST("/sync", APIKeyAuth(keys, s.apiConfig.Auth.HeaderName, s.logger), s.handleSync)
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)
	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err.Error())
		return &errors.ErrServerShutdown{Err: err}
	}
	return nil
}

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Service         string     `json:"service"`
	Accounts        []string   `json:"accounts"`
	IntervalMinutes float64    `json:"interval_minutes"`
	LastSync        *time.Time `json:"last_sync"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Service:         ServiceName,
		Accounts:        s.sync.Accounts().Empresas(),
		IntervalMinutes: s.interval.Minutes(),
		LastSync:        s.sync.Snapshot().LastSync,
	})
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string     `json:"status"`
	Accounts int        `json:"accounts"`
	LastSync *time.Time `json:"last_sync"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Accounts: len(s.sync.Accounts()),
		LastSync: s.sync.Snapshot().LastSync,
	})
}

func (s *Server) handleLast(c *gin.Context) {
	c.JSON(http.StatusOK, s.sync.Snapshot())
}

// SyncResponse is returned by POST /sync.
type SyncResponse struct {
	Results []models.SyncResult `json:"results"`
}

// handleSync runs a cycle, or joins the one in flight. The cycle keeps
// running if the client disconnects.
func (s *Server) handleSync(c *gin.Context) {
	ctx := c.Request.Context()
	s.logger.InfoWithContext(ctx, "manual sync requested", "client_ip", c.ClientIP())

	results, err := s.sync.RunCycle(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.ErrorWithContext(ctx, "manual sync failed", "error", err.Error())
		s.metrics.RecordError("manual_sync", "api")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "sync_failed",
			Message: err.Error(),
			Code:    http.StatusServiceUnavailable,
		})
		return
	}
	if results == nil {
		results = []models.SyncResult{}
	}
	c.JSON(http.StatusOK, SyncResponse{Results: results})
}
