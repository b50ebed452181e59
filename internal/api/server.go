package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"harmonic-signals/internal/auth"
	"harmonic-signals/internal/database"
	"harmonic-signals/internal/events"
	"harmonic-signals/internal/logging"
	"harmonic-signals/internal/scanner"
	"harmonic-signals/internal/strategy"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-endpoint token bucket: limit requests per window,
// with a burst of limit. Idle endpoints are evicted after one window, when
// their bucket would be full again anyway.
type RateLimiter struct {
	limiters  map[string]*endpointLimiter
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type endpointLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*endpointLimiter),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(now)
	}

	entry, ok := r.limiters[key]
	if !ok {
		entry = &endpointLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// sweep drops endpoints idle for a full window. Caller holds r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	for key, entry := range r.limiters {
		if now.Sub(entry.lastSeen) >= r.window {
			delete(r.limiters, key)
		}
	}
	r.lastSweep = now
}

// size returns the number of tracked endpoints
func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// StreamService is the part of the scanner the API exposes
type StreamService interface {
	Streams() []scanner.StreamKey
	Latest(symbol, interval string) (*scanner.StreamResult, error)
	Reset(ctx context.Context, symbol, interval string) error
}

// SignalJournal reads persisted signals. *database.Repository satisfies it.
type SignalJournal interface {
	GetRecentSignals(ctx context.Context, symbol, interval string, limit int) ([]database.SignalRecord, error)
	HealthCheck(ctx context.Context) error
}

// ResultReader reads cached stream results. *cache.ResultCache satisfies it.
type ResultReader interface {
	GetResult(ctx context.Context, symbol, interval string) (*strategy.Result, error)
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	streams     StreamService
	journal     SignalJournal // nil when the database is disabled
	results     ResultReader  // nil when redis is disabled
	eventBus    *events.EventBus
	config      ServerConfig
	jwtManager  *auth.JWTManager // nil when auth is disabled
	rateLimiter *RateLimiter
	hub         *WSHub
	log         *logging.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	AllowedOrigins  []string
	ProductionMode  bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimit       int             // Requests per minute per path
	AnalyzeDefaults strategy.Config // Base config for stateless analysis
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	streams StreamService,
	journal SignalJournal, // Can be nil if the database is disabled
	results ResultReader, // Can be nil if redis is disabled
	eventBus *events.EventBus,
	jwtManager *auth.JWTManager, // Can be nil if auth is disabled
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 120
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 15 * time.Second
	}
	if config.AnalyzeDefaults.TradeSize <= 0 {
		config.AnalyzeDefaults = strategy.DefaultConfig()
	}

	router := gin.New()

	// Middleware
	router.Use(logging.GinMiddleware())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		streams:     streams,
		journal:     journal,
		results:     results,
		eventBus:    eventBus,
		config:      config,
		jwtManager:  jwtManager,
		rateLimiter: NewRateLimiter(config.RateLimit, time.Minute),
		hub:         NewWSHub(),
		log:         logging.WithComponent("api"),
	}

	server.setupRoutes()

	go server.hub.Run()
	if eventBus != nil {
		eventBus.SubscribeAll(server.hub.BroadcastEvent)
	}

	return server
}

// rateLimitMiddleware creates a middleware that rate limits requests by endpoint
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests to this endpoint. Please slow down.",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// WebSocket endpoint for real-time events
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api/harmonic")
	api.Use(s.rateLimitMiddleware())
	{
		api.POST("/analyze", s.handleAnalyze)
		api.GET("/patterns", s.handleGetPatterns)
		api.GET("/signals", s.handleGetSignals)

		api.GET("/streams", s.handleGetStreams)
		api.GET("/streams/:symbol/:interval", s.handleGetStream)

		if s.jwtManager != nil {
			api.POST("/streams/:symbol/:interval/reset", auth.Middleware(s.jwtManager), auth.RequireOperator(), s.handleResetStream)
		} else {
			api.POST("/streams/:symbol/:interval/reset", s.handleResetStream)
		}
	}
}

// Handler returns the HTTP handler, used by tests and embedding servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Starting HTTP server", "addr", addr, "auth_enabled", s.jwtManager != nil)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")

	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if s.journal != nil {
		dbStatus = "healthy"
		if err := s.journal.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"database":          dbStatus,
		"streams":           len(s.streams.Streams()),
		"websocket_clients": s.hub.GetClientCount(),
		"time":              time.Now().Format(time.RFC3339),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
