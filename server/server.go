// Package server bridges the flow core to browser shells. Each shell opens
// a flow session, posts events as the citizen moves through the wizard, and
// renders the snapshot it gets back. Sessions live in memory only and
// expire; nothing is ever persisted.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jcrioszam/red-ciudadana-sub001/catalog"
	"github.com/jcrioszam/red-ciudadana-sub001/flow"
)

const (
	sessionRateLimitRequests = 10
	sessionRateLimitWindow   = 5 * time.Minute
	sessionCleanupInterval   = time.Minute

	devCORSOriginLocalhost = "http://localhost:5173"
	devCORSOriginLoopback  = "http://127.0.0.1:5173"

	trustedProxyLoopbackIPv4 = "127.0.0.1"
	trustedProxyLoopbackIPv6 = "::1"
)

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

type rateBucket struct {
	start time.Time
	count int
}

// Server hosts flow sessions over HTTP.
type Server struct {
	cfg *Config
	log *slog.Logger

	catalogSource catalog.Source

	sessionMu sync.Mutex
	sessions  map[string]*flowSession

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket

	metrics *Metrics

	// newSubmitter builds the gateway for a fresh session; a test hook.
	newSubmitter func(backendToken string, categories []catalog.Category) flow.Submitter
}

// New wires a server against the backend configured in cfg.
func New(cfg *Config, logger *slog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		log:         logger,
		sessions:    make(map[string]*flowSession),
		rateBuckets: make(map[string]rateBucket),
		metrics:     NewMetrics(),
	}
	s.catalogSource = &catalog.FallbackSource{
		Primary: &catalog.HTTPSource{
			BaseURL: cfg.BackendBaseURL,
			Client:  &http.Client{Timeout: 10 * time.Second},
		},
	}
	s.newSubmitter = s.buildSubmitter
	return s
}

// Router assembles the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())
	r.Use(s.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/tipos-reporte", s.catalogHandler)
		api.POST("/flujo", s.createSessionHandler)

		flujo := api.Group("/flujo")
		flujo.Use(s.requireFlowSession())
		{
			flujo.GET("/:id", s.sessionSnapshotHandler)
			flujo.POST("/:id/eventos", s.sessionEventHandler)
			flujo.POST("/:id/foto", s.sessionPhotoHandler)
		}
	}

	return r
}

// Run starts the session janitor and serves until the listener fails.
func (s *Server) Run(ctx context.Context) error {
	cleanupCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.startSessionCleanup(cleanupCtx, sessionCleanupInterval)

	s.log.Info("starting flow bridge", "addr", s.cfg.Addr, "env", s.cfg.Env)
	return s.Router().Run(s.cfg.Addr)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status())
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if s.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || s.cfg == nil {
		return false
	}
	if s.cfg.PublicBaseURL != "" && origin == s.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(s.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func (s *Server) checkRateLimit(key string, maxRequests int, window time.Duration, now time.Time) bool {
	s.rateLimiterMu.Lock()
	defer s.rateLimiterMu.Unlock()

	bucket, ok := s.rateBuckets[key]
	if !ok || now.Sub(bucket.start) >= window {
		s.rateBuckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	s.rateBuckets[key] = bucket
	return bucket.count <= maxRequests
}

func (s *Server) pruneRateLimiterState(now time.Time) {
	s.rateLimiterMu.Lock()
	for key, bucket := range s.rateBuckets {
		if now.Sub(bucket.start) >= sessionRateLimitWindow {
			delete(s.rateBuckets, key)
		}
	}
	s.rateLimiterMu.Unlock()
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
