// Package server exposes a small HTTP status surface for long training runs:
// liveness probes and a read-only snapshot of the run's progress.
package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/evidential/pkg/config"
	"github.com/soundprediction/evidential/pkg/types"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Server represents the HTTP status server
type Server struct {
	config  *config.Config
	router  *gin.Engine
	tracker *Tracker
	runID   string
	server  *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, tracker *Tracker, runID string) *Server {
	return &Server{
		config:  cfg,
		tracker: tracker,
		runID:   runID,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	gin.SetMode(s.config.Server.Mode)

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware(s.runID))

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/live", s.healthCheck) // Kubernetes liveness probe
	s.router.GET("/ready", s.readinessCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.status)
		v1.GET("/version", s.version)
	}
}

// healthCheck handles GET /health - basic liveness check
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "evidential",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// readinessCheck handles GET /ready. The run is "ready" once the trainer has
// published anything beyond the idle state.
func (s *Server) readinessCheck(c *gin.Context) {
	snap := s.tracker.Snapshot()
	if snap.State == "idle" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"service":   "evidential",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"service":   "evidential",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// status handles GET /api/v1/status
func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

// version handles GET /api/v1/version
func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": GoVersion,
	})
}

// Start starts the server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextMiddleware stamps requests with the run id
func contextMiddleware(runID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), types.ContextKeyRunID, runID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
