package http_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/onyx"
	"github.com/onyxos/onyxsync/internal/webhook"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
	// maxWebhookBody bounds the webhook payload read into memory
	maxWebhookBody = 1 << 20
)

// JobRunner runs named background jobs.
type JobRunner interface {
	RunJob(ctx context.Context, name string) (*onyx.JobResult, error)
}

// WebhookHandler verifies and applies a webhook delivery.
type WebhookHandler interface {
	Handle(ctx context.Context, body []byte, signature string) (*webhook.Outcome, error)
}

// Connector runs the interactive OAuth connect.
type Connector interface {
	Begin(ctx context.Context, agencyID string) (string, error)
	Complete(ctx context.Context, state, code string) (*models.Creator, error)
}

// Deps are the services exposed over HTTP. Nil services leave their routes
// unregistered.
type Deps struct {
	Jobs       JobRunner
	Webhooks   WebhookHandler
	Connector  Connector
	CronSecret string
	// ConnectedRedirect, when set, receives the browser after a successful
	// connect instead of a JSON response.
	ConnectedRedirect string
}

// HTTPServer serves the cron, webhook and OAuth endpoints
type HTTPServer struct {
	logger *logger.Logger

	router *gin.Engine
	port   int

	server *http.Server

	deps Deps
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+webhook.SignatureHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(deps Deps, port int, logger *logger.Logger) *HTTPServer {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), corsMiddleware())

	server := &HTTPServer{
		router: router,
		port:   port,
		deps:   deps,
		logger: logger,
	}

	server.routes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() {
	addr := fmt.Sprintf("0.0.0.0:%v", s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Fatal("Failed to start the HTTP server", "error", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}

// requestLogger logs one line per request through the service logger.
func requestLogger(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started).Round(time.Millisecond),
		)
	}
}

var _ models.APIServer = (*HTTPServer)(nil)
