// Package server exposes a chat session over a local JSON API with a
// server-sent event stream of feed events.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/coinchat/internal/chat"
	"go.uber.org/zap"
)

// DefaultHeartbeat is the SSE heartbeat interval.
const DefaultHeartbeat = 15 * time.Second

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Session   *chat.Session
	Port      int
	Out       io.Writer
	Logger    *zap.Logger
	Heartbeat time.Duration
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Session == nil {
		return fmt.Errorf("server: session is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Coinchat API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine serving opts.Session.
func NewRouter(opts StartOpts) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	registerRoutes(router, &handlers{s: opts.Session, log: log, heartbeat: heartbeat})
	return router
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
