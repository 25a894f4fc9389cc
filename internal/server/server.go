// Package server is the streamable HTTP transport: JSON-RPC over POST,
// server-sent events over GET and session teardown over DELETE.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/server/events"
	"github.com/ToughForge/EspoMCP/internal/session"
)

// Protocol headers.
const (
	HeaderSessionID = "Mcp-Session-Id"
	HeaderAPIKey    = "X-Api-Key"
)

// Mode selects how credentials and toolsets are bound to requests.
type Mode string

const (
	// ModeSession reads the credential on initialize and keeps the
	// toolset in the session table.
	ModeSession Mode = "session"

	// ModeStateless reads the credential on every POST and shares
	// toolsets per credential.
	ModeStateless Mode = "stateless"
)

// ServerName is reported in serverInfo.
const ServerName = "espo-mcp"

const maxBodyBytes = 4 << 20

// Config holds server configuration
type Config struct {
	Addr          string
	Mode          Mode
	DefaultAPIKey string
	KeepAlive     time.Duration
	CORSOrigins   []string
	Version       string
}

// Recorder receives one entry per tools/call.
type Recorder interface {
	Record(ctx context.Context, call audit.Call) error
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder enables the audit trail.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// Server represents the MCP HTTP endpoint
type Server struct {
	config      Config
	sessions    *session.Manager
	credentials *session.CredentialCache
	recorder    Recorder
	log         *zap.SugaredLogger
	engine      *gin.Engine

	mu  sync.Mutex
	srv *http.Server
}

// New creates a server. sessions serves ModeSession and credentials
// serves ModeStateless; the one not used by the mode may be nil.
func New(config Config, sessions *session.Manager, credentials *session.CredentialCache, opts ...Option) *Server {
	if config.Mode == "" {
		config.Mode = ModeSession
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = events.DefaultKeepAlive
	}
	if config.Version == "" {
		config.Version = "dev"
	}

	s := &Server{
		config:      config,
		sessions:    sessions,
		credentials: credentials,
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), corsMiddleware(s.config.CORSOrigins))

	r.GET("/health", s.handleHealth)

	mcp := r.Group("/mcp")
	{
		mcp.POST("", s.handlePost)
		mcp.GET("", s.handleStream)
		mcp.DELETE("", s.handleDelete)
	}
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the idle sweepers and serves until Stop is called or ctx
// ends.
func (s *Server) Start(ctx context.Context) error {
	if s.sessions != nil {
		go s.sessions.Run(ctx)
	}
	if s.credentials != nil {
		go s.credentials.Run(ctx)
	}

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: push streams stay open.
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.log.Warnw("shutdown failed", "error", err)
		}
	}()

	s.log.Infow("espo-mcp listening", "addr", s.config.Addr, "mode", s.config.Mode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("서버 시작 실패: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// corsMiddleware sets CORS headers for all requests and answers
// preflights.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, X-Api-Key")
		c.Header("Access-Control-Expose-Headers", HeaderSessionID)
		c.Header("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"session", c.GetHeader(HeaderSessionID),
			"elapsed", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	sessions, credentials := 0, 0
	if s.sessions != nil {
		sessions = s.sessions.Len()
	}
	if s.credentials != nil {
		credentials = s.credentials.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"mode":        s.config.Mode,
		"sessions":    sessions,
		"credentials": credentials,
	})
}
