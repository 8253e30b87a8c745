package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/banprobe-project/banprobe/internal/checker"
	"github.com/banprobe-project/banprobe/internal/config"
	"github.com/banprobe-project/banprobe/internal/db"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/util"
)

// Checker runs one ban check for an access token.
type Checker interface {
	Check(ctx context.Context, accessToken string) (*checker.Result, error)
}

// HistoryReader serves stored results.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]db.HistoryEntry, error)
	ForAccount(ctx context.Context, mcUUID string, limit int) ([]db.HistoryEntry, error)
	Latest(ctx context.Context, mcUUID string) (*db.HistoryEntry, error)
	CountByStatus(ctx context.Context) ([]db.StatusCount, error)
}

// Deps are the components the API serves. History is nil when history is
// disabled.
type Deps struct {
	Checker Checker
	History HistoryReader
	Version string
}

// Server is the local REST API.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	deps     Deps

	checks      *semaphore.Weighted
	streams     *eventHub
	streamsOnce sync.Once
	started time.Time

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the API server and builds its router.
func NewServer(cfg *config.Config, eventBus *events.EventBus, deps Deps) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	maxChecks := cfg.GetAPI().MaxConcurrent
	if maxChecks < 1 {
		maxChecks = 1
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		deps:     deps,
		checks:   semaphore.NewWeighted(int64(maxChecks)),
		streams:  newEventHub(eventBus, cfg.GetAPI().AllowedOrigins),
		started:  time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on api.host:api.port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetAPI()
	addr := apiCfg.Addr()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Checks can take the dial timeout plus the probe wait.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if apiCfg.TLSEnabled {
		if err := util.EnsureSelfSignedCert(apiCfg.TLSCertFile, apiCfg.TLSKeyFile); err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		cert, err := tls.LoadX509KeyPair(apiCfg.TLSCertFile, apiCfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	lc := reuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	if apiCfg.TLSEnabled {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}

	log.Info().Str("addr", addr).Bool("tls", apiCfg.TLSEnabled).Msg("REST API server starting")
	return s.serve(ctx, ln)
}

// serve runs the HTTP server on ln until ctx is cancelled or serving fails.
// The event hub stays up until ctx is cancelled so a failed serve can be
// retried.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.streamsOnce.Do(func() {
		go func() {
			<-ctx.Done()
			s.streams.stop()
		}()
	})

	srv := s.httpServer
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetAPI()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(apiCfg.RateLimitRPS, apiCfg.RateLimitBurst)
	router.Use(rateLimiter.Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/system", s.handleGetSystem)
	}

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/check", s.handleCheck)
		apiGroup.GET("/events", s.handleEvents)

		apiGroup.GET("/history", s.handleListHistory)
		apiGroup.GET("/history/stats", s.handleHistoryStats)
		apiGroup.GET("/history/:uuid", s.handleAccountHistory)
		apiGroup.GET("/history/:uuid/latest", s.handleLatestResult)

		apiGroup.GET("/logs", s.handleGetLogEntries)

		apiGroup.GET("/config", s.handleGetConfig)
		apiGroup.PATCH("/config", s.handleUpdateConfig)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "banprobe API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.streams.stop()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
