// Package api serves the operator HTTP surface: health, metrics, the last
// pass report and the notified sets, plus a JWT-guarded admin route.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stake-plus/dao-monitor/src/config"
	"github.com/stake-plus/dao-monitor/src/logging"
	"github.com/stake-plus/dao-monitor/src/metrics"
	"github.com/stake-plus/dao-monitor/src/services/core"
	"github.com/stake-plus/dao-monitor/src/store"
	"go.uber.org/zap"
)

const (
	adminRate   = 30
	adminWindow = time.Minute
)

// Server is the operator API module.
type Server struct {
	cfg     config.APIConfig
	router  *gin.Engine
	logger  *zap.Logger
	mu      sync.Mutex
	httpSrv *http.Server
	done    chan struct{}

	boundAddr string
}

var _ core.Module = (*Server)(nil)

// New builds the router. m may be nil, in which case /metrics is not served.
func New(cfg config.APIConfig, st store.Store, status StatusSource, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logging.Component(logger, "api")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	}

	h := handlers{store: st, status: status, started: time.Now().UTC(), logger: logger}
	r.GET("/healthz", h.health)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/status", h.lastReport)
		v1.GET("/notified/:category", h.listNotified)
	}

	admin := v1.Group("/admin")
	admin.Use(JWTMiddleware([]byte(cfg.JWTSecret)), RateLimitMiddleware(NewRateLimiter(adminRate, adminWindow)))
	{
		admin.POST("/notified/:category/:voteId", h.markNotified)
	}

	return &Server{cfg: cfg, router: r, logger: logger}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Name() string { return "api" }

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return errors.New("api: already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	s.httpSrv, s.done = srv, done
	s.boundAddr = ln.Addr().String()
	s.logger.Info("api listening", zap.String("addr", s.boundAddr))
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, done := s.httpSrv, s.done
	s.httpSrv, s.done = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("api shutdown", zap.Error(err))
		_ = srv.Close()
	}
	<-done
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
