// Package http is the control plane SPEC_FULL.md names as the first real
// caller of the core pool: submit lines, poll ProcessInfo, read worker logs,
// and issue restart/end signals, all behind an admin session. None of
// internal/infrastructure/workerpool depends on this package — it is pure
// consumer, mirroring the teacher's own cmd/zmux-server/main.go wiring style
// (zap request logger, gin.Recovery first, CORS only in dev).
package http

import (
	"net/http"
	"time"

	"github.com/flowline/linepool/internal/api/http/middleware"
	"github.com/flowline/linepool/internal/infrastructure/workerpool"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	sessredis "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerConfig bundles the control plane's own knobs, distinct from
// env.PoolConfig which governs the pool itself.
type ServerConfig struct {
	Addr           string
	IsDev          bool
	SessionRedis   string // addr:port
	AdminUsername  string
	AdminPassword  string
	SessionSecret  []byte
	SubmitTimeout  time.Duration
	DefaultLogTail int
}

// Server wraps a Gin engine bound to one Pool.
type Server struct {
	log    *zap.Logger
	pool   *workerpool.Pool
	cfg    ServerConfig
	engine *gin.Engine
}

func NewServer(log *zap.Logger, pool *workerpool.Pool, cfg ServerConfig) (*Server, error) {
	log = log.Named("httpapi")

	store, err := sessredis.NewStoreWithDB(10, "tcp", cfg.SessionRedis, "", "", "0", cfg.SessionSecret)
	if err != nil {
		return nil, err
	}
	store.Options(sessions.Options{
		Path:     "/api",
		MaxAge:   4 * 3600,
		Secure:   !cfg.IsDev,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})

	r.Use(gin.Recovery())
	r.Use(secure.New(secure.Config{
		SSLRedirect:           false,
		STSSeconds:            31536000,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'",
	}))
	if cfg.IsDev {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(zapRequestLogger(log))
	r.Use(sessions.Sessions("sid", store))

	s := &Server{log: log, pool: pool, cfg: cfg, engine: r}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	r.POST("/api/login", s.handleLogin)
	r.POST("/api/logout", s.handleLogout)

	admin := r.Group("/api", middleware.RequireSession)
	admin.GET("/whoami", s.handleWhoAmI)
	admin.POST("/lines", s.handleSubmit)
	admin.POST("/lines/batch", s.handleSubmitBatch)
	admin.GET("/workers/:index", s.handleProcessInfo)
	admin.GET("/workers/:index/logs", s.handleLogs)
	admin.POST("/workers/:index/restart", s.handleRestart)
	admin.POST("/workers/:index/new", s.handleNewProcess)
	admin.POST("/workers/:index/end", s.handleEndProcess)
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	httpserver := &http.Server{
		Addr:           s.cfg.Addr,
		Handler:        s.engine,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(s.log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}
	s.log.Info("running HTTP control plane", zap.String("addr", s.cfg.Addr))
	if err := httpserver.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func zapRequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

