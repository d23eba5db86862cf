package statushttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartbot/internal/brain"
	"smartbot/internal/engine"
	"smartbot/internal/logger"
	"smartbot/internal/risk"
	"smartbot/internal/store"
)

// Server 提供只读的状态查询接口与 /metrics。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述状态服务依赖。Risk、Brain 与 Cycles 必填。
type ServerConfig struct {
	Addr    string
	Risk    *risk.Manager
	Brain   *brain.Brain
	Cycles  CycleSource
	Journal store.Journal
	Metrics http.Handler
}

// CycleSource exposes the last completed cycle report.
type CycleSource interface {
	LastCycle() (engine.CycleResult, bool)
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Risk == nil || cfg.Brain == nil || cfg.Cycles == nil {
		return nil, errors.New("status http server requires risk, brain and cycle source")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	r := &Router{risk: cfg.Risk, brain: cfg.Brain, cycles: cfg.Cycles, journal: cfg.Journal}
	r.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler is the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// requestLogger 记录每次接口调用。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("状态服务监听 %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
