package edgesim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	mt "github.com/yourusername/vehicle-offloader/pkg/metrics"
	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// Config 模拟器配置
type Config struct {
	Role      string             // 本节点角色，payload未指定node时使用
	Pods      map[string]int     // 角色 -> pod数量
	Latencies map[string]float64 // 角色 -> 基础p50 (ms)
	Jitter    float64            // 抖动幅度 (ms)
	Logger    *logrus.Logger
}

// Server 边缘集群模拟器
//
// 同一个echo实例同时提供 /metrics、/proxy 和云端的 /init、/run。
type Server struct {
	echo   *echo.Echo
	cfg    Config
	logger *logrus.Logger
	jitter func() float64

	mu       sync.Mutex
	requests map[string]int64 // 角色 -> 已处理请求数
	reports  []mt.ExecutionReport
	servers  []*http.Server
}

// NewServer 创建模拟器并注册路由
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		requests: make(map[string]int64),
	}
	s.jitter = func() float64 {
		if cfg.Jitter <= 0 {
			return 0
		}
		return (rand.Float64()*2 - 1) * cfg.Jitter
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.POST("/metrics", s.handleMetrics)
	e.POST("/proxy", s.handleExecute("proxy"))
	e.POST("/init", s.handleExecute("init"))
	e.POST("/run", s.handleExecute("run"))
	e.POST("/:app/init", s.handleExecute("init"))
	e.POST("/:app/run", s.handleExecute("run"))
	e.GET("/reports", s.handleReports)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	s.echo = e
	return s
}

// Handler 用于httptest或自定义监听
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start 在多个地址上监听，阻塞直到任一监听退出
func (s *Server) Start(addrs ...string) error {
	if len(addrs) == 0 {
		return errors.New("no listen address")
	}

	errCh := make(chan error, len(addrs))
	s.mu.Lock()
	for _, addr := range addrs {
		srv := &http.Server{Addr: addr, Handler: s.echo, ReadHeaderTimeout: 5 * time.Second}
		s.servers = append(s.servers, srv)
		go func() {
			s.logger.Infof("Edge node emulator listening on %s", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()
	}
	s.mu.Unlock()

	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 关闭所有监听
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// Reports 已收到的执行请求
func (s *Server) Reports() []mt.ExecutionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mt.ExecutionReport, len(s.reports))
	copy(out, s.reports)
	return out
}

func (s *Server) handleMetrics(c echo.Context) error {
	var q mt.MetricsQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if q.Node == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node is required")
	}

	pods, ok := s.cfg.Pods[q.Node]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown node %s", q.Node))
	}

	s.mu.Lock()
	served := s.requests[q.Node]
	s.mu.Unlock()

	base := s.cfg.Latencies[q.Node]
	instances := make(map[string]mt.InstanceMetrics, pods)
	for i := 0; i < pods; i++ {
		p50 := max(base+s.jitter(), 0)
		p95 := p50 * 1.5
		instances[fmt.Sprintf("%s-%s-%d", q.Node, q.App, i)] = mt.InstanceMetrics{
			P50ResTime: &p50,
			P95ResTime: &p95,
			Requests:   served / int64(pods),
		}
	}

	return c.JSON(http.StatusOK, mt.MetricsResponse{
		PodNumber:    &pods,
		PodInstances: instances,
	})
}

func (s *Server) handleExecute(step string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload models.OffloadPayload
		if err := c.Bind(&payload); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		node := payload.Node
		if node == "" {
			node = s.cfg.Role
		}
		app := payload.App
		if app == "" {
			app = c.Param("app")
		}

		now := time.Now()
		report := mt.ExecutionReport{
			RequestID:    payload.RequestID,
			Node:         node,
			App:          app,
			Step:         step,
			RequestStart: payload.RequestStart,
			ReceivedAt:   now,
		}
		if payload.RequestStart > 0 {
			report.LatencyMs = (models.UnixSeconds(now) - payload.RequestStart) * 1000
		}

		s.mu.Lock()
		s.requests[node]++
		s.reports = append(s.reports, report)
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"request_id": report.RequestID,
			"node":       node,
			"app":        app,
			"step":       step,
			"latency_ms": report.LatencyMs,
		}).Debug("Offload request received")

		return c.JSON(http.StatusOK, report)
	}
}

func (s *Server) handleReports(c echo.Context) error {
	reports := s.Reports()
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].ReceivedAt.Before(reports[j].ReceivedAt) })
	return c.JSON(http.StatusOK, reports)
}
