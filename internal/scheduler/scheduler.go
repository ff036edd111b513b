package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/vehicle-offloader/internal/config"
	"github.com/yourusername/vehicle-offloader/internal/dispatch"
	"github.com/yourusername/vehicle-offloader/internal/metrics"
	"github.com/yourusername/vehicle-offloader/internal/observability"
	"github.com/yourusername/vehicle-offloader/internal/positioning"
	"github.com/yourusername/vehicle-offloader/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// 决策策略
const (
	PolicyNearest = "nearest"
	PolicyOptimal = "optimal"
)

var cloudSteps = []string{"/init", "/run"}

// Scheduler 单车任务卸载调度器
//
// 每次Offload对每种任务依次执行 排序 -> 覆盖检查 -> 指标采集 -> 路由决策，
// 最后把累积的请求交给Dispatcher并发发送。
type Scheduler struct {
	provider   positioning.Provider
	topology   *config.Topology
	apps       []models.AppTask
	collector  metrics.EdgeMetricsSource
	dispatcher *dispatch.Dispatcher

	policy         string
	timeLimit      float64
	strictCoverage float64
	looseCoverage  float64
	proxyPort      int
	interval       time.Duration
	vehicleID      string

	logger  *logrus.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Config 调度器配置
type Config struct {
	Policy         string  // nearest | optimal，默认optimal
	TimeLimit      float64 // 边缘延迟上限 (ms)
	StrictCoverage float64
	LooseCoverage  float64
	ProxyPort      int
	Interval       time.Duration
	VehicleID      string
	Logger         *logrus.Logger
	Metrics        *observability.Metrics
}

// Report 一次Offload调用的结果
type Report struct {
	Cycle     int               `json:"cycle"`
	Decisions []models.Decision `json:"decisions"`
	Dispatch  dispatch.Result   `json:"dispatch"`
}

// New 构造调度器
func New(provider positioning.Provider, topology *config.Topology, apps []models.AppTask,
	collector metrics.EdgeMetricsSource, dispatcher *dispatch.Dispatcher, cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyOptimal
	}
	if cfg.ProxyPort == 0 {
		cfg.ProxyPort = 8000
	}
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.VehicleID == "" {
		cfg.VehicleID = "ego"
	}

	return &Scheduler{
		provider:       provider,
		topology:       topology,
		apps:           append([]models.AppTask(nil), apps...),
		collector:      collector,
		dispatcher:     dispatcher,
		policy:         cfg.Policy,
		timeLimit:      cfg.TimeLimit,
		strictCoverage: cfg.StrictCoverage,
		looseCoverage:  cfg.LooseCoverage,
		proxyPort:      cfg.ProxyPort,
		interval:       cfg.Interval,
		vehicleID:      cfg.VehicleID,
		logger:         logger,
		metrics:        cfg.Metrics,
		now:            time.Now,
	}
}

// Offload 对所有任务类型做一次决策并分发请求
//
// 配置错误和格式错误的指标响应会在分发前中止本次调用。
func (s *Scheduler) Offload(ctx context.Context, vehicle models.Position) (*Report, error) {
	ctx, span := observability.StartSpan(ctx, "offload",
		attribute.String("vehicle.id", s.vehicleID),
		attribute.String("vehicle.position", vehicle.String()),
		attribute.String("policy", s.policy),
	)
	defer span.End()

	decisions, requests, err := s.Plan(ctx, vehicle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.dispatcher.Enqueue(requests...)
	result := s.dispatcher.Flush(ctx)
	span.SetAttributes(
		attribute.Int("dispatch.cycle", result.Cycle),
		attribute.Int("dispatch.calls", result.Calls),
		attribute.Int("dispatch.failures", result.Failures),
	)

	return &Report{Cycle: result.Cycle, Decisions: decisions, Dispatch: result}, nil
}

// Plan 对每种任务做路由决策，返回决策和待发送的请求
func (s *Scheduler) Plan(ctx context.Context, vehicle models.Position) ([]models.Decision, []models.OffloadRequest, error) {
	if err := vehicle.Validate(); err != nil {
		return nil, nil, fmt.Errorf("vehicle %s: %w", s.vehicleID, err)
	}

	decisions := make([]models.Decision, 0, len(s.apps))
	var requests []models.OffloadRequest
	for _, app := range s.apps {
		decision, req, err := s.evaluate(ctx, vehicle, app)
		if err != nil {
			return nil, nil, fmt.Errorf("app %s: %w", app.Name, err)
		}
		s.logDecision(decision)
		decisions = append(decisions, decision)
		if req != nil {
			requests = append(requests, *req)
		}
	}
	return decisions, requests, nil
}

// evaluate 单个任务的决策流程
func (s *Scheduler) evaluate(ctx context.Context, vehicle models.Position, app models.AppTask) (models.Decision, *models.OffloadRequest, error) {
	ctx, span := observability.StartSpan(ctx, "evaluate", attribute.String("app", app.Name))
	defer span.End()

	stations, err := s.provider.ListBaseStations(ctx)
	if err != nil {
		return models.Decision{}, nil, fmt.Errorf("list base stations: %w", err)
	}
	ranked, err := RankBaseStations(vehicle, stations)
	if err != nil {
		return models.Decision{}, nil, err
	}

	if s.policy == PolicyNearest {
		return s.decideNearest(app, ranked)
	}
	return s.decideOptimal(ctx, app, ranked)
}

// decideNearest 只看最近基站，不比较指标
func (s *Scheduler) decideNearest(app models.AppTask, ranked []models.RankedBaseStation) (models.Decision, *models.OffloadRequest, error) {
	cov := CheckCoverage(ranked, s.strictCoverage)
	if !cov.Covered {
		return s.decision(app, models.RouteLocal, "", "", cov.Nearest.Distance, 0, nil,
			fmt.Sprintf("no base station within %.1f, executing locally", s.strictCoverage)), nil, nil
	}

	entry, err := s.topology.Resolve(cov.Nearest.ID)
	if err != nil {
		return models.Decision{}, nil, err
	}
	d := s.decision(app, models.RouteNearest, entry.Role, entry.Role, cov.Nearest.Distance, 0, nil,
		fmt.Sprintf("nearest base station %s at %.1f", entry.ID, cov.Nearest.Distance))
	req := s.proxyRequest(app, models.RouteNearest, entry, entry.Role)
	return d, &req, nil
}

// decideOptimal 经由入口基站比较所有边缘节点的延迟
func (s *Scheduler) decideOptimal(ctx context.Context, app models.AppTask, ranked []models.RankedBaseStation) (models.Decision, *models.OffloadRequest, error) {
	cov := CheckCoverage(ranked, s.looseCoverage)
	if !cov.Covered {
		reason := "no base station known"
		if len(ranked) > 0 {
			reason = fmt.Sprintf("nearest base station %s at %.1f exceeds coverage %.1f",
				cov.Nearest.ID, cov.Nearest.Distance, s.looseCoverage)
		}
		req := s.cloudRequest(app)
		return s.decision(app, models.RouteCloud, "", "", cov.Nearest.Distance, 0, nil, reason), &req, nil
	}

	entry, err := s.topology.Resolve(cov.Nearest.ID)
	if err != nil {
		return models.Decision{}, nil, err
	}

	latencies, err := s.collector.Collect(ctx, app.Name, entry)
	if err != nil {
		return models.Decision{}, nil, err
	}

	target, latency, ok := SelectOptimal(latencies)
	if !ok {
		req := s.cloudRequest(app)
		return s.decision(app, models.RouteCloud, entry.Role, "", cov.Nearest.Distance, 0, latencies,
			"no viable edge node"), &req, nil
	}
	if latency > s.timeLimit {
		req := s.cloudRequest(app)
		return s.decision(app, models.RouteCloud, entry.Role, target, cov.Nearest.Distance, latency, latencies,
			fmt.Sprintf("best edge latency %.2fms exceeds limit %.2fms", latency, s.timeLimit)), &req, nil
	}

	d := s.decision(app, models.RouteOptimal, entry.Role, target, cov.Nearest.Distance, latency, latencies,
		fmt.Sprintf("optimal node %s (%.2fms) via entry %s", target, latency, entry.Role))
	req := s.proxyRequest(app, models.RouteOptimal, entry, target)
	return d, &req, nil
}

func (s *Scheduler) decision(app models.AppTask, route models.RouteKind, entry, target string,
	distance, latency float64, latencies map[string]float64, reason string) models.Decision {
	return models.Decision{
		App:       app.Name,
		Route:     route,
		Entry:     entry,
		Target:    target,
		Distance:  distance,
		Latency:   latency,
		Latencies: latencies,
		Reason:    reason,
		Timestamp: s.now(),
	}
}

// proxyRequest 发往入口基站代理的请求，target是实际执行任务的节点
func (s *Scheduler) proxyRequest(app models.AppTask, route models.RouteKind, entry models.BaseStation, target string) models.OffloadRequest {
	id := uuid.NewString()
	return models.OffloadRequest{
		ID:           id,
		App:          app.Name,
		Route:        route,
		Entry:        entry.Role,
		EntryAddress: entry.Address,
		Target:       target,
		URL:          fmt.Sprintf("http://%s:%d/proxy", entry.Address, s.proxyPort),
		Payload: models.OffloadPayload{
			Node:         target,
			App:          app.Name,
			RequestStart: models.UnixSeconds(s.now()),
			RequestID:    id,
		},
	}
}

// cloudRequest 云端回退，依次调用 /init 和 /run
func (s *Scheduler) cloudRequest(app models.AppTask) models.OffloadRequest {
	id := uuid.NewString()
	return models.OffloadRequest{
		ID:    id,
		App:   app.Name,
		Route: models.RouteCloud,
		URL:   app.CloudURL,
		Steps: cloudSteps,
		Payload: models.OffloadPayload{
			App:          app.Name,
			RequestStart: models.UnixSeconds(s.now()),
			RequestID:    id,
		},
	}
}

func (s *Scheduler) logDecision(d models.Decision) {
	s.metrics.ObserveDecision(d.App, string(d.Route))
	s.logger.WithFields(logrus.Fields{
		"vehicle":   s.vehicleID,
		"app":       d.App,
		"route":     d.Route,
		"entry":     d.Entry,
		"target":    d.Target,
		"distance":  d.Distance,
		"latency":   d.Latency,
		"latencies": d.Latencies,
	}).Info(d.Reason)
}
