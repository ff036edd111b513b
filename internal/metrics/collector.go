package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/vehicle-offloader/internal/config"
	"github.com/yourusername/vehicle-offloader/internal/observability"
	"github.com/yourusername/vehicle-offloader/internal/transport"
	mt "github.com/yourusername/vehicle-offloader/pkg/metrics"
	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// ErrMalformedMetrics 节点返回的指标缺少必需字段或无法解析
var ErrMalformedMetrics = errors.New("malformed metrics response")

// EdgeMetricsSource 边缘节点指标数据源接口
type EdgeMetricsSource interface {
	// Collect 经由入口基站查询所有边缘节点，返回 角色 -> 平均延迟(ms)
	Collect(ctx context.Context, app string, entry models.BaseStation) (map[string]float64, error)
}

// Collector 通过入口节点代理采集集群内所有边缘节点的负载
type Collector struct {
	poster     transport.Poster
	topology   *config.Topology
	metricPort int
	nodeLoad   NodeLoadSource
	maxCPU     float64
	logger     *logrus.Logger
	metrics    *observability.Metrics
}

// CollectorConfig 采集器配置
type CollectorConfig struct {
	MetricPort      int
	MaxNodeCPUUsage float64        // 大于0时启用节点CPU过滤
	NodeLoad        NodeLoadSource // 可选
	Logger          *logrus.Logger
	Metrics         *observability.Metrics
}

// NewCollector 创建边缘指标采集器
func NewCollector(poster transport.Poster, topology *config.Topology, cfg CollectorConfig) *Collector {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if cfg.MetricPort == 0 {
		cfg.MetricPort = 8001
	}

	return &Collector{
		poster:     poster,
		topology:   topology,
		metricPort: cfg.MetricPort,
		nodeLoad:   cfg.NodeLoad,
		maxCPU:     cfg.MaxNodeCPUUsage,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

// Collect 采集所有边缘节点的平均延迟
//
// 调用失败或非200的节点被跳过，pod数量为0或没有任何实例样本的节点被跳过；响应格式错误直接返回错误。
func (c *Collector) Collect(ctx context.Context, app string, entry models.BaseStation) (map[string]float64, error) {
	url := fmt.Sprintf("http://%s:%d/metrics", entry.Address, c.metricPort)
	roles := c.topology.Roles()
	latencies := make(map[string]float64, len(roles))

	for _, role := range roles {
		if c.overloaded(ctx, role) {
			continue
		}

		sample, ok, err := c.query(ctx, url, role, app)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if sample.PodNumber > 0 && len(sample.P50) == 0 {
			c.logger.Warnf("Edge node %s reports %d pods but no instance samples for %s", role, sample.PodNumber, app)
			c.metrics.ObserveQueryFailure(role, "no_samples")
			continue
		}

		mean, usable := sample.MeanLatency()
		if !usable {
			c.logger.Debugf("Edge node %s has no active instances for %s", role, app)
			c.metrics.ObserveQueryFailure(role, "no_pods")
			continue
		}

		latencies[role] = mean
		c.metrics.ObserveEdgeLatency(role, mean)
	}

	c.logger.Debugf("Collected %d/%d edge latencies for %s via %s", len(latencies), len(roles), app, entry.Role)
	return latencies, nil
}

// query 查询单个节点，ok=false表示该节点应被跳过
func (c *Collector) query(ctx context.Context, url, role, app string) (models.EdgeMetricSample, bool, error) {
	body, err := json.Marshal(mt.MetricsQuery{Node: role, App: app})
	if err != nil {
		return models.EdgeMetricSample{}, false, fmt.Errorf("failed to marshal metrics query: %w", err)
	}

	status, data, err := c.poster.Post(ctx, url, body)
	if err != nil {
		c.logger.Warnf("Failed to query metrics of %s: %v", role, err)
		c.metrics.ObserveQueryFailure(role, "transport")
		return models.EdgeMetricSample{}, false, nil
	}
	if status != http.StatusOK {
		c.logger.Warnf("Metrics query of %s returned status %d", role, status)
		c.metrics.ObserveQueryFailure(role, "status")
		return models.EdgeMetricSample{}, false, nil
	}

	sample, err := decodeSample(role, data)
	if err != nil {
		return models.EdgeMetricSample{}, false, err
	}
	return sample, true, nil
}

// decodeSample 解析 {pod_number, pod_instances:{id:{p50_res_time}}}
func decodeSample(role string, data []byte) (models.EdgeMetricSample, error) {
	var resp mt.MetricsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.EdgeMetricSample{}, fmt.Errorf("%w: node %s: %v", ErrMalformedMetrics, role, err)
	}
	if resp.PodNumber == nil {
		return models.EdgeMetricSample{}, fmt.Errorf("%w: node %s: missing pod_number", ErrMalformedMetrics, role)
	}

	sample := models.EdgeMetricSample{PodNumber: *resp.PodNumber}
	if sample.PodNumber == 0 {
		return sample, nil
	}
	if resp.PodInstances == nil {
		return models.EdgeMetricSample{}, fmt.Errorf("%w: node %s: missing pod_instances", ErrMalformedMetrics, role)
	}

	for id, inst := range resp.PodInstances {
		if inst.P50ResTime == nil {
			return models.EdgeMetricSample{}, fmt.Errorf("%w: node %s: instance %s missing p50_res_time", ErrMalformedMetrics, role, id)
		}
		sample.P50 = append(sample.P50, *inst.P50ResTime)
	}
	return sample, nil
}

// overloaded 节点CPU使用率超过上限时返回true
func (c *Collector) overloaded(ctx context.Context, role string) bool {
	if c.nodeLoad == nil || c.maxCPU <= 0 {
		return false
	}

	usage, err := c.nodeLoad.CPUUsageRate(ctx, role)
	if err != nil {
		c.logger.Debugf("Node load of %s unavailable: %v", role, err)
		return false
	}
	if usage > c.maxCPU {
		c.logger.Infof("Skipping edge node %s: CPU usage %.1f%% above %.1f%%", role, usage, c.maxCPU)
		c.metrics.ObserveQueryFailure(role, "cpu")
		return true
	}
	return false
}
