package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 卸载调度器的Prometheus指标
//
// 所有方法允许nil接收者，未启用指标时直接跳过。
type Metrics struct {
	decisions      *prometheus.CounterVec
	dispatchCalls  *prometheus.CounterVec
	queryFailures  *prometheus.CounterVec
	edgeLatency    *prometheus.GaugeVec
	dispatchCycle  prometheus.Gauge
	dispatchPasses prometheus.Counter
}

// NewMetrics 在给定registry上注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offloader_decisions_total",
			Help: "Routing decisions by app and route.",
		}, []string{"app", "route"}),
		dispatchCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offloader_dispatch_calls_total",
			Help: "POST calls issued by the dispatcher by outcome.",
		}, []string{"outcome"}),
		queryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offloader_metrics_query_failures_total",
			Help: "Edge metrics queries excluded from aggregation.",
		}, []string{"node", "reason"}),
		edgeLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "offloader_edge_latency_ms",
			Help: "Last observed mean instance latency per edge node.",
		}, []string{"node"}),
		dispatchCycle: factory.NewGauge(prometheus.GaugeOpts{
			Name: "offloader_dispatch_cycle",
			Help: "Current dispatch cycle counter.",
		}),
		dispatchPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "offloader_dispatch_passes_total",
			Help: "Replay passes executed by the dispatcher.",
		}),
	}
}

// ObserveDecision 记录一次路由决策
func (m *Metrics) ObserveDecision(app, route string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(app, route).Inc()
}

// ObserveCall 记录一次分发调用结果（success/failure）
func (m *Metrics) ObserveCall(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.dispatchCalls.WithLabelValues(outcome).Inc()
}

// ObserveQueryFailure 记录被排除的指标查询
func (m *Metrics) ObserveQueryFailure(node, reason string) {
	if m == nil {
		return
	}
	m.queryFailures.WithLabelValues(node, reason).Inc()
}

// ObserveEdgeLatency 记录节点平均延迟
func (m *Metrics) ObserveEdgeLatency(node string, latency float64) {
	if m == nil {
		return
	}
	m.edgeLatency.WithLabelValues(node).Set(latency)
}

// ObserveCycle 记录分发周期及执行的重放次数
func (m *Metrics) ObserveCycle(cycle, passes int) {
	if m == nil {
		return
	}
	m.dispatchCycle.Set(float64(cycle))
	m.dispatchPasses.Add(float64(passes))
}
