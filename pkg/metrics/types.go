package metrics

import (
	"time"
)

// MetricsQuery 向入口节点查询某节点某应用负载的请求体
type MetricsQuery struct {
	Node string `json:"node"`
	App  string `json:"app"`
}

// InstanceMetrics 单个实例（pod）的性能指标
type InstanceMetrics struct {
	P50ResTime *float64 `json:"p50_res_time"` // p50响应时间 (ms)
	P95ResTime *float64 `json:"p95_res_time,omitempty"`
	Requests   int64    `json:"requests,omitempty"`
}

// MetricsResponse /metrics 接口的响应
//
// 字段使用指针以区分"缺失"与"零值"，缺失字段视为格式错误。
type MetricsResponse struct {
	PodNumber    *int                       `json:"pod_number"`
	PodInstances map[string]InstanceMetrics `json:"pod_instances"`
}

// ExecutionReport 边缘节点/云端执行卸载请求后的应答
type ExecutionReport struct {
	RequestID    string    `json:"request_id"`
	Node         string    `json:"node"`
	App          string    `json:"app"`
	Step         string    `json:"step"`
	RequestStart float64   `json:"request_start"`
	LatencyMs    float64   `json:"latency_ms"` // 从request_start到节点收到请求
	ReceivedAt   time.Time `json:"received_at"`
}
