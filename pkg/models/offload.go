package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidPosition 坐标非法（NaN/Inf）
var ErrInvalidPosition = errors.New("invalid position")

// Position 世界坐标系中的三维位置
type Position struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	Z float64 `json:"z" mapstructure:"z"`
}

// Validate 检查坐标是否为有限值
func (p Position) Validate() error {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: (%v, %v, %v)", ErrInvalidPosition, p.X, p.Y, p.Z)
		}
	}
	return nil
}

// Distance 计算到另一位置的欧氏距离
func (p Position) Distance(other Position) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := other.Validate(); err != nil {
		return 0, err
	}
	return floats.Distance(p.vector(), other.vector(), 2), nil
}

func (p Position) vector() []float64 {
	return []float64{p.X, p.Y, p.Z}
}

func (p Position) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// BaseStation 基站（边缘节点）
type BaseStation struct {
	ID      string `json:"id"`
	Role    string `json:"role"`    // 逻辑名称，如 edge1
	Address string `json:"address"` // 主机名或IP
}

// BaseStationPosition 定位服务返回的基站位置
type BaseStationPosition struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// RankedBaseStation 按距离排序后的基站
type RankedBaseStation struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// AppTask 任务类型及其云端回退地址
type AppTask struct {
	Name     string `json:"name"`
	CloudURL string `json:"cloud_url"`
}

// EdgeMetricSample 单个边缘节点上报的负载
type EdgeMetricSample struct {
	PodNumber int       `json:"pod_number"`
	P50       []float64 `json:"p50"` // 每个实例的p50响应时间 (ms)
}

// MeanLatency 平均实例延迟 = sum(p50) / pod数量，pod数量为0时不可用
func (s EdgeMetricSample) MeanLatency() (float64, bool) {
	if s.PodNumber <= 0 {
		return 0, false
	}
	return floats.Sum(s.P50) / float64(s.PodNumber), true
}

// RouteKind 路由结果类型
type RouteKind string

const (
	RouteLocal   RouteKind = "local"
	RouteNearest RouteKind = "nearest"
	RouteOptimal RouteKind = "optimal"
	RouteCloud   RouteKind = "cloud"
)

// OffloadPayload 卸载请求体
type OffloadPayload struct {
	Node         string  `json:"node,omitempty"`
	App          string  `json:"app"`
	RequestStart float64 `json:"request_start"`
	RequestID    string  `json:"request_id"`
}

// OffloadRequest 一次卸载请求
//
// Entry 是请求进入的基站（代理入口），Target 是最终执行任务的节点，两者可以不同。
type OffloadRequest struct {
	ID           string         `json:"id"`
	App          string         `json:"app"`
	Route        RouteKind      `json:"route"`
	Entry        string         `json:"entry,omitempty"`
	EntryAddress string         `json:"entry_address,omitempty"`
	Target       string         `json:"target,omitempty"`
	URL          string         `json:"url"`
	Steps        []string       `json:"steps,omitempty"` // 依次调用的子路径，如 /init, /run
	Payload      OffloadPayload `json:"payload"`
}

// Calls 按顺序展开需要POST的URL
func (r OffloadRequest) Calls() []string {
	if len(r.Steps) == 0 {
		return []string{r.URL}
	}
	base := strings.TrimRight(r.URL, "/")
	urls := make([]string, 0, len(r.Steps))
	for _, step := range r.Steps {
		urls = append(urls, base+"/"+strings.TrimLeft(step, "/"))
	}
	return urls
}

// Decision 单个任务的路由决策及理由
type Decision struct {
	App       string             `json:"app"`
	Route     RouteKind          `json:"route"`
	Entry     string             `json:"entry,omitempty"`
	Target    string             `json:"target,omitempty"`
	Distance  float64            `json:"distance,omitempty"`
	Latency   float64            `json:"latency,omitempty"`
	Latencies map[string]float64 `json:"latencies,omitempty"`
	Reason    string             `json:"reason"`
	Timestamp time.Time          `json:"timestamp"`
}

// UnixSeconds 转换为带小数的Unix秒
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
