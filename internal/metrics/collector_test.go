package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/vehicle-offloader/internal/config"
	"github.com/yourusername/vehicle-offloader/internal/observability"
	mt "github.com/yourusername/vehicle-offloader/pkg/metrics"
	"github.com/yourusername/vehicle-offloader/pkg/models"
)

type reply struct {
	status int
	body   string
	err    error
}

// fakePoster 按查询的node返回预设响应
type fakePoster struct {
	mu      sync.Mutex
	replies map[string]reply
	urls    []string
	queries []mt.MetricsQuery
}

func (f *fakePoster) Post(_ context.Context, url string, body []byte) (int, []byte, error) {
	var q mt.MetricsQuery
	if err := json.Unmarshal(body, &q); err != nil {
		return 0, nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.queries = append(f.queries, q)

	r, ok := f.replies[q.Node]
	if !ok {
		return http.StatusNotFound, nil, nil
	}
	return r.status, []byte(r.body), r.err
}

type stubNodeLoad map[string]float64

func (s stubNodeLoad) CPUUsageRate(_ context.Context, role string) (float64, error) {
	v, ok := s[role]
	if !ok {
		return 0, ErrNodeNotFound
	}
	return v, nil
}

func testTopology() *config.Topology {
	return config.NewTopology(
		map[string]string{"1": "edge1", "2": "edge2", "3": "edge3"},
		map[string]string{"edge1": "10.0.0.1", "edge2": "10.0.0.2", "edge3": "10.0.0.3"},
	)
}

var entry = models.BaseStation{ID: "1", Role: "edge1", Address: "10.0.0.1"}

func TestCollectorAggregatesMeanLatency(t *testing.T) {
	poster := &fakePoster{replies: map[string]reply{
		"edge1": {status: 200, body: `{"pod_number":3,"pod_instances":{"a":{"p50_res_time":10},"b":{"p50_res_time":20},"c":{"p50_res_time":30}}}`},
		"edge2": {status: 200, body: `{"pod_number":1,"pod_instances":{"a":{"p50_res_time":3,"p95_res_time":9}}}`},
		"edge3": {status: 200, body: `{"pod_number":0,"pod_instances":{}}`},
	}}
	c := NewCollector(poster, testTopology(), CollectorConfig{MetricPort: 9001})

	latencies, err := c.Collect(context.Background(), "mobilenet", entry)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"edge1": 20, "edge2": 3}, latencies)

	// 所有查询都经由入口节点
	require.Len(t, poster.urls, 3)
	for _, url := range poster.urls {
		assert.Equal(t, "http://10.0.0.1:9001/metrics", url)
	}
	assert.Equal(t, mt.MetricsQuery{Node: "edge1", App: "mobilenet"}, poster.queries[0])
}

func TestCollectorSkipsFailedNodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	poster := &fakePoster{replies: map[string]reply{
		"edge1": {status: 503, body: `{}`},
		"edge2": {err: errors.New("connection refused")},
		"edge3": {status: 200, body: `{"pod_number":2,"pod_instances":{"a":{"p50_res_time":4},"b":{"p50_res_time":6}}}`},
	}}
	c := NewCollector(poster, testTopology(), CollectorConfig{Metrics: m})

	latencies, err := c.Collect(context.Background(), "yolo", entry)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"edge3": 5}, latencies)
	count, err := testutil.GatherAndCount(reg, "offloader_metrics_query_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCollectorNoViableNode(t *testing.T) {
	poster := &fakePoster{replies: map[string]reply{
		"edge1": {status: 200, body: `{"pod_number":0}`},
	}}
	c := NewCollector(poster, testTopology(), CollectorConfig{})

	latencies, err := c.Collect(context.Background(), "mobilenet", entry)
	require.NoError(t, err)
	assert.Empty(t, latencies)
}

func TestCollectorSkipsNodeWithoutSamples(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	poster := &fakePoster{replies: map[string]reply{
		"edge1": {status: 200, body: `{"pod_number":2,"pod_instances":{}}`},
		"edge2": {status: 200, body: `{"pod_number":1,"pod_instances":{"a":{"p50_res_time":3}}}`},
	}}
	c := NewCollector(poster, testTopology(), CollectorConfig{Metrics: m})

	latencies, err := c.Collect(context.Background(), "mobilenet", entry)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"edge2": 3}, latencies)
	assert.NotContains(t, latencies, "edge1")

	// edge1无样本，edge3无响应(404)
	count, err := testutil.GatherAndCount(reg, "offloader_metrics_query_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCollectorMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"invalid json":      `{"pod_number":`,
		"missing pods":      `{"pod_instances":{}}`,
		"missing instances": `{"pod_number":2}`,
		"missing p50":       `{"pod_number":1,"pod_instances":{"a":{"p95_res_time":3}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			poster := &fakePoster{replies: map[string]reply{
				"edge2": {status: 200, body: body},
			}}
			c := NewCollector(poster, testTopology(), CollectorConfig{})

			_, err := c.Collect(context.Background(), "mobilenet", entry)
			assert.ErrorIs(t, err, ErrMalformedMetrics)
			assert.ErrorContains(t, err, "edge2")
		})
	}
}

func TestCollectorNodeLoadGate(t *testing.T) {
	poster := &fakePoster{replies: map[string]reply{
		"edge1": {status: 200, body: `{"pod_number":1,"pod_instances":{"a":{"p50_res_time":1}}}`},
		"edge2": {status: 200, body: `{"pod_number":1,"pod_instances":{"a":{"p50_res_time":2}}}`},
		"edge3": {status: 200, body: `{"pod_number":1,"pod_instances":{"a":{"p50_res_time":3}}}`},
	}}
	c := NewCollector(poster, testTopology(), CollectorConfig{
		MaxNodeCPUUsage: 80,
		NodeLoad:        stubNodeLoad{"edge1": 95, "edge2": 40},
	})

	latencies, err := c.Collect(context.Background(), "mobilenet", entry)
	require.NoError(t, err)
	// edge1超载被跳过；edge3无负载数据时不过滤
	assert.Equal(t, map[string]float64{"edge2": 2, "edge3": 3}, latencies)
	assert.Len(t, poster.urls, 2)
}
