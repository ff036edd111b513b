package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// recordingPoster 记录调用并统计最大并发数
type recordingPoster struct {
	delay    time.Duration
	failURLs map[string]int // url -> status；0表示返回传输错误

	mu       sync.Mutex
	urls     []string
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (p *recordingPoster) Post(_ context.Context, url string, _ []byte) (int, []byte, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.maxSeen.Load()
		if n <= old || p.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}

	p.mu.Lock()
	p.urls = append(p.urls, url)
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if status, ok := p.failURLs[url]; ok {
		if status == 0 {
			return 0, nil, errors.New("connection reset")
		}
		return status, nil, nil
	}
	return 200, []byte(`{}`), nil
}

func (p *recordingPoster) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.urls))
	copy(out, p.urls)
	return out
}

func proxyRequests(n int) []models.OffloadRequest {
	reqs := make([]models.OffloadRequest, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, models.OffloadRequest{
			ID:    fmt.Sprintf("req-%d", i),
			App:   "mobilenet",
			Route: models.RouteOptimal,
			URL:   fmt.Sprintf("http://10.0.0.%d:8000/proxy", i+1),
		})
	}
	return reqs
}

func TestFlushReplaysByCycle(t *testing.T) {
	poster := &recordingPoster{}
	d := New(poster, Config{Workers: 8, MaxReplay: 0})
	reqs := proxyRequests(3)

	total := 0
	for cycle := 1; cycle <= 3; cycle++ {
		d.Enqueue(reqs...)
		res := d.Flush(context.Background())
		assert.Equal(t, cycle, res.Cycle)
		assert.Equal(t, cycle, res.Passes)
		assert.Equal(t, len(reqs)*cycle, res.Calls)
		assert.Zero(t, res.Failures)
		total += len(reqs) * cycle
	}

	assert.Len(t, poster.calls(), total)
	assert.Equal(t, 4, d.Cycle())
	assert.Zero(t, d.Pending())
}

// payloadPoster 按顺序记录请求体
type payloadPoster struct {
	mu       sync.Mutex
	payloads []models.OffloadPayload
}

func (p *payloadPoster) Post(_ context.Context, _ string, body []byte) (int, []byte, error) {
	var payload models.OffloadPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, nil, err
	}
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
	return 200, nil, nil
}

func TestFlushRestampsReplayedPasses(t *testing.T) {
	poster := &payloadPoster{}
	d := New(poster, Config{Workers: 1, MaxReplay: 3})
	clock := time.Unix(1000, 0)
	d.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	req := proxyRequests(1)[0]
	req.Payload = models.OffloadPayload{Node: "edge2", App: "mobilenet", RequestStart: 500, RequestID: req.ID}

	d.Enqueue(req)
	d.Flush(context.Background())
	d.Enqueue(req)
	res := d.Flush(context.Background())
	require.Equal(t, 2, res.Passes)

	require.Len(t, poster.payloads, 3)
	// 首轮保留决策时的时间戳
	assert.Equal(t, 500.0, poster.payloads[0].RequestStart)
	assert.Equal(t, 500.0, poster.payloads[1].RequestStart)
	assert.Equal(t, 1001.0, poster.payloads[2].RequestStart)
	for _, payload := range poster.payloads {
		assert.Equal(t, req.ID, payload.RequestID)
		assert.Equal(t, "edge2", payload.Node)
	}
}

func TestFlushRespectsReplayCap(t *testing.T) {
	poster := &recordingPoster{}
	d := New(poster, Config{Workers: 2, MaxReplay: 2})
	reqs := proxyRequests(2)

	var passes []int
	for i := 0; i < 4; i++ {
		d.Enqueue(reqs...)
		passes = append(passes, d.Flush(context.Background()).Passes)
	}
	assert.Equal(t, []int{1, 2, 2, 2}, passes)
	assert.Len(t, poster.calls(), 2*(1+2+2+2))
}

func TestFlushBoundsConcurrency(t *testing.T) {
	poster := &recordingPoster{delay: 20 * time.Millisecond}
	d := New(poster, Config{Workers: 3, MaxReplay: 1})

	d.Enqueue(proxyRequests(12)...)
	res := d.Flush(context.Background())

	assert.Equal(t, 12, res.Calls)
	assert.LessOrEqual(t, poster.maxSeen.Load(), int64(3))
	assert.GreaterOrEqual(t, poster.maxSeen.Load(), int64(1))
}

func TestFlushFailuresDoNotAbortSiblings(t *testing.T) {
	reqs := proxyRequests(4)
	poster := &recordingPoster{failURLs: map[string]int{
		reqs[0].URL: 0,
		reqs[2].URL: 503,
	}}
	d := New(poster, Config{Workers: 2, MaxReplay: 1})

	d.Enqueue(reqs...)
	res := d.Flush(context.Background())

	assert.Equal(t, 4, res.Calls)
	assert.Equal(t, 2, res.Failures)
	assert.ElementsMatch(t, []string{reqs[0].URL, reqs[1].URL, reqs[2].URL, reqs[3].URL}, poster.calls())
}

func TestFlushCloudSteps(t *testing.T) {
	cloud := models.OffloadRequest{
		ID:    "cloud-1",
		App:   "mobilenet",
		Route: models.RouteCloud,
		URL:   "http://cloud.example/mobilenet",
		Steps: []string{"/init", "/run"},
	}

	poster := &recordingPoster{}
	d := New(poster, Config{Workers: 4, MaxReplay: 1})
	d.Enqueue(cloud)
	res := d.Flush(context.Background())
	require.Equal(t, 2, res.Calls)
	assert.Equal(t, []string{"http://cloud.example/mobilenet/init", "http://cloud.example/mobilenet/run"}, poster.calls())

	failing := &recordingPoster{failURLs: map[string]int{"http://cloud.example/mobilenet/init": 500}}
	d = New(failing, Config{Workers: 4, MaxReplay: 1})
	d.Enqueue(cloud)
	res = d.Flush(context.Background())
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, 1, res.Failures)
	for _, url := range failing.calls() {
		assert.False(t, strings.HasSuffix(url, "/run"))
	}
}

func TestFlushEmptyBatchAdvancesCycle(t *testing.T) {
	poster := &recordingPoster{}
	d := New(poster, Config{})

	res := d.Flush(context.Background())
	assert.Equal(t, 1, res.Cycle)
	assert.Zero(t, res.Calls)
	assert.Equal(t, 2, d.Cycle())
	assert.Empty(t, poster.calls())
}
