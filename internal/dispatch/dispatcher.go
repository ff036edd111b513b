package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-collections/collections/queue"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/yourusername/vehicle-offloader/internal/observability"
	"github.com/yourusername/vehicle-offloader/internal/transport"
	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// Dispatcher 将累积的卸载请求交给固定宽度的worker池并发发送
//
// 每次Flush按当前周期计数重放整批请求（受MaxReplay限制），之后计数加一。
// 重放的是同一批请求：request_id保持不变，用于关联同一请求的多次发送；
// 第2轮起request_start按本轮开始时间重新填写。
type Dispatcher struct {
	poster    transport.Poster
	workers   int
	maxReplay int
	logger    *logrus.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	pending *queue.Queue
	cycle   int
}

// Config 分发器配置
type Config struct {
	Workers   int // 默认4
	MaxReplay int // 0表示不限制
	Logger    *logrus.Logger
	Metrics   *observability.Metrics
}

// Result 一次Flush的统计
type Result struct {
	Cycle    int `json:"cycle"`
	Passes   int `json:"passes"`
	Requests int `json:"requests"`
	Calls    int `json:"calls"`
	Failures int `json:"failures"`
}

// New 创建分发器，周期计数从1开始
func New(poster transport.Poster, cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxReplay == 0 {
		logger.Warn("Dispatch replay is uncapped: request volume grows with every offload invocation")
	}

	return &Dispatcher{
		poster:    poster,
		workers:   cfg.Workers,
		maxReplay: cfg.MaxReplay,
		logger:    logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
		pending:   queue.New(),
		cycle:     1,
	}
}

// Enqueue 累积待发送的请求
func (d *Dispatcher) Enqueue(reqs ...models.OffloadRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, req := range reqs {
		d.pending.Enqueue(req)
	}
}

// Pending 待发送请求数量
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Len()
}

// Cycle 当前周期计数
func (d *Dispatcher) Cycle() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cycle
}

// Passes 当前周期需要执行的重放次数
func (d *Dispatcher) Passes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passesLocked()
}

func (d *Dispatcher) passesLocked() int {
	if d.maxReplay > 0 && d.cycle > d.maxReplay {
		return d.maxReplay
	}
	return d.cycle
}

// Flush 取出所有待发送请求并执行，阻塞直到所有重放完成
func (d *Dispatcher) Flush(ctx context.Context) Result {
	d.mu.Lock()
	batch := make([]models.OffloadRequest, 0, d.pending.Len())
	for d.pending.Len() > 0 {
		batch = append(batch, d.pending.Dequeue().(models.OffloadRequest))
	}
	cycle := d.cycle
	passes := d.passesLocked()
	d.cycle++
	d.mu.Unlock()

	result := Result{Cycle: cycle, Passes: passes, Requests: len(batch)}
	if len(batch) > 0 {
		for pass := 1; pass <= passes; pass++ {
			calls, failures := d.runPass(ctx, d.stamp(batch, pass))
			result.Calls += calls
			result.Failures += failures
			d.logger.Debugf("Dispatch cycle %d pass %d/%d: %d calls, %d failures", cycle, pass, passes, calls, failures)
		}
	}

	d.metrics.ObserveCycle(cycle+1, passes)
	d.logger.Infof("Dispatch cycle %d finished: %d requests x %d passes, %d calls, %d failures",
		cycle, result.Requests, passes, result.Calls, result.Failures)
	return result
}

// stamp 重放轮次使用本轮的开始时间
func (d *Dispatcher) stamp(batch []models.OffloadRequest, pass int) []models.OffloadRequest {
	if pass == 1 {
		return batch
	}
	start := models.UnixSeconds(d.now())
	out := make([]models.OffloadRequest, len(batch))
	for i, req := range batch {
		req.Payload.RequestStart = start
		out[i] = req
	}
	return out
}

// runPass 一轮并发发送，等待所有worker完成
func (d *Dispatcher) runPass(ctx context.Context, batch []models.OffloadRequest) (int, int) {
	var calls, failures atomic.Int64

	p := pool.New().WithMaxGoroutines(d.workers)
	for _, req := range batch {
		p.Go(func() {
			c, f := d.send(ctx, req)
			calls.Add(int64(c))
			failures.Add(int64(f))
		})
	}
	p.Wait()

	return int(calls.Load()), int(failures.Load())
}

// send 按顺序发送一个请求的所有调用，失败后不再继续后续步骤
func (d *Dispatcher) send(ctx context.Context, req models.OffloadRequest) (int, int) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		d.logger.Errorf("Failed to marshal payload of %s: %v", req.ID, err)
		return 0, 1
	}

	calls := 0
	for _, url := range req.Calls() {
		calls++
		status, _, err := d.poster.Post(ctx, url, body)
		if err != nil {
			d.logger.Warnf("Offload %s (%s, %s) to %s failed: %v", req.ID, req.App, req.Route, url, err)
			d.metrics.ObserveCall(false)
			return calls, 1
		}
		if !transport.IsSuccess(status) {
			d.logger.Warnf("Offload %s (%s, %s) to %s returned status %d", req.ID, req.App, req.Route, url, status)
			d.metrics.ObserveCall(false)
			return calls, 1
		}
		d.metrics.ObserveCall(true)
	}
	return calls, 0
}
