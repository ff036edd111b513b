package vehicle

import (
	"math"
	"sync"
	"time"

	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// 轨迹类型
const (
	TrajectoryLine = "line"
	TrajectoryLoop = "loop"
)

// VehicleState 车辆状态
type VehicleState struct {
	VehicleID string          `json:"vehicle_id"`
	Position  models.Position `json:"position"`
	Velocity  models.Position `json:"velocity"` // m/s
	Speed     float64         `json:"speed"`    // m/s
	Heading   float64         `json:"heading"`  // 航向 (度)
	Elapsed   float64         `json:"elapsed"`  // 模拟时长 (秒)
	Timestamp time.Time       `json:"timestamp"`
}

// Config 模拟器配置
type Config struct {
	VehicleID    string
	Trajectory   string
	Origin       models.Position
	Velocity     models.Position
	Center       models.Position
	Radius       float64
	AngularSpeed float64
	UpdateRate   time.Duration
}

// Simulator 车辆轨迹模拟器
type Simulator struct {
	cfg        Config
	state      VehicleState
	running    bool
	updateRate time.Duration
	stopChan   chan struct{}
	mu         sync.RWMutex
}

// NewSimulator 创建模拟器
func NewSimulator(cfg Config) *Simulator {
	if cfg.Trajectory == "" {
		cfg.Trajectory = TrajectoryLine
	}
	if cfg.UpdateRate <= 0 {
		cfg.UpdateRate = 100 * time.Millisecond // 10Hz
	}

	s := &Simulator{
		cfg:        cfg,
		updateRate: cfg.UpdateRate,
		stopChan:   make(chan struct{}),
	}
	s.updateState(0)
	return s
}

// Start 启动模拟器
func (s *Simulator) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.simulationLoop()
}

// Stop 停止模拟器
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.stopChan)
}

// GetState 获取当前状态（线程安全）
func (s *Simulator) GetState() VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Position 当前位置
func (s *Simulator) Position() models.Position {
	return s.GetState().Position
}

// simulationLoop 模拟循环
func (s *Simulator) simulationLoop() {
	ticker := time.NewTicker(s.updateRate)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.updateState(time.Since(startTime).Seconds())
		}
	}
}

// updateState 按经过时间计算位置
func (s *Simulator) updateState(elapsed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pos, vel models.Position
	switch s.cfg.Trajectory {
	case TrajectoryLoop:
		// 圆形轨迹
		omega := s.cfg.AngularSpeed
		r := s.cfg.Radius
		pos = models.Position{
			X: s.cfg.Center.X + r*math.Cos(omega*elapsed),
			Y: s.cfg.Center.Y + r*math.Sin(omega*elapsed),
			Z: s.cfg.Center.Z,
		}
		vel = models.Position{
			X: -r * omega * math.Sin(omega*elapsed),
			Y: r * omega * math.Cos(omega*elapsed),
		}
	default:
		// 匀速直线
		vel = s.cfg.Velocity
		pos = models.Position{
			X: s.cfg.Origin.X + vel.X*elapsed,
			Y: s.cfg.Origin.Y + vel.Y*elapsed,
			Z: s.cfg.Origin.Z + vel.Z*elapsed,
		}
	}

	speed := math.Sqrt(vel.X*vel.X + vel.Y*vel.Y + vel.Z*vel.Z)
	heading := math.Mod(math.Atan2(vel.Y, vel.X)*180/math.Pi+360, 360)

	s.state = VehicleState{
		VehicleID: s.cfg.VehicleID,
		Position:  pos,
		Velocity:  vel,
		Speed:     speed,
		Heading:   heading,
		Elapsed:   elapsed,
		Timestamp: time.Now(),
	}
}
