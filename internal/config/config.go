package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// Config 应用配置
type Config struct {
	Offload       OffloadConfig       `mapstructure:"offload"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Network       NetworkConfig       `mapstructure:"network"`
	Positioning   PositioningConfig   `mapstructure:"positioning"`
	Simulator     SimulatorConfig     `mapstructure:"simulator"`
	K8s           K8sConfig           `mapstructure:"k8s"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	EdgeNode      EdgeNodeConfig      `mapstructure:"edge_node"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// OffloadConfig 卸载决策配置
type OffloadConfig struct {
	Policy           string            `mapstructure:"policy"`             // nearest | optimal
	Interval         int               `mapstructure:"interval"`           // 决策周期（秒）
	TimeLimit        float64           `mapstructure:"time_limit"`         // 边缘延迟上限 (ms)
	Coverage         CoverageConfig    `mapstructure:"coverage"`           // 覆盖半径
	ProxyPort        int               `mapstructure:"proxy_port"`         // 入口节点代理端口
	MetricPort       int               `mapstructure:"metric_port"`        // 入口节点指标端口
	BaseStationRoles map[string]string `mapstructure:"base_station_roles"` // 基站ID -> 角色
	EdgeNodes        map[string]string `mapstructure:"edge_nodes"`         // 角色 -> IP
	Apps             map[string]string `mapstructure:"apps"`               // 任务类型 -> 云端URL
	MaxNodeCPUUsage  float64           `mapstructure:"max_node_cpu_usage"` // 节点CPU使用率上限 (0-100)，0表示不启用
	VehicleID        string            `mapstructure:"vehicle_id"`
}

// CoverageConfig 覆盖阈值
type CoverageConfig struct {
	Strict float64 `mapstructure:"strict"` // 就近卸载使用
	Loose  float64 `mapstructure:"loose"`  // 多节点比较时使用
}

// DispatchConfig 请求分发配置
type DispatchConfig struct {
	Workers   int `mapstructure:"workers"`    // 并发worker数量
	MaxReplay int `mapstructure:"max_replay"` // 单次调用最多重放次数，0表示不限制
}

// NetworkConfig 网络调用配置
type NetworkConfig struct {
	Timeout int `mapstructure:"timeout"` // 单次调用超时（秒）
}

// PositioningConfig 定位数据源配置
type PositioningConfig struct {
	Source       string                `mapstructure:"source"` // static | kubernetes | simulator
	BaseStations []StaticBaseStation   `mapstructure:"base_stations"`
	NodeLabel    string                `mapstructure:"node_label"`
	Vehicle      VehicleResourceConfig `mapstructure:"vehicle"`
}

// StaticBaseStation 静态配置的基站位置
type StaticBaseStation struct {
	ID       string          `mapstructure:"id"`
	Position models.Position `mapstructure:"position"`
}

// VehicleResourceConfig Vehicle自定义资源定位
type VehicleResourceConfig struct {
	Name      string `mapstructure:"name"`
	Namespace string `mapstructure:"namespace"`
}

// SimulatorConfig 车辆轨迹模拟配置
type SimulatorConfig struct {
	VehicleID    string          `mapstructure:"vehicle_id"`
	Trajectory   string          `mapstructure:"trajectory"` // line | loop
	Origin       models.Position `mapstructure:"origin"`
	Velocity     models.Position `mapstructure:"velocity"` // 每秒位移
	Center       models.Position `mapstructure:"center"`
	Radius       float64         `mapstructure:"radius"`
	AngularSpeed float64         `mapstructure:"angular_speed"` // rad/s
	UpdateRateMs int             `mapstructure:"update_rate_ms"`
}

// K8sConfig K8s配置
type K8sConfig struct {
	Kubeconfig string `mapstructure:"kubeconfig"`
	Namespace  string `mapstructure:"namespace"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	MetricsAddr     string `mapstructure:"metrics_addr"`
	TracingExporter string `mapstructure:"tracing_exporter"` // none | stdout
}

// EdgeNodeConfig 边缘节点模拟器配置
type EdgeNodeConfig struct {
	CloudPort int                `mapstructure:"cloud_port"` // 云端 /init /run 监听端口
	Pods      map[string]int     `mapstructure:"pods"`       // 角色 -> pod数量
	Latencies map[string]float64 `mapstructure:"latencies"`  // 角色 -> 基础p50 (ms)
	Jitter    float64            `mapstructure:"jitter"`     // 抖动幅度 (ms)
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	// .env 为可选文件
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	// 设置默认值
	setDefaults(v)

	// 读取环境变量
	v.SetEnvPrefix("OFFLOADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("offload.policy", "optimal")
	v.SetDefault("offload.interval", 5)
	v.SetDefault("offload.time_limit", 15.0)
	v.SetDefault("offload.coverage.strict", 50.0)
	v.SetDefault("offload.coverage.loose", 120.0)
	v.SetDefault("offload.proxy_port", 8000)
	v.SetDefault("offload.metric_port", 8001)
	v.SetDefault("offload.max_node_cpu_usage", 0.0)
	v.SetDefault("offload.vehicle_id", "ego")

	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.max_replay", 1)

	v.SetDefault("network.timeout", 5)

	v.SetDefault("positioning.source", "static")
	v.SetDefault("positioning.node_label", "offload.io/base-station=true")
	v.SetDefault("positioning.vehicle.name", "ego")
	v.SetDefault("positioning.vehicle.namespace", "default")

	v.SetDefault("simulator.vehicle_id", "ego")
	v.SetDefault("simulator.trajectory", "line")
	v.SetDefault("simulator.velocity.x", 10.0)
	v.SetDefault("simulator.radius", 100.0)
	v.SetDefault("simulator.angular_speed", 0.1)
	v.SetDefault("simulator.update_rate_ms", 100)

	v.SetDefault("k8s.kubeconfig", "")
	v.SetDefault("k8s.namespace", "default")

	v.SetDefault("observability.metrics_addr", ":9102")
	v.SetDefault("observability.tracing_exporter", "none")

	v.SetDefault("edge_node.cloud_port", 9000)
	v.SetDefault("edge_node.jitter", 1.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Offload.Policy {
	case "nearest", "optimal":
	default:
		return fmt.Errorf("invalid offload.policy %q (want nearest or optimal)", c.Offload.Policy)
	}
	if c.Offload.Coverage.Strict < 0 || c.Offload.Coverage.Loose < 0 {
		return fmt.Errorf("coverage thresholds must be non-negative")
	}
	if c.Offload.TimeLimit < 0 {
		return fmt.Errorf("offload.time_limit must be non-negative")
	}
	if c.Offload.ProxyPort <= 0 || c.Offload.MetricPort <= 0 {
		return fmt.Errorf("offload.proxy_port and offload.metric_port must be positive")
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be positive")
	}
	if c.Dispatch.MaxReplay < 0 {
		return fmt.Errorf("dispatch.max_replay must be >= 0")
	}
	if len(c.Offload.Apps) == 0 {
		return fmt.Errorf("offload.apps must list at least one task type")
	}
	switch c.Positioning.Source {
	case "static", "kubernetes", "simulator":
	default:
		return fmt.Errorf("invalid positioning.source %q", c.Positioning.Source)
	}
	return nil
}

// Topology 基于配置构建拓扑
func (c *Config) Topology() *Topology {
	return NewTopology(c.Offload.BaseStationRoles, c.Offload.EdgeNodes)
}

// AppTasks 按名称排序的任务列表
func (c *Config) AppTasks() []models.AppTask {
	return AppTasksFrom(c.Offload.Apps)
}
