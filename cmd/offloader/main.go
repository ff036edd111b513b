package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/vehicle-offloader/internal/config"
	"github.com/yourusername/vehicle-offloader/internal/dispatch"
	"github.com/yourusername/vehicle-offloader/internal/k8s"
	"github.com/yourusername/vehicle-offloader/internal/metrics"
	"github.com/yourusername/vehicle-offloader/internal/observability"
	"github.com/yourusername/vehicle-offloader/internal/positioning"
	"github.com/yourusername/vehicle-offloader/internal/scheduler"
	"github.com/yourusername/vehicle-offloader/internal/transport"
	"github.com/yourusername/vehicle-offloader/pkg/models"
	"github.com/yourusername/vehicle-offloader/pkg/vehicle"
)

func main() {
	var configPath string
	var once bool
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "config file path")
	flag.BoolVar(&once, "once", false, "run a single offload invocation and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	shutdownTracing, err := observability.InitTracing("vehicle-offloader", cfg.Observability.TracingExporter)
	if err != nil {
		logger.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warnf("Tracing shutdown failed: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := observability.NewMetrics(reg)
	if !once && cfg.Observability.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.Observability.MetricsAddr, reg, logger)
	}

	var clients *k8s.Clients
	if cfg.Positioning.Source == "kubernetes" || cfg.Offload.MaxNodeCPUUsage > 0 {
		clients, err = k8s.NewClients(&cfg.K8s, logger)
		if err != nil {
			logger.Fatalf("Failed to create K8s clients: %v", err)
		}
		if err := clients.TestConnection(); err != nil {
			logger.Fatalf("Failed to connect to K8s: %v", err)
		}
	}

	provider, stop := buildProvider(cfg, clients, logger)
	defer stop()

	poster := transport.NewHTTPClient(time.Duration(cfg.Network.Timeout)*time.Second, logger)
	topology := cfg.Topology()

	collectorCfg := metrics.CollectorConfig{
		MetricPort: cfg.Offload.MetricPort,
		Logger:     logger,
		Metrics:    promMetrics,
	}
	if cfg.Offload.MaxNodeCPUUsage > 0 {
		collectorCfg.MaxNodeCPUUsage = cfg.Offload.MaxNodeCPUUsage
		collectorCfg.NodeLoad = metrics.NewKubeNodeLoad(clients.Kube, clients.Metrics, logger)
	}
	collector := metrics.NewCollector(poster, topology, collectorCfg)

	dispatcher := dispatch.New(poster, dispatch.Config{
		Workers:   cfg.Dispatch.Workers,
		MaxReplay: cfg.Dispatch.MaxReplay,
		Logger:    logger,
		Metrics:   promMetrics,
	})

	sched := scheduler.New(provider, topology, cfg.AppTasks(), collector, dispatcher, scheduler.Config{
		Policy:         cfg.Offload.Policy,
		TimeLimit:      cfg.Offload.TimeLimit,
		StrictCoverage: cfg.Offload.Coverage.Strict,
		LooseCoverage:  cfg.Offload.Coverage.Loose,
		ProxyPort:      cfg.Offload.ProxyPort,
		Interval:       time.Duration(cfg.Offload.Interval) * time.Second,
		VehicleID:      cfg.Offload.VehicleID,
		Logger:         logger,
		Metrics:        promMetrics,
	})

	if once {
		report, err := sched.RunOnce(ctx)
		if err != nil {
			logger.Fatalf("Offload failed: %v", err)
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		logger.Infof("Offload report:\n%s", out)
		return
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Offload scheduler stopped with error: %v", err)
	}
	logger.Info("Offload scheduler exited")
}

// buildProvider 按positioning.source组装定位数据源
func buildProvider(cfg *config.Config, clients *k8s.Clients, logger *logrus.Logger) (positioning.Provider, func()) {
	stations := make(positioning.StaticStations, 0, len(cfg.Positioning.BaseStations))
	for _, bs := range cfg.Positioning.BaseStations {
		stations = append(stations, models.BaseStationPosition{ID: bs.ID, Position: bs.Position})
	}

	switch cfg.Positioning.Source {
	case "kubernetes":
		ks := positioning.NewKubeStations(clients.Kube, cfg.Positioning.NodeLabel, logger)
		kv := positioning.NewKubeVehicle(clients.Dynamic, cfg.Positioning.Vehicle.Namespace, cfg.Positioning.Vehicle.Name)
		return positioning.Compose(ks, kv), func() {}
	case "simulator":
		sim := vehicle.NewSimulator(simulatorConfig(cfg.Simulator))
		sim.Start()
		logger.Infof("Vehicle simulator started (%s trajectory)", cfg.Simulator.Trajectory)
		return positioning.Compose(stations, positioning.SimulatedVehicle{Source: sim}), sim.Stop
	default:
		return positioning.Compose(stations, positioning.FixedVehicle(cfg.Simulator.Origin)), func() {}
	}
}

func simulatorConfig(sc config.SimulatorConfig) vehicle.Config {
	return vehicle.Config{
		VehicleID:    sc.VehicleID,
		Trajectory:   sc.Trajectory,
		Origin:       sc.Origin,
		Velocity:     sc.Velocity,
		Center:       sc.Center,
		Radius:       sc.Radius,
		AngularSpeed: sc.AngularSpeed,
		UpdateRate:   time.Duration(sc.UpdateRateMs) * time.Millisecond,
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving Prometheus metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("Metrics server failed: %v", err)
	}
}
