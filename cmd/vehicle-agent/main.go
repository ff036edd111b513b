package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/vehicle-offloader/internal/config"
	"github.com/yourusername/vehicle-offloader/internal/k8s"
	"github.com/yourusername/vehicle-offloader/internal/observability"
	"github.com/yourusername/vehicle-offloader/internal/positioning"
	"github.com/yourusername/vehicle-offloader/pkg/vehicle"
)

func main() {
	var configPath string
	var port int
	var reportInterval time.Duration

	flag.StringVar(&configPath, "config", "./configs/config.yaml", "config file path")
	flag.IntVar(&port, "port", 9090, "HTTP server port")
	flag.DurationVar(&reportInterval, "report-interval", time.Second, "Interval for publishing vehicle position")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clients, err := k8s.NewClients(&cfg.K8s, logger)
	if err != nil {
		logger.Fatalf("Failed to create K8s clients: %v", err)
	}
	if err := k8s.EnsureVehicleCRD(ctx, clients.APIExtensions, logger); err != nil {
		logger.Fatalf("Failed to ensure Vehicle CRD: %v", err)
	}

	sc := cfg.Simulator
	simulator := vehicle.NewSimulator(vehicle.Config{
		VehicleID:    sc.VehicleID,
		Trajectory:   sc.Trajectory,
		Origin:       sc.Origin,
		Velocity:     sc.Velocity,
		Center:       sc.Center,
		Radius:       sc.Radius,
		AngularSpeed: sc.AngularSpeed,
		UpdateRate:   time.Duration(sc.UpdateRateMs) * time.Millisecond,
	})
	simulator.Start()
	defer simulator.Stop()

	logger.Infof("Starting vehicle agent (vehicle: %s, trajectory: %s)", sc.VehicleID, sc.Trajectory)

	publisher := positioning.NewKubeVehicle(clients.Dynamic, cfg.Positioning.Vehicle.Namespace, cfg.Positioning.Vehicle.Name)

	mux := http.NewServeMux()
	// 健康检查
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "healthy",
			"vehicle_id": sc.VehicleID,
			"timestamp":  time.Now(),
		})
	})
	// 获取完整状态
	mux.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   simulator.GetState(),
		})
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("Vehicle agent HTTP server listening on :%d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server failed: %v", err)
		}
	}()

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = server.Shutdown(shutdownCtx)
			shutdownCancel()
			logger.Info("Vehicle agent stopped")
			return
		case <-ticker.C:
			state := simulator.GetState()
			if err := publisher.Publish(ctx, state.Position, state.Speed, state.Heading); err != nil {
				logger.Warnf("Failed to publish vehicle position: %v", err)
				continue
			}
			logger.Debugf("Published vehicle position %s", state.Position)
		}
	}
}
