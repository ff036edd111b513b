package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/vehicle-offloader/internal/config"
	"github.com/yourusername/vehicle-offloader/internal/edgesim"
	"github.com/yourusername/vehicle-offloader/internal/observability"
)

func main() {
	var configPath string
	var role string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "config file path")
	flag.StringVar(&role, "role", "edge1", "role of this edge node")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	server := edgesim.NewServer(edgesim.Config{
		Role:      role,
		Pods:      cfg.EdgeNode.Pods,
		Latencies: cfg.EdgeNode.Latencies,
		Jitter:    cfg.EdgeNode.Jitter,
		Logger:    logger,
	})

	addrs := []string{fmt.Sprintf(":%d", cfg.Offload.ProxyPort)}
	if cfg.Offload.MetricPort != cfg.Offload.ProxyPort {
		addrs = append(addrs, fmt.Sprintf(":%d", cfg.Offload.MetricPort))
	}
	if p := cfg.EdgeNode.CloudPort; p > 0 && p != cfg.Offload.ProxyPort && p != cfg.Offload.MetricPort {
		addrs = append(addrs, fmt.Sprintf(":%d", p))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Shutdown failed: %v", err)
		}
	}()

	if err := server.Start(addrs...); err != nil {
		logger.Fatalf("Edge node emulator failed: %v", err)
	}
	logger.Info("Edge node emulator exited")
}
