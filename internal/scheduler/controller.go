package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Run 启动周期决策循环，直到ctx取消
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infof("Starting offload scheduler (vehicle: %s, policy: %s, interval: %s)", s.vehicleID, s.policy, s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.reconcile(ctx); err != nil {
			s.logger.Errorf("Offload failed: %v", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Offload scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce 读取车辆当前位置并执行一次决策
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	vehicle, err := s.provider.VehiclePosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("vehicle position: %w", err)
	}
	return s.Offload(ctx, vehicle)
}

func (s *Scheduler) reconcile(ctx context.Context) error {
	report, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}
	s.logger.Debugf("Offload cycle %d: %d decisions, %d calls, %d failures",
		report.Cycle, len(report.Decisions), report.Dispatch.Calls, report.Dispatch.Failures)
	return nil
}
