package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"SocialMonitor/internal/domain"
	"SocialMonitor/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline orchestrator.
// Overlapping triggers are rejected by the orchestrator's single-flight
// guard; the scheduler only logs the skip.
type Scheduler struct {
	driver       ports.Scheduler
	orchestrator *Orchestrator
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring pipeline runs.
func NewScheduler(driver ports.Scheduler, orchestrator *Orchestrator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, orchestrator: orchestrator, logger: logger}
}

// Start registers the pipeline run with the provided scheduler driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.orchestrator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.orchestrator.RunOnce(ctx)
		if errors.Is(err, domain.ErrRunInProgress) {
			s.logger.Warn("scheduled trigger skipped", "trigger", trigger)
			return
		}
		if err != nil {
			s.logger.Error("pipeline run error", "trigger", trigger, "error", err)
			return
		}
		if report.State != domain.RunSucceeded {
			s.logger.Warn("pipeline run ended abnormally", "state", string(report.State), "run_id", report.RunID)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
