package usecase

import (
	"context"
	"time"

	"CompetitionScanner/internal/ports"
)

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
}

// NewScheduler returns a helper to start/stop recurring batch runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(time.Time) {
		_, _ = s.pipeline.RunBatch(ctx)
	}

	return s.driver.Start(ctx, job)
}

// RunOnce executes a single batch without the driver.
func (s *Scheduler) RunOnce(ctx context.Context) (BatchReport, error) {
	if s.pipeline == nil {
		return BatchReport{}, nil
	}
	return s.pipeline.RunBatch(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
