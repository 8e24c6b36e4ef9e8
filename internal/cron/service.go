package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
)

const defaultTick = 5 * time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Leaser   Leaser
	Metrics  *metrics.CronJobMetrics
	// Tick is how often due jobs are looked for. It bounds how late a job can
	// start after its lease lapses.
	Tick time.Duration
}

// Service runs each registered job at most once per cadence across every
// worker sharing the leaser.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	leaser   Leaser
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Leaser == nil {
		return nil, fmt.Errorf("job leaser required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		leaser:   params.Leaser,
		metrics:  params.Metrics,
		tick:     tick,
	}, nil
}

// Run polls for due jobs until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.runDue(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Service) runDue(ctx context.Context) {
	for _, entry := range s.registry.Entries() {
		if ctx.Err() != nil {
			return
		}
		s.runEntry(ctx, entry)
	}
}

// runEntry runs one job if its lease is free. A successful run keeps the
// lease until it expires so the job waits a full cadence; a failed run
// releases it so the next tick retries.
func (s *Service) runEntry(ctx context.Context, entry Entry) {
	name := entry.Job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	held, err := s.leaser.Acquire(jobCtx, name, entry.Every)
	if err != nil {
		s.logg.Error(jobCtx, "job lease unavailable", err)
		return
	}
	if !held {
		s.metrics.IncSkipped(name)
		return
	}

	runCtx, cancel := context.WithTimeout(jobCtx, entry.Every)
	start := time.Now()
	err = entry.Job.Run(runCtx)
	cancel()
	duration := time.Since(start)
	s.metrics.ObserveDuration(name, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())

	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(name)
		if relErr := s.leaser.Release(jobCtx, name); relErr != nil {
			s.logg.Error(jobCtx, "job lease release failed", relErr)
		}
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(name)
}
