package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
)

const defaultDeliveryRetention = 30 * 24 * time.Hour

// DeliveryRetentionJobParams configures pruning of settled webhook delivery records.
type DeliveryRetentionJobParams struct {
	Logger     *logger.Logger
	Repository deliveryRetentionRepo
	Metrics    *metrics.CronJobMetrics
	Retention  time.Duration
	Now        func() time.Time
}

type deliveryRetentionRepo interface {
	DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewDeliveryRetentionJob removes succeeded and retryable-failed delivery
// records older than the retention window. Records younger than the window
// keep deduplicating Stripe redeliveries.
func NewDeliveryRetentionJob(params DeliveryRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultDeliveryRetention
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &deliveryRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: retention,
		now:       now,
	}, nil
}

type deliveryRetentionJob struct {
	logg      *logger.Logger
	repo      deliveryRetentionRepo
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	now       func() time.Time
}

func (j *deliveryRetentionJob) Name() string { return "delivery-retention" }

func (j *deliveryRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteSettledBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delivery retention: %w", err)
	}
	j.metrics.AddAffected(j.Name(), deleted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "delivery retention cleanup complete")
	return nil
}
