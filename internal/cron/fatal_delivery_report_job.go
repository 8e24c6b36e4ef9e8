package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
)

const defaultFatalReportLimit = 100

type FatalDeliveryReportJobParams struct {
	Logger     *logger.Logger
	Repository FatalDeliveryLister
	Metrics    *metrics.CronJobMetrics
	Limit      int
}

// FatalDeliveryLister is implemented by both delivery record backends.
type FatalDeliveryLister interface {
	ListFatal(ctx context.Context, limit int) ([]models.WebhookDelivery, error)
}

// NewFatalDeliveryReportJob surfaces deliveries whose handler failed
// permanently. Stripe will not resolve these by retrying.
func NewFatalDeliveryReportJob(params FatalDeliveryReportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultFatalReportLimit
	}
	return &fatalDeliveryReportJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
		limit:   limit,
	}, nil
}

type fatalDeliveryReportJob struct {
	logg    *logger.Logger
	repo    FatalDeliveryLister
	metrics *metrics.CronJobMetrics
	limit   int
}

func (j *fatalDeliveryReportJob) Name() string { return "fatal-delivery-report" }

func (j *fatalDeliveryReportJob) Run(ctx context.Context) error {
	rows, err := j.repo.ListFatal(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list fatal deliveries: %w", err)
	}
	for _, row := range rows {
		fields := map[string]any{
			"provider":          row.Provider,
			"event_id":          row.EventID,
			"event_type":        row.EventType,
			"attempts":          row.Attempts,
			"operator_followup": true,
		}
		if row.ProcessedAt != nil {
			fields["processed_at"] = row.ProcessedAt.UTC()
		}
		if row.LastError != nil {
			fields["last_error"] = *row.LastError
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "unresolved fatal webhook delivery")
	}
	j.metrics.AddAffected(j.Name(), int64(len(rows)))
	j.logg.Info(j.logg.WithField(ctx, "fatal_count", len(rows)), "fatal delivery report complete")
	return nil
}
