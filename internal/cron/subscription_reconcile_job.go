package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stripeapp-backend/internal/billing"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
)

const (
	defaultReconcileLimit    = 100
	defaultReconcileLookback = 7 * 24 * time.Hour
)

// SubscriptionReconcileJobParams configures the subscription sync cron job.
type SubscriptionReconcileJobParams struct {
	Logger   *logger.Logger
	Repo     subscriptionReconcileRepo
	Gateway  subscriptionRetriever
	Metrics  *metrics.CronJobMetrics
	Limit    int
	Lookback time.Duration
	Now      func() time.Time
}

type subscriptionReconcileRepo interface {
	ListSubscriptionsForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.Subscription, error)
	UpsertSubscription(ctx context.Context, subscription *models.Subscription) (bool, error)
}

type subscriptionRetriever interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

var _ subscriptionReconcileRepo = billing.Repository(nil)

// NewSubscriptionReconcileJob re-fetches live subscriptions from Stripe so
// rows heal when a webhook was never delivered.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:     params.Logger,
		repo:     params.Repo,
		gateway:  params.Gateway,
		metrics:  params.Metrics,
		now:      now,
		limit:    limit,
		lookback: lookback,
	}, nil
}

type subscriptionReconcileJob struct {
	logg     *logger.Logger
	repo     subscriptionReconcileRepo
	gateway  subscriptionRetriever
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
	limit    int
	lookback time.Duration
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	rows, err := j.repo.ListSubscriptionsForReconciliation(ctx, j.limit, j.lookback)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	var (
		errs    error
		updated int64
	)
	for _, row := range rows {
		applied, err := j.reconcile(ctx, row.StripeSubscriptionID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", row.StripeSubscriptionID, err))
			continue
		}
		if applied {
			updated++
		}
	}
	j.metrics.AddAffected(j.Name(), updated)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": len(rows),
		"updated": updated,
	})
	if errs != nil {
		j.logg.Warn(logCtx, "subscription reconcile finished with errors")
		return errs
	}
	j.logg.Info(logCtx, "subscription reconcile complete")
	return nil
}

func (j *subscriptionReconcileJob) reconcile(ctx context.Context, id string) (bool, error) {
	sub, err := j.gateway.RetrieveSubscription(ctx, id)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			j.logg.Warn(j.logg.WithField(ctx, "subscription_id", id), "subscription missing upstream; skipping")
			return false, nil
		}
		return false, err
	}
	row, err := billing.SubscriptionFromStripe(sub, j.now())
	if err != nil {
		return false, err
	}
	return j.repo.UpsertSubscription(ctx, row)
}
