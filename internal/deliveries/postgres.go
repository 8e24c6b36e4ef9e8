package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// PostgresStore keeps delivery records in the webhook_deliveries table. The
// claim is one INSERT ... ON CONFLICT DO UPDATE ... WHERE statement, so the
// unique (provider, event_id) key arbitrates concurrent deliveries.
type PostgresStore struct {
	db   *gorm.DB
	opts Options
}

func NewPostgresStore(db *gorm.DB, opts Options) *PostgresStore {
	return &PostgresStore{db: db, opts: opts.withDefaults()}
}

func (s *PostgresStore) TryClaim(ctx context.Context, claim webhooks.Claim) (webhooks.ClaimOutcome, error) {
	now, err := claimedAt(claim)
	if err != nil {
		return 0, err
	}
	// A record removed by retention between the upsert and the read is claimed again.
	for attempt := 0; attempt < 2; attempt++ {
		row := models.WebhookDelivery{
			Provider:  claim.Provider,
			EventID:   claim.EventID,
			EventType: claim.EventType,
			Outcome:   enums.DeliveryOutcomeInProgress,
			Attempts:  1,
			ClaimedAt: now,
		}

		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"outcome":      enums.DeliveryOutcomeInProgress,
				"attempts":     gorm.Expr("webhook_deliveries.attempts + 1"),
				"claimed_at":   now,
				"processed_at": nil,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr(
					"webhook_deliveries.outcome = ? OR (webhook_deliveries.outcome = ? AND webhook_deliveries.claimed_at < ?)",
					enums.DeliveryOutcomeFailed,
					enums.DeliveryOutcomeInProgress,
					now.Add(-s.opts.Lease),
				),
			}},
		}).Create(&row)
		if res.Error != nil {
			return 0, fmt.Errorf("claim delivery %s/%s: %w", claim.Provider, claim.EventID, res.Error)
		}
		if res.RowsAffected == 1 {
			return webhooks.Claimed, nil
		}

		existing, err := s.Get(ctx, claim.Provider, claim.EventID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if existing.Outcome == enums.DeliveryOutcomeSuccess {
			return webhooks.AlreadySucceeded, nil
		}
		return webhooks.InProgressElsewhere, nil
	}
	return webhooks.InProgressElsewhere, nil
}

func (s *PostgresStore) MarkSucceeded(ctx context.Context, claim webhooks.Claim) error {
	return s.transition(ctx, claim, map[string]any{
		"outcome":      enums.DeliveryOutcomeSuccess,
		"processed_at": s.opts.Now().UTC(),
		"last_error":   nil,
		"fatal":        false,
	})
}

func (s *PostgresStore) MarkFailed(ctx context.Context, claim webhooks.Claim, failure webhooks.Failure) error {
	reason := failure.Reason
	return s.transition(ctx, claim, map[string]any{
		"outcome":      enums.DeliveryOutcomeFailed,
		"processed_at": s.opts.Now().UTC(),
		"last_error":   &reason,
		"fatal":        failure.Fatal,
	})
}

// transition completes the claim only while it is still in_progress under
// this claimant's claimed_at.
func (s *PostgresStore) transition(ctx context.Context, claim webhooks.Claim, updates map[string]any) error {
	at, err := claimedAt(claim)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Model(&models.WebhookDelivery{}).
		Where("provider = ? AND event_id = ? AND outcome = ? AND claimed_at = ?",
			claim.Provider, claim.EventID, enums.DeliveryOutcomeInProgress, at).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("complete delivery %s/%s: %w", claim.Provider, claim.EventID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete delivery %s/%s: %w", claim.Provider, claim.EventID, webhooks.ErrClaimLost)
	}
	return nil
}

// Get returns one delivery record.
func (s *PostgresStore) Get(ctx context.Context, provider, eventID string) (*models.WebhookDelivery, error) {
	var row models.WebhookDelivery
	err := s.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteSettledBefore removes succeeded and retryable-failed records whose
// processing finished before cutoff. Fatal records stay for operators.
func (s *PostgresStore) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", cutoff.UTC()).
		Where("outcome = ? OR (outcome = ? AND fatal = ?)", enums.DeliveryOutcomeSuccess, enums.DeliveryOutcomeFailed, false).
		Delete(&models.WebhookDelivery{})
	return res.RowsAffected, res.Error
}

// ListFatal returns unresolved fatal deliveries, oldest first.
func (s *PostgresStore) ListFatal(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.WebhookDelivery
	err := s.db.WithContext(ctx).
		Where("outcome = ? AND fatal = ?", enums.DeliveryOutcomeFailed, true).
		Order("processed_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Retention exposes the configured retention window to cleanup jobs.
func (s *PostgresStore) Retention() time.Duration {
	return s.opts.Retention
}
