package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// Repository is the application domain store webhook handlers write to.
// Every Upsert is conditional on (source_event_at, state_rank): a row is only
// replaced by data at least as new as what it holds, and when two writes
// carry the same second the one further along the lifecycle wins. Deliveries
// may therefore arrive in any order. The returned bool reports whether the
// write was applied.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertPayment(ctx context.Context, payment *models.Payment) (bool, error)
	UpsertSubscription(ctx context.Context, subscription *models.Subscription) (bool, error)
	UpsertInvoice(ctx context.Context, invoice *models.Invoice) (bool, error)
	UpsertCustomer(ctx context.Context, customer *models.Customer) (bool, error)
	FindPayment(ctx context.Context, paymentIntentID string) (*models.Payment, error)
	FindSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	FindCustomer(ctx context.Context, customerID string) (*models.Customer, error)
	ListSubscriptionsForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.Subscription, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) UpsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	payment.StateRank = payment.Status.Rank()
	return r.upsert(ctx, "payments", "stripe_payment_intent_id", []string{
		"stripe_customer_id", "status", "amount_cents", "currency", "receipt_email",
		"failure_message", "metadata", "source_event_at", "state_rank", "updated_at",
	}, payment)
}

func (r *repository) UpsertSubscription(ctx context.Context, subscription *models.Subscription) (bool, error) {
	subscription.StateRank = subscription.Status.Rank()
	return r.upsert(ctx, "subscriptions", "stripe_subscription_id", []string{
		"stripe_customer_id", "status", "price_id", "quantity", "current_period_end",
		"cancel_at_period_end", "canceled_at", "metadata", "source_event_at", "state_rank", "updated_at",
	}, subscription)
}

func (r *repository) UpsertInvoice(ctx context.Context, invoice *models.Invoice) (bool, error) {
	invoice.StateRank = invoice.Status.Rank()
	return r.upsert(ctx, "invoices", "stripe_invoice_id", []string{
		"stripe_customer_id", "stripe_subscription_id", "status", "amount_due_cents",
		"amount_paid_cents", "currency", "attempt_count", "hosted_invoice_url",
		"source_event_at", "state_rank", "updated_at",
	}, invoice)
}

// UpsertCustomer keeps the caller's StateRank; customers carry no status, so
// the event kind orders same-second writes.
func (r *repository) UpsertCustomer(ctx context.Context, customer *models.Customer) (bool, error) {
	return r.upsert(ctx, "customers", "stripe_customer_id", []string{
		"email", "name", "metadata", "source_event_at", "state_rank", "updated_at",
	}, customer)
}

func (r *repository) upsert(ctx context.Context, table, key string, columns []string, row any) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: key}},
		DoUpdates: clause.AssignmentColumns(columns),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("(" + table + ".source_event_at < excluded.source_event_at OR (" +
				table + ".source_event_at = excluded.source_event_at AND " +
				table + ".state_rank <= excluded.state_rank))"),
		}},
	}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindPayment(ctx context.Context, paymentIntentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", subscriptionID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// ListSubscriptionsForReconciliation returns subscriptions that may still
// change on Stripe's side: anything not terminal, plus anything touched
// within the lookback window.
func (r *repository) ListSubscriptionsForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 250
	}
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	cutoff := r.now().UTC().Add(-lookback)
	terminal := []enums.SubscriptionStatus{
		enums.SubscriptionStatusCanceled,
		enums.SubscriptionStatusIncompleteExpired,
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status NOT IN (?) OR updated_at >= ?", terminal, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
