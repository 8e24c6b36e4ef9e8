package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

var baseVersion = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Payment{},
		&models.Subscription{},
		&models.Invoice{},
		&models.Customer{},
	))
	return db
}

func TestUpsertPaymentIgnoresOlderVersions(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupBillingTestDB(t))

	applied, err := repo.UpsertPayment(ctx, &models.Payment{
		StripePaymentIntentID: "pi_1",
		Status:                enums.PaymentStatusSucceeded,
		AmountCents:           2000,
		Currency:              "usd",
		SourceEventAt:         baseVersion,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.UpsertPayment(ctx, &models.Payment{
		StripePaymentIntentID: "pi_1",
		Status:                enums.PaymentStatusFailed,
		AmountCents:           2000,
		Currency:              "usd",
		SourceEventAt:         baseVersion.Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindPayment(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.PaymentStatusSucceeded, stored.Status)
}

func TestUpsertSubscriptionAppliesSameOrNewerVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupBillingTestDB(t))

	sub := &models.Subscription{
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		Status:               enums.SubscriptionStatusActive,
		Quantity:             1,
		SourceEventAt:        baseVersion,
	}
	applied, err := repo.UpsertSubscription(ctx, sub)
	require.NoError(t, err)
	assert.True(t, applied)

	same := *sub
	same.Quantity = 3
	applied, err = repo.UpsertSubscription(ctx, &same)
	require.NoError(t, err)
	assert.True(t, applied)

	newer := *sub
	newer.Status = enums.SubscriptionStatusCanceled
	newer.SourceEventAt = baseVersion.Add(time.Hour)
	applied, err = repo.UpsertSubscription(ctx, &newer)
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.FindSubscription(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.SubscriptionStatusCanceled, stored.Status)
	assert.Equal(t, int64(3), stored.Quantity)
}

func TestUpsertSubscriptionSameSecondKeepsLaterLifecycleState(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupBillingTestDB(t))

	active := &models.Subscription{
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		Status:               enums.SubscriptionStatusActive,
		Quantity:             1,
		SourceEventAt:        baseVersion,
	}
	applied, err := repo.UpsertSubscription(ctx, active)
	require.NoError(t, err)
	assert.True(t, applied)

	incomplete := *active
	incomplete.Status = enums.SubscriptionStatusIncomplete
	applied, err = repo.UpsertSubscription(ctx, &incomplete)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindSubscription(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, enums.SubscriptionStatusActive.Rank(), stored.StateRank)
}

func TestUpsertPaymentSameSecondInEitherOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupBillingTestDB(t))

	failed := &models.Payment{
		StripePaymentIntentID: "pi_1",
		Status:                enums.PaymentStatusFailed,
		AmountCents:           2000,
		Currency:              "usd",
		SourceEventAt:         baseVersion,
	}
	succeeded := *failed
	succeeded.Status = enums.PaymentStatusSucceeded

	applied, err := repo.UpsertPayment(ctx, failed)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repo.UpsertPayment(ctx, &succeeded)
	require.NoError(t, err)
	assert.True(t, applied)

	again := *failed
	applied, err = repo.UpsertPayment(ctx, &again)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindPayment(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.PaymentStatusSucceeded, stored.Status)
}

func TestUpsertCustomerSameSecondUsesCallerRank(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupBillingTestDB(t))

	updatedEmail := "new@example.com"
	applied, err := repo.UpsertCustomer(ctx, &models.Customer{
		StripeCustomerID: "cus_1",
		Email:            &updatedEmail,
		SourceEventAt:    baseVersion,
		StateRank:        1,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	createdEmail := "old@example.com"
	applied, err = repo.UpsertCustomer(ctx, &models.Customer{
		StripeCustomerID: "cus_1",
		Email:            &createdEmail,
		SourceEventAt:    baseVersion,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindCustomer(ctx, "cus_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Email)
	assert.Equal(t, updatedEmail, *stored.Email)
}

func TestUpsertInvoiceAndCustomer(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupBillingTestDB(t))

	subID := "sub_1"
	applied, err := repo.UpsertInvoice(ctx, &models.Invoice{
		StripeInvoiceID:      "in_1",
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               enums.InvoiceStatusPaid,
		AmountDueCents:       1500,
		AmountPaidCents:      1500,
		Currency:             "usd",
		SourceEventAt:        baseVersion,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	email := "buyer@example.com"
	applied, err = repo.UpsertCustomer(ctx, &models.Customer{
		StripeCustomerID: "cus_1",
		Email:            &email,
		SourceEventAt:    baseVersion,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	customer, err := repo.FindCustomer(ctx, "cus_1")
	require.NoError(t, err)
	require.NotNil(t, customer)
	require.NotNil(t, customer.Email)
	assert.Equal(t, email, *customer.Email)
}

func TestFindSubscriptionMissingReturnsNil(t *testing.T) {
	repo := NewRepository(setupBillingTestDB(t))

	sub, err := repo.FindSubscription(context.Background(), "sub_missing")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestListSubscriptionsForReconciliationSkipsSettledTerminal(t *testing.T) {
	ctx := context.Background()
	db := setupBillingTestDB(t)
	repo := &repository{db: db, now: func() time.Time { return baseVersion }}

	rows := []models.Subscription{
		{StripeSubscriptionID: "sub_active", StripeCustomerID: "cus_1", Status: enums.SubscriptionStatusActive, Quantity: 1, SourceEventAt: baseVersion},
		{StripeSubscriptionID: "sub_old_canceled", StripeCustomerID: "cus_1", Status: enums.SubscriptionStatusCanceled, Quantity: 1, SourceEventAt: baseVersion},
	}
	for i := range rows {
		_, err := repo.UpsertSubscription(ctx, &rows[i])
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", "sub_old_canceled").
		UpdateColumn("updated_at", baseVersion.Add(-30*24*time.Hour)).Error)
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", "sub_active").
		UpdateColumn("updated_at", baseVersion.Add(-30*24*time.Hour)).Error)

	subs, err := repo.ListSubscriptionsForReconciliation(ctx, 10, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_active", subs[0].StripeSubscriptionID)
}

func TestWithTxNilKeepsRepository(t *testing.T) {
	repo := NewRepository(setupBillingTestDB(t))
	assert.Equal(t, repo, repo.WithTx(nil))
}
