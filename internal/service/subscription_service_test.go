package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/pkg/logging"
	"github.com/qs3c/rizz_server/internal/repository"
	"github.com/qs3c/rizz_server/internal/testutil"
)

func setupSubscriptionService(t *testing.T) (*SubscriptionService, *gorm.DB, *clock.Fake) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	clk := clock.NewFake(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	cfg := config.Defaults()
	cfg.Subscription.WebhookSecret = "hook-secret"

	svc := NewSubscriptionService(
		db,
		repository.NewSubscriptionRepository(db),
		repository.NewProfileRepository(db),
		clk, cfg, logging.Discard(),
	)
	return svc, db, clk
}

func purchase(profileID, plan, txID string) *dto.SubscriptionEvent {
	return &dto.SubscriptionEvent{
		ProfileID:     profileID,
		Event:         EventPurchased,
		Plan:          plan,
		Store:         "app_store",
		TransactionID: txID,
	}
}

func TestSubscriptionService_VerifySecret(t *testing.T) {
	svc, _, _ := setupSubscriptionService(t)

	assert.NoError(t, svc.VerifySecret("hook-secret"))
	assert.ErrorIs(t, svc.VerifySecret("wrong"), ErrInvalidSignature)
	assert.ErrorIs(t, svc.VerifySecret("hook-secre"), ErrInvalidSignature)
	assert.ErrorIs(t, svc.VerifySecret("hook-secret2"), ErrInvalidSignature)
	assert.ErrorIs(t, svc.VerifySecret(""), ErrInvalidSignature)

	svc.cfg.WebhookSecret = ""
	assert.ErrorIs(t, svc.VerifySecret(""), ErrInvalidSignature)
}

func TestSubscriptionService_Purchase(t *testing.T) {
	svc, db, _ := setupSubscriptionService(t)
	ctx := context.Background()
	p := testutil.TestProfile(t, db)

	info, err := svc.HandleEvent(ctx, purchase(p.ID, "monthly", "tx-1"))
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, info.Status)
	assert.Equal(t, "2024-02-01T09:00:00Z", info.ExpiresAt)

	stored, err := repository.NewProfileRepository(db).GetByID(p.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPremium)
	require.NotNil(t, stored.PremiumExpiresAt)

	// 重复投递
	again, err := svc.HandleEvent(ctx, purchase(p.ID, "monthly", "tx-1"))
	require.NoError(t, err)
	assert.Equal(t, info.ExpiresAt, again.ExpiresAt)

	var count int64
	db.Model(&model.Subscription{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSubscriptionService_RenewExtends(t *testing.T) {
	svc, db, clk := setupSubscriptionService(t)
	ctx := context.Background()
	p := testutil.TestProfile(t, db)

	_, err := svc.HandleEvent(ctx, purchase(p.ID, "weekly", "tx-1"))
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	renew := purchase(p.ID, "weekly", "tx-2")
	renew.Event = EventRenewed
	info, err := svc.HandleEvent(ctx, renew)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-16T09:00:00Z", info.ExpiresAt)

	current, err := svc.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ExpiresAt, current.ExpiresAt)
}

func TestSubscriptionService_Errors(t *testing.T) {
	svc, db, _ := setupSubscriptionService(t)
	ctx := context.Background()
	p := testutil.TestProfile(t, db)

	_, err := svc.HandleEvent(ctx, purchase("missing", "monthly", "tx-1"))
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = svc.HandleEvent(ctx, purchase(p.ID, "lifetime", "tx-2"))
	assert.ErrorIs(t, err, ErrUnknownPlan)

	cancel := purchase(p.ID, "monthly", "tx-3")
	cancel.Event = EventCancelled
	_, err = svc.HandleEvent(ctx, cancel)
	assert.ErrorIs(t, err, ErrNoSubscription)

	_, err = svc.Get(p.ID)
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestSubscriptionService_Cancel(t *testing.T) {
	svc, db, _ := setupSubscriptionService(t)
	ctx := context.Background()
	p := testutil.TestProfile(t, db)

	_, err := svc.HandleEvent(ctx, purchase(p.ID, "monthly", "tx-1"))
	require.NoError(t, err)

	cancel := purchase(p.ID, "monthly", "tx-1")
	cancel.Event = EventCancelled
	info, err := svc.HandleEvent(ctx, cancel)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCancelled, info.Status)

	stored, err := repository.NewProfileRepository(db).GetByID(p.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPremium)
	assert.Nil(t, stored.PremiumExpiresAt)
}

func TestSubscriptionService_ExpireDue(t *testing.T) {
	svc, db, clk := setupSubscriptionService(t)
	ctx := context.Background()
	lapsed := testutil.TestProfile(t, db)
	covered := testutil.TestProfile(t, db)

	_, err := svc.HandleEvent(ctx, purchase(lapsed.ID, "weekly", "tx-1"))
	require.NoError(t, err)
	_, err = svc.HandleEvent(ctx, purchase(covered.ID, "weekly", "tx-2"))
	require.NoError(t, err)
	_, err = svc.HandleEvent(ctx, purchase(covered.ID, "weekly", "tx-3"))
	require.NoError(t, err)

	clk.Advance(8 * 24 * time.Hour)
	n, err := svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	repo := repository.NewProfileRepository(db)
	p, err := repo.GetByID(lapsed.ID)
	require.NoError(t, err)
	assert.False(t, p.IsPremium)

	// 第二笔订阅顺延到 14 天后，仍是会员
	p, err = repo.GetByID(covered.ID)
	require.NoError(t, err)
	assert.True(t, p.IsPremium)

	n, err = svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
