//go:build integration

package vouchers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/ridecore/pkg/models"
	"github.com/richxcame/ridecore/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationService(t *testing.T) (*Service, *pgxpool.Pool) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, helpers.AllTables...)
	return NewService(NewRepository(pool)), pool
}

func createVoucher(t *testing.T, svc *Service, code string, usageLimit, perUser int) {
	t.Helper()
	_, err := svc.Create(context.Background(), &CreateRequest{
		Code:          code,
		DiscountType:  DiscountFixed,
		DiscountValue: 5,
		ExpiryDate:    time.Now().Add(24 * time.Hour),
		UsageLimit:    usageLimit,
		UsagePerUser:  perUser,
	})
	require.NoError(t, err)
}

func usedCount(t *testing.T, pool *pgxpool.Pool, code string) (used, usages int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, pool.QueryRow(ctx, `SELECT used_count FROM vouchers WHERE code = $1`, code).Scan(&used))
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM voucher_usages u JOIN vouchers v ON v.id = u.voucher_id
		WHERE v.code = $1`, code).Scan(&usages))
	return used, usages
}

// redeemConcurrently fires one Redeem per user (users may repeat) and returns
// how many succeeded.
func redeemConcurrently(t *testing.T, svc *Service, code string, users []uuid.UUID) int {
	t.Helper()
	var ok atomic.Int32
	var wg sync.WaitGroup
	for _, userID := range users {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			if _, err := svc.Redeem(context.Background(), code, 40, userID, uuid.New()); err == nil {
				ok.Add(1)
			}
		}(userID)
	}
	wg.Wait()
	return int(ok.Load())
}

func TestRedeem_PerUserCapUnderConcurrency(t *testing.T) {
	svc, pool := newIntegrationService(t)
	createVoucher(t, svc, "WELCOME2", 100, 2)
	userID := helpers.CreateUser(t, pool, models.RolePassenger)

	users := make([]uuid.UUID, 10)
	for i := range users {
		users[i] = userID
	}
	assert.Equal(t, 2, redeemConcurrently(t, svc, "WELCOME2", users))

	used, usages := usedCount(t, pool, "WELCOME2")
	assert.Equal(t, 2, used)
	assert.Equal(t, 2, usages)

	_, err := svc.ValidateAndPrice(context.Background(), "WELCOME2", 40, userID)
	assert.ErrorIs(t, err, ErrAlreadyUsedByUser)
}

func TestRedeem_GlobalCapUnderConcurrency(t *testing.T) {
	svc, pool := newIntegrationService(t)
	createVoucher(t, svc, "FIRST3", 3, 1)

	users := make([]uuid.UUID, 8)
	for i := range users {
		users[i] = helpers.CreateUser(t, pool, models.RolePassenger)
	}
	assert.Equal(t, 3, redeemConcurrently(t, svc, "FIRST3", users))

	used, usages := usedCount(t, pool, "FIRST3")
	assert.Equal(t, 3, used)
	assert.Equal(t, 3, usages)

	latecomer := helpers.CreateUser(t, pool, models.RolePassenger)
	_, err := svc.ValidateAndPrice(context.Background(), "FIRST3", 40, latecomer)
	assert.ErrorIs(t, err, ErrUsageLimitReached)
}

func TestRelease_FreesTheUsage(t *testing.T) {
	svc, pool := newIntegrationService(t)
	createVoucher(t, svc, "ONCE", 1, 1)
	userID := helpers.CreateUser(t, pool, models.RolePassenger)
	rideID := uuid.New()

	_, err := svc.Redeem(context.Background(), "ONCE", 40, userID, rideID)
	require.NoError(t, err)
	require.NoError(t, svc.Release(context.Background(), "ONCE", userID, rideID))

	used, usages := usedCount(t, pool, "ONCE")
	assert.Zero(t, used)
	assert.Zero(t, usages)

	_, err = svc.Redeem(context.Background(), "ONCE", 40, userID, uuid.New())
	assert.NoError(t, err)
}
