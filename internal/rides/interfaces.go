package rides

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/cancellation"
	"github.com/richxcame/ridecore/internal/drivers"
	"github.com/richxcame/ridecore/internal/pricing"
	"github.com/richxcame/ridecore/internal/vouchers"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/models"
)

// UserDirectory resolves identities and driver state.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetOnlineDriversNear(ctx context.Context, p geo.Point) ([]drivers.NearbyDriver, error)
	SetDriverLocation(ctx context.Context, driverID uuid.UUID, p geo.Point) error
	IncrementDriverStats(ctx context.Context, driverID uuid.UUID, fareEarned float64, points int) error
	ApplyRating(ctx context.Context, userID uuid.UUID, role models.UserRole, rating int) (float64, error)
	DriverLocation(ctx context.Context, driverID uuid.UUID) (geo.Point, error)
}

// CancellationReasonCatalog validates reasons and counts driver cancellations.
type CancellationReasonCatalog interface {
	FindActiveReason(ctx context.Context, id uuid.UUID, userType cancellation.UserType) (*cancellation.Reason, error)
	CountDriverCancellationsToday(ctx context.Context, driverID uuid.UUID, now time.Time) (int, error)
}

// PricingConfigProvider returns the pricing in effect at a pickup point. It
// never fails; defaults apply when the store is unavailable.
type PricingConfigProvider interface {
	ResolveForPoint(ctx context.Context, p geo.Point) pricing.Config
}

// Ledger moves money between wallets.
type Ledger interface {
	Credit(ctx context.Context, userID uuid.UUID, amount float64, txType models.TransactionType, rideID *uuid.UUID, description string) (*models.Wallet, error)
	Debit(ctx context.Context, userID uuid.UUID, amount float64, rideID *uuid.UUID, description string, allowOverdraft bool) (*models.Wallet, error)
	Balance(ctx context.Context, userID uuid.UUID) (float64, error)
}

// VoucherEngine redeems and releases voucher usages for a ride.
type VoucherEngine interface {
	Redeem(ctx context.Context, code string, rideAmount float64, userID, rideID uuid.UUID) (*vouchers.Pricing, error)
	Release(ctx context.Context, code string, userID, rideID uuid.UUID) error
}
