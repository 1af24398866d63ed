package vouchers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/logger"
	"go.uber.org/zap"
)

// Service handles voucher business logic
type Service struct {
	repo RepositoryInterface
	now  func() time.Time
}

// NewService creates a new voucher service
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NormalizeCode returns the canonical stored form of a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateAndPrice checks code against rideAmount for userID without recording a usage.
func (s *Service) ValidateAndPrice(ctx context.Context, code string, rideAmount float64, userID uuid.UUID) (*Pricing, error) {
	v, err := s.repo.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, voucherError(err)
	}

	uses, err := s.repo.CountUserUsages(ctx, v.ID, userID)
	if err != nil {
		return nil, voucherError(err)
	}

	pricing, err := evaluate(v, uses, rideAmount, s.now())
	if err != nil {
		return nil, voucherError(err)
	}
	return pricing, nil
}

// Redeem validates and records the usage atomically; the caps are re-checked under the row lock.
func (s *Service) Redeem(ctx context.Context, code string, rideAmount float64, userID, rideID uuid.UUID) (*Pricing, error) {
	var pricing *Pricing
	err := s.repo.Redeem(ctx, NormalizeCode(code), userID, rideID, func(v *Voucher, userUses int) error {
		p, err := evaluate(v, userUses, rideAmount, s.now())
		if err != nil {
			return err
		}
		pricing = p
		return nil
	})
	if err != nil {
		return nil, voucherError(err)
	}

	logger.InfoContext(ctx, "voucher redeemed",
		zap.String("code", pricing.Code),
		zap.String("user_id", userID.String()),
		zap.String("ride_id", rideID.String()),
		zap.Float64("discount", pricing.Discount),
	)
	return pricing, nil
}

// MarkUsed records a usage for an already priced ride. It still enforces both caps.
func (s *Service) MarkUsed(ctx context.Context, code string, userID, rideID uuid.UUID) error {
	err := s.repo.Redeem(ctx, NormalizeCode(code), userID, rideID, checkCaps)
	if err != nil {
		return voucherError(err)
	}
	return nil
}

// Release undoes the usage recorded for rideID. Releasing twice is a no-op.
func (s *Service) Release(ctx context.Context, code string, userID, rideID uuid.UUID) error {
	released, err := s.repo.Release(ctx, NormalizeCode(code), userID, rideID)
	if err != nil {
		return common.NewInternalError("failed to release voucher", err)
	}
	if released {
		logger.InfoContext(ctx, "voucher released",
			zap.String("code", NormalizeCode(code)),
			zap.String("ride_id", rideID.String()),
		)
	}
	return nil
}

// ListAvailable returns active, unexpired vouchers the user can still use.
func (s *Service) ListAvailable(ctx context.Context, userID uuid.UUID) ([]*AvailableVoucher, error) {
	vouchers, err := s.repo.ListActive(ctx, s.now())
	if err != nil {
		return nil, common.NewInternalError("failed to list vouchers", err)
	}
	counts, err := s.repo.UserUsageCounts(ctx, userID)
	if err != nil {
		return nil, common.NewInternalError("failed to list vouchers", err)
	}

	available := make([]*AvailableVoucher, 0, len(vouchers))
	for _, v := range vouchers {
		remaining := v.UsagePerUser - counts[v.ID]
		if global := v.UsageLimit - v.UsedCount; global < remaining {
			remaining = global
		}
		if remaining <= 0 {
			continue
		}
		available = append(available, &AvailableVoucher{
			Code:          v.Code,
			DiscountType:  v.DiscountType,
			DiscountValue: v.DiscountValue,
			MaxDiscount:   v.MaxDiscount,
			MinRideAmount: v.MinRideAmount,
			ExpiryDate:    v.ExpiryDate,
			RemainingUses: remaining,
			Description:   v.Description,
		})
	}
	return available, nil
}

// Create adds a voucher. Usage limits default to one.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Voucher, error) {
	if req.DiscountType == DiscountPercentage && req.DiscountValue > 100 {
		return nil, common.NewValidationError("percentage discount cannot exceed 100")
	}
	if !req.ExpiryDate.After(s.now()) {
		return nil, common.NewValidationError("expiry date must be in the future")
	}

	v := &Voucher{
		ID:            uuid.New(),
		Code:          NormalizeCode(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MaxDiscount:   req.MaxDiscount,
		MinRideAmount: req.MinRideAmount,
		ExpiryDate:    req.ExpiryDate,
		UsageLimit:    req.UsageLimit,
		UsagePerUser:  req.UsagePerUser,
		IsActive:      true,
		Description:   req.Description,
	}
	if v.UsageLimit == 0 {
		v.UsageLimit = 1
	}
	if v.UsagePerUser == 0 {
		v.UsagePerUser = 1
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, voucherError(err)
	}
	return v, nil
}

func voucherError(err error) error {
	switch {
	case errors.Is(err, ErrVoucherNotFound):
		return common.NewNotFoundError("voucher not found", err).WithCode("VOUCHER_NOT_FOUND")
	case errors.Is(err, ErrVoucherExpired):
		return common.NewBadRequestError("voucher has expired", err).WithCode("VOUCHER_EXPIRED")
	case errors.Is(err, ErrMinimumAmountNotMet):
		return common.NewBadRequestError("ride amount is below the voucher minimum", err).WithCode("VOUCHER_MINIMUM_NOT_MET")
	case errors.Is(err, ErrUsageLimitReached):
		return common.NewBadRequestError("voucher usage limit reached", err).WithCode("VOUCHER_LIMIT_REACHED")
	case errors.Is(err, ErrAlreadyUsedByUser):
		return common.NewBadRequestError("you have already used this voucher", err).WithCode("VOUCHER_ALREADY_USED")
	case errors.Is(err, ErrCodeTaken):
		return common.NewConflictError("voucher code already exists", err)
	default:
		return common.NewInternalError("voucher operation failed", err)
	}
}
