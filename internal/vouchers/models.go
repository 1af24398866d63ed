package vouchers

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVoucherNotFound     = errors.New("voucher not found")
	ErrVoucherExpired      = errors.New("voucher has expired")
	ErrMinimumAmountNotMet = errors.New("ride amount is below the voucher minimum")
	ErrUsageLimitReached   = errors.New("voucher usage limit reached")
	ErrAlreadyUsedByUser   = errors.New("voucher already used by this user")
	ErrCodeTaken           = errors.New("voucher code already exists")
)

// DiscountType selects how DiscountValue is applied.
type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// Voucher is a discount code. UsedCount always equals the number of usage rows.
type Voucher struct {
	ID            uuid.UUID    `json:"id"`
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	MaxDiscount   *float64     `json:"max_discount,omitempty"`
	MinRideAmount float64      `json:"min_ride_amount"`
	ExpiryDate    time.Time    `json:"expiry_date"`
	UsageLimit    int          `json:"usage_limit"`
	UsagePerUser  int          `json:"usage_per_user"`
	UsedCount     int          `json:"used_count"`
	IsActive      bool         `json:"is_active"`
	Description   string       `json:"description,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Usage records one redemption.
type Usage struct {
	VoucherID uuid.UUID `json:"voucher_id"`
	UserID    uuid.UUID `json:"user_id"`
	RideID    uuid.UUID `json:"ride_id"`
	UsedAt    time.Time `json:"used_at"`
}

// Pricing is the outcome of applying a voucher to a ride amount.
type Pricing struct {
	VoucherID      uuid.UUID `json:"voucher_id"`
	Code           string    `json:"code"`
	OriginalAmount float64   `json:"original_amount"`
	Discount       float64   `json:"discount"`
	FinalAmount    float64   `json:"final_amount"`
}

// CheckFunc runs against the locked voucher row and the user's current usage count.
type CheckFunc func(v *Voucher, userUses int) error

type ApplyRequest struct {
	Code       string  `json:"code" binding:"required"`
	RideAmount float64 `json:"ride_amount" binding:"required,gt=0"`
}

type CreateRequest struct {
	Code          string       `json:"code" binding:"required,min=3,max=32"`
	DiscountType  DiscountType `json:"discount_type" binding:"required,oneof=fixed percentage"`
	DiscountValue float64      `json:"discount_value" binding:"required,gt=0"`
	MaxDiscount   *float64     `json:"max_discount" binding:"omitempty,gt=0"`
	MinRideAmount float64      `json:"min_ride_amount" binding:"gte=0"`
	ExpiryDate    time.Time    `json:"expiry_date" binding:"required"`
	UsageLimit    int          `json:"usage_limit" binding:"omitempty,gte=1"`
	UsagePerUser  int          `json:"usage_per_user" binding:"omitempty,gte=1"`
	Description   string       `json:"description"`
}

// AvailableVoucher is what a passenger sees in their voucher list.
type AvailableVoucher struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	MaxDiscount   *float64     `json:"max_discount,omitempty"`
	MinRideAmount float64      `json:"min_ride_amount"`
	ExpiryDate    time.Time    `json:"expiry_date"`
	RemainingUses int          `json:"remaining_uses"`
	Description   string       `json:"description,omitempty"`
}
