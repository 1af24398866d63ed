package vouchers

import (
	"math"
	"time"
)

// evaluate applies v to rideAmount. Checks run in a fixed order so the caller
// always sees the first failing rule.
func evaluate(v *Voucher, userUses int, rideAmount float64, now time.Time) (*Pricing, error) {
	if v == nil || !v.IsActive {
		return nil, ErrVoucherNotFound
	}
	if now.After(v.ExpiryDate) {
		return nil, ErrVoucherExpired
	}
	if rideAmount < v.MinRideAmount {
		return nil, ErrMinimumAmountNotMet
	}
	if err := checkCaps(v, userUses); err != nil {
		return nil, err
	}

	discount := v.DiscountValue
	if v.DiscountType == DiscountPercentage {
		discount = rideAmount * v.DiscountValue / 100
		if v.MaxDiscount != nil && discount > *v.MaxDiscount {
			discount = *v.MaxDiscount
		}
	}
	discount = math.Min(roundMoney(discount), rideAmount)

	return &Pricing{
		VoucherID:      v.ID,
		Code:           v.Code,
		OriginalAmount: rideAmount,
		Discount:       discount,
		FinalAmount:    roundMoney(rideAmount - discount),
	}, nil
}

func checkCaps(v *Voucher, userUses int) error {
	if v.UsedCount >= v.UsageLimit {
		return ErrUsageLimitReached
	}
	if userUses >= v.UsagePerUser {
		return ErrAlreadyUsedByUser
	}
	return nil
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
