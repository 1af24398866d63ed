package vouchers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/ridecore/pkg/database"
)

// RepositoryInterface is the voucher store.
type RepositoryInterface interface {
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	CountUserUsages(ctx context.Context, voucherID, userID uuid.UUID) (int, error)
	Redeem(ctx context.Context, code string, userID, rideID uuid.UUID, check CheckFunc) error
	Release(ctx context.Context, code string, userID, rideID uuid.UUID) (bool, error)
	ListActive(ctx context.Context, now time.Time) ([]*Voucher, error)
	UserUsageCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)
	Create(ctx context.Context, v *Voucher) error
}

// Repository handles database operations for vouchers
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new voucher repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const voucherColumns = `id, code, discount_type, discount_value, max_discount, min_ride_amount,
	expiry_date, usage_limit, usage_per_user, used_count, is_active, COALESCE(description, ''), created_at`

func scanVoucher(row pgx.Row) (*Voucher, error) {
	v := &Voucher{}
	err := row.Scan(&v.ID, &v.Code, &v.DiscountType, &v.DiscountValue, &v.MaxDiscount, &v.MinRideAmount,
		&v.ExpiryDate, &v.UsageLimit, &v.UsagePerUser, &v.UsedCount, &v.IsActive, &v.Description, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	v, err := scanVoucher(r.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return v, nil
}

func (r *Repository) CountUserUsages(ctx context.Context, voucherID, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM voucher_usages WHERE voucher_id = $1 AND user_id = $2`, voucherID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count voucher usages: %w", err)
	}
	return n, nil
}

// Redeem locks the voucher row, runs check against the locked state, then records
// the usage and bumps used_count. Concurrent redeemers of one code serialize here.
func (r *Repository) Redeem(ctx context.Context, code string, userID, rideID uuid.UUID, check CheckFunc) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		v, err := scanVoucher(tx.QueryRow(ctx,
			`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 FOR UPDATE`, code))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVoucherNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock voucher: %w", err)
		}

		var userUses int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM voucher_usages WHERE voucher_id = $1 AND user_id = $2`, v.ID, userID,
		).Scan(&userUses); err != nil {
			return fmt.Errorf("failed to count voucher usages: %w", err)
		}

		if err := check(v, userUses); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO voucher_usages (voucher_id, user_id, ride_id, used_at) VALUES ($1, $2, $3, NOW())`,
			v.ID, userID, rideID); err != nil {
			return fmt.Errorf("failed to record voucher usage: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE vouchers SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1`, v.ID); err != nil {
			return fmt.Errorf("failed to increment voucher usage: %w", err)
		}
		return nil
	})
}

// Release removes the usage recorded for rideID. It reports whether a usage existed.
func (r *Repository) Release(ctx context.Context, code string, userID, rideID uuid.UUID) (bool, error) {
	released := false
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var voucherID uuid.UUID
		err := tx.QueryRow(ctx, `
			DELETE FROM voucher_usages u
			USING vouchers v
			WHERE u.voucher_id = v.id AND v.code = $1 AND u.user_id = $2 AND u.ride_id = $3
			RETURNING v.id`, code, userID, rideID,
		).Scan(&voucherID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete voucher usage: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE vouchers SET used_count = GREATEST(used_count - 1, 0), updated_at = NOW() WHERE id = $1`,
			voucherID); err != nil {
			return fmt.Errorf("failed to decrement voucher usage: %w", err)
		}
		released = true
		return nil
	})
	return released, err
}

// ListActive returns active, unexpired vouchers with global uses left.
func (r *Repository) ListActive(ctx context.Context, now time.Time) ([]*Voucher, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE is_active = true AND expiry_date > $1 AND used_count < usage_limit
		ORDER BY expiry_date ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (r *Repository) UserUsageCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT voucher_id, COUNT(*) FROM voucher_usages WHERE user_id = $1 GROUP BY voucher_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count voucher usages: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan voucher usage: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (r *Repository) Create(ctx context.Context, v *Voucher) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO vouchers (id, code, discount_type, discount_value, max_discount, min_ride_amount,
			expiry_date, usage_limit, usage_per_user, used_count, is_active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, true, $10, NOW(), NOW())
		RETURNING created_at`,
		v.ID, v.Code, v.DiscountType, v.DiscountValue, v.MaxDiscount, v.MinRideAmount,
		v.ExpiryDate, v.UsageLimit, v.UsagePerUser, v.Description,
	).Scan(&v.CreatedAt)
	if database.IsUniqueViolation(err) {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create voucher: %w", err)
	}
	return nil
}
