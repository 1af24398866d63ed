package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the interface for the cancellation repository
type RepositoryInterface interface {
	GetReason(ctx context.Context, id uuid.UUID) (*Reason, error)
	ListActiveReasons(ctx context.Context, userType UserType) ([]*Reason, error)
	CreateReason(ctx context.Context, r *Reason) error
	CountDriverCancellationsSince(ctx context.Context, driverID uuid.UUID, since time.Time) (int, error)
}

// Repository handles cancellation data access
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new cancellation repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetReason returns nil without error for an unknown ID.
func (r *Repository) GetReason(ctx context.Context, id uuid.UUID) (*Reason, error) {
	reason := &Reason{}
	err := r.db.QueryRow(ctx, `
		SELECT id, reason, reason_ar, user_type, is_active, sort_order, created_at
		FROM cancellation_reasons WHERE id = $1`, id,
	).Scan(&reason.ID, &reason.Reason, &reason.ReasonAr, &reason.UserType,
		&reason.IsActive, &reason.SortOrder, &reason.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cancellation reason: %w", err)
	}
	return reason, nil
}

func (r *Repository) ListActiveReasons(ctx context.Context, userType UserType) ([]*Reason, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, reason, reason_ar, user_type, is_active, sort_order, created_at
		FROM cancellation_reasons
		WHERE user_type = $1 AND is_active = true
		ORDER BY sort_order ASC, created_at ASC`, userType)
	if err != nil {
		return nil, fmt.Errorf("failed to list cancellation reasons: %w", err)
	}
	defer rows.Close()

	reasons := make([]*Reason, 0)
	for rows.Next() {
		reason := &Reason{}
		if err := rows.Scan(&reason.ID, &reason.Reason, &reason.ReasonAr, &reason.UserType,
			&reason.IsActive, &reason.SortOrder, &reason.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cancellation reason: %w", err)
		}
		reasons = append(reasons, reason)
	}
	return reasons, rows.Err()
}

func (r *Repository) CreateReason(ctx context.Context, reason *Reason) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO cancellation_reasons (id, reason, reason_ar, user_type, is_active, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at`,
		reason.ID, reason.Reason, reason.ReasonAr, reason.UserType, reason.IsActive, reason.SortOrder,
	).Scan(&reason.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create cancellation reason: %w", err)
	}
	return nil
}

// CountDriverCancellationsSince counts rides the driver cancelled at or after since.
func (r *Repository) CountDriverCancellationsSince(ctx context.Context, driverID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM rides
		WHERE driver_id = $1 AND status = 'cancelled' AND cancelled_by = 'driver' AND cancelled_at >= $2`,
		driverID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count driver cancellations: %w", err)
	}
	return n, nil
}
