package rides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/ridecore/internal/notifications"
	"github.com/richxcame/ridecore/pkg/database"
	"github.com/richxcame/ridecore/pkg/models"
)

const (
	passengerActiveIndex = "rides_one_active_per_passenger"
	driverActiveIndex    = "rides_one_active_per_driver"
)

// RepositoryInterface defines the persistence operations of the ride lifecycle.
// Every mutation is conditional on the ride's current state and appends its
// notifications in the same transaction.
type RepositoryInterface interface {
	CreateRide(ctx context.Context, ride *models.Ride, events ...notifications.Event) error
	GetRide(ctx context.Context, id uuid.UUID) (*models.Ride, error)
	GetActiveRide(ctx context.Context, userID uuid.UUID, role models.UserRole) (*models.Ride, error)
	ListHistory(ctx context.Context, userID uuid.UUID, role models.UserRole, limit, offset int) ([]*models.Ride, int64, error)
	ListPendingRides(ctx context.Context, now time.Time, limit int) ([]*models.Ride, error)
	AcceptRide(ctx context.Context, rideID, driverID uuid.UUID, fare FareUpdate, at time.Time, events EventsFunc) (*models.Ride, error)
	Advance(ctx context.Context, rideID, driverID uuid.UUID, step Step, at time.Time, events EventsFunc) (*models.Ride, error)
	CancelRide(ctx context.Context, rideID uuid.UUID, c Cancellation, events EventsFunc) (*models.Ride, models.RideStatus, error)
	RateRide(ctx context.Context, rideID, raterID uuid.UUID, raterRole models.UserRole, rating int, review *string) error
	RecordSafetyResponse(ctx context.Context, rideID, driverID uuid.UUID, emergency bool, at time.Time, events EventsFunc) (*models.Ride, error)
	UpdateMeter(ctx context.Context, rideID, driverID uuid.UUID, distanceKm float64) (*models.Ride, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Ride, error)
	MarkDispatched(ctx context.Context, rideID uuid.UUID, at time.Time, events ...notifications.Event) (bool, error)
}

// Repository handles ride data access
type Repository struct {
	db     *pgxpool.Pool
	outbox *notifications.Outbox
}

// NewRepository creates a new rides repository
func NewRepository(db *pgxpool.Pool, outbox *notifications.Outbox) *Repository {
	return &Repository{db: db, outbox: outbox}
}

const rideColumns = `id, passenger_id, driver_id,
	pickup_address, pickup_lat, pickup_lon, dropoff_address, dropoff_lat, dropoff_lon, stops,
	vehicle_type, distance_km, duration_minutes, base_fare, voucher_code, voucher_discount,
	wallet_amount_used, final_fare, payment_method, payment_status,
	status, accepted_at, started_at, arrived_at, completed_at, cancelled_at,
	cancelled_by, cancellation_reason_id, cancellation_reason,
	is_scheduled, scheduled_time, dispatched_at,
	driver_rating, driver_review, passenger_rating, passenger_review,
	has_rest_stop, rest_stop_lat, rest_stop_lon, safety_responded, safety_response_time, safety_emergency,
	is_meter_mode, meter_start_time, meter_distance_km, is_round_trip,
	created_at, updated_at`

func scanRide(row pgx.Row) (*models.Ride, error) {
	r := &models.Ride{}
	var stops []byte
	err := row.Scan(
		&r.ID, &r.PassengerID, &r.DriverID,
		&r.Pickup.Address, &r.Pickup.Latitude, &r.Pickup.Longitude,
		&r.Dropoff.Address, &r.Dropoff.Latitude, &r.Dropoff.Longitude, &stops,
		&r.VehicleType, &r.DistanceKm, &r.DurationMinutes, &r.BaseFare, &r.VoucherCode, &r.VoucherDiscount,
		&r.WalletAmount, &r.FinalFare, &r.PaymentMethod, &r.PaymentStatus,
		&r.Status, &r.AcceptedAt, &r.StartedAt, &r.ArrivedAt, &r.CompletedAt, &r.CancelledAt,
		&r.CancelledBy, &r.CancellationReasonID, &r.CancellationReason,
		&r.IsScheduled, &r.ScheduledTime, &r.DispatchedAt,
		&r.DriverRating, &r.DriverReview, &r.PassengerRating, &r.PassengerReview,
		&r.HasRestStop, &r.RestStopLatitude, &r.RestStopLongitude, &r.SafetyResponded, &r.SafetyResponseTime, &r.SafetyEmergency,
		&r.IsMeterMode, &r.MeterStartTime, &r.MeterDistanceKm, &r.IsRoundTrip,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Stops = []models.Stop{}
	if len(stops) > 0 {
		if err := json.Unmarshal(stops, &r.Stops); err != nil {
			return nil, fmt.Errorf("failed to decode stops: %w", err)
		}
	}
	return r, nil
}

func (r *Repository) queryRides(ctx context.Context, query string, args ...interface{}) ([]*models.Ride, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rides: %w", err)
	}
	defer rows.Close()

	rides := []*models.Ride{}
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// CreateRide inserts a pending ride. The passenger's active-ride index turns a
// concurrent second request into ErrAlreadyHasActiveRide.
func (r *Repository) CreateRide(ctx context.Context, ride *models.Ride, events ...notifications.Event) error {
	stops, err := json.Marshal(ride.Stops)
	if err != nil {
		return fmt.Errorf("failed to encode stops: %w", err)
	}

	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rides (
				id, passenger_id,
				pickup_address, pickup_lat, pickup_lon, dropoff_address, dropoff_lat, dropoff_lon, stops,
				vehicle_type, distance_km, duration_minutes, base_fare, voucher_code, voucher_discount,
				wallet_amount_used, final_fare, payment_method, payment_status, status,
				is_scheduled, scheduled_time, dispatched_at,
				has_rest_stop, rest_stop_lat, rest_stop_lon, is_meter_mode, is_round_trip,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $29
			)`,
			ride.ID, ride.PassengerID,
			ride.Pickup.Address, ride.Pickup.Latitude, ride.Pickup.Longitude,
			ride.Dropoff.Address, ride.Dropoff.Latitude, ride.Dropoff.Longitude, stops,
			ride.VehicleType, ride.DistanceKm, ride.DurationMinutes, ride.BaseFare, ride.VoucherCode, ride.VoucherDiscount,
			ride.WalletAmount, ride.FinalFare, ride.PaymentMethod, ride.PaymentStatus, ride.Status,
			ride.IsScheduled, ride.ScheduledTime, ride.DispatchedAt,
			ride.HasRestStop, ride.RestStopLatitude, ride.RestStopLongitude, ride.IsMeterMode, ride.IsRoundTrip,
			ride.CreatedAt,
		)
		if database.IsUniqueViolation(err, passengerActiveIndex) {
			return ErrAlreadyHasActiveRide
		}
		if err != nil {
			return fmt.Errorf("failed to create ride: %w", err)
		}
		return r.outbox.AppendTx(ctx, tx, events...)
	})
}

func (r *Repository) GetRide(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	ride, err := scanRide(r.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	return ride, nil
}

// GetActiveRide returns the ride occupying the user, or nil.
func (r *Repository) GetActiveRide(ctx context.Context, userID uuid.UUID, role models.UserRole) (*models.Ride, error) {
	column, statuses := "passenger_id", models.ActiveRideStatuses
	if role == models.RoleDriver {
		column, statuses = "driver_id", models.DriverActiveRideStatuses
	}

	ride, err := scanRide(r.db.QueryRow(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE `+column+` = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`, userID, statusStrings(statuses)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active ride: %w", err)
	}
	return ride, nil
}

// ListHistory returns finished rides, newest first, with the total count.
func (r *Repository) ListHistory(ctx context.Context, userID uuid.UUID, role models.UserRole, limit, offset int) ([]*models.Ride, int64, error) {
	column := "passenger_id"
	if role == models.RoleDriver {
		column = "driver_id"
	}
	where := ` WHERE ` + column + ` = $1 AND status IN ('completed', 'cancelled')`

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM rides`+where, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	rides, err := r.queryRides(ctx, `SELECT `+rideColumns+` FROM rides`+where+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return rides, total, nil
}

// ListPendingRides returns unassigned rides open for acceptance, oldest first.
// Scheduled rides appear once their time has come.
func (r *Repository) ListPendingRides(ctx context.Context, now time.Time, limit int) ([]*models.Ride, error) {
	return r.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE status = 'pending' AND driver_id IS NULL
		  AND (is_scheduled = false OR scheduled_time <= $1)
		ORDER BY created_at ASC
		LIMIT $2`, now, limit)
}

// AcceptRide assigns the driver with a compare-and-swap on the pending,
// unassigned row. A lost race is reported after re-reading the ride.
func (r *Repository) AcceptRide(ctx context.Context, rideID, driverID uuid.UUID, fare FareUpdate, at time.Time, events EventsFunc) (*models.Ride, error) {
	var ride *models.Ride
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		ride, err = scanRide(tx.QueryRow(ctx, `
			UPDATE rides
			SET status = 'accepted', driver_id = $2, accepted_at = $3, updated_at = $3,
			    distance_km = $4, duration_minutes = $5, base_fare = $6,
			    wallet_amount_used = LEAST(wallet_amount_used, GREATEST($6 - voucher_discount, 0)),
			    final_fare = GREATEST($6 - voucher_discount - wallet_amount_used, 0)
			WHERE id = $1 AND status = 'pending' AND driver_id IS NULL
			RETURNING `+rideColumns,
			rideID, driverID, at, fare.DistanceKm, fare.DurationMinutes, fare.BaseFare))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.acceptConflict(ctx, tx, rideID)
		}
		if database.IsUniqueViolation(err, driverActiveIndex) {
			return ErrAlreadyHasActiveRide
		}
		if err != nil {
			return fmt.Errorf("failed to accept ride: %w", err)
		}
		return r.appendFor(ctx, tx, ride, events)
	})
	if err != nil {
		return nil, err
	}
	return ride, nil
}

func (r *Repository) acceptConflict(ctx context.Context, tx pgx.Tx, rideID uuid.UUID) error {
	var status models.RideStatus
	var driverID *uuid.UUID
	err := tx.QueryRow(ctx, `SELECT status, driver_id FROM rides WHERE id = $1`, rideID).Scan(&status, &driverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRideNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to re-read ride: %w", err)
	}
	if driverID != nil {
		return ErrRideAlreadyAssigned
	}
	return ErrRideNotPending
}

// stepSQL holds the SET clause and the state guard for each step.
var stepSQL = map[Step]struct{ set, guard string }{
	StepArrivePickup: {
		set:   `status = 'arrived', arrived_at = $3`,
		guard: `status = 'accepted'`,
	},
	StepStart: {
		set:   `status = 'started', started_at = $3, meter_start_time = CASE WHEN is_meter_mode THEN $3 ELSE meter_start_time END`,
		guard: `status IN ('accepted', 'arrived') AND started_at IS NULL`,
	},
	StepArriveDestination: {
		set:   `status = 'arrived', arrived_at = $3`,
		guard: `status = 'started'`,
	},
	StepComplete: {
		set:   `status = 'completed', completed_at = $3, payment_status = CASE WHEN payment_method = 'cash' THEN 'paid' ELSE 'pending' END`,
		guard: `status IN ('started', 'arrived') AND started_at IS NOT NULL`,
	},
}

// Advance runs a driver step guarded by the ride's current state.
func (r *Repository) Advance(ctx context.Context, rideID, driverID uuid.UUID, step Step, at time.Time, events EventsFunc) (*models.Ride, error) {
	q, ok := stepSQL[step]
	if !ok {
		return nil, fmt.Errorf("unknown ride step %q", step)
	}

	var ride *models.Ride
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		ride, err = scanRide(tx.QueryRow(ctx, `
			UPDATE rides SET `+q.set+`, updated_at = $3
			WHERE id = $1 AND driver_id = $2 AND `+q.guard+`
			RETURNING `+rideColumns, rideID, driverID, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.guardFailure(ctx, tx, rideID, driverID, ErrInvalidStatusForTransition)
		}
		if err != nil {
			return fmt.Errorf("failed to %s ride: %w", step, err)
		}
		return r.appendFor(ctx, tx, ride, events)
	})
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// guardFailure explains why a guarded update touched no row.
func (r *Repository) guardFailure(ctx context.Context, tx pgx.Tx, rideID, driverID uuid.UUID, stateErr error) error {
	var assigned *uuid.UUID
	err := tx.QueryRow(ctx, `SELECT driver_id FROM rides WHERE id = $1`, rideID).Scan(&assigned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRideNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to re-read ride: %w", err)
	}
	if assigned == nil || *assigned != driverID {
		return ErrNotAssignedToRide
	}
	return stateErr
}

// CancelRide locks the ride, checks it is still active and cancels it. The
// status held before cancelling is returned so callers can undo pending-only
// side effects.
func (r *Repository) CancelRide(ctx context.Context, rideID uuid.UUID, c Cancellation, events EventsFunc) (*models.Ride, models.RideStatus, error) {
	var ride *models.Ride
	var previous models.RideStatus
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := scanRide(tx.QueryRow(ctx,
			`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRideNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock ride: %w", err)
		}
		if !canCancel(current, c) {
			if current.Status.IsTerminal() {
				return ErrCannotCancelTerminalRide
			}
			return ErrNotAssignedToRide
		}
		previous = current.Status

		ride, err = scanRide(tx.QueryRow(ctx, `
			UPDATE rides
			SET status = 'cancelled', cancelled_at = $2, cancelled_by = $3,
			    cancellation_reason_id = $4, cancellation_reason = $5, updated_at = $2
			WHERE id = $1
			RETURNING `+rideColumns, rideID, c.At, c.By, c.ReasonID, c.Reason))
		if err != nil {
			return fmt.Errorf("failed to cancel ride: %w", err)
		}
		return r.appendFor(ctx, tx, ride, events)
	})
	if err != nil {
		return nil, "", err
	}
	return ride, previous, nil
}

// canCancel reports whether the actor may cancel the ride in its current state.
func canCancel(r *models.Ride, c Cancellation) bool {
	return !r.Status.IsTerminal() && isCanceller(r, c)
}

// isCanceller reports whether the actor is the party named by c.By.
func isCanceller(r *models.Ride, c Cancellation) bool {
	if c.By == models.CancelledByDriver {
		return r.IsAssignedTo(c.ActorID)
	}
	return r.PassengerID == c.ActorID
}

// RateRide stores the rater's score for the counterpart. The column is written
// at most once.
func (r *Repository) RateRide(ctx context.Context, rideID, raterID uuid.UUID, raterRole models.UserRole, rating int, review *string) error {
	query := `
		UPDATE rides SET driver_rating = $3, driver_review = $4, updated_at = NOW()
		WHERE id = $1 AND passenger_id = $2 AND status = 'completed' AND driver_rating IS NULL`
	if raterRole == models.RoleDriver {
		query = `
		UPDATE rides SET passenger_rating = $3, passenger_review = $4, updated_at = NOW()
		WHERE id = $1 AND driver_id = $2 AND status = 'completed' AND passenger_rating IS NULL`
	}

	tag, err := r.db.Exec(ctx, query, rideID, raterID, rating, review)
	if err != nil {
		return fmt.Errorf("failed to rate ride: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	ride, err := r.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	return rateFailure(ride, raterID, raterRole)
}

func rateFailure(ride *models.Ride, raterID uuid.UUID, raterRole models.UserRole) error {
	if raterRole == models.RoleDriver && !ride.IsAssignedTo(raterID) {
		return ErrNotAssignedToRide
	}
	if raterRole != models.RoleDriver && ride.PassengerID != raterID {
		return ErrNotAssignedToRide
	}
	if ride.Status != models.RideStatusCompleted {
		return ErrInvalidStatusForTransition
	}
	return ErrAlreadyRated
}

func (r *Repository) RecordSafetyResponse(ctx context.Context, rideID, driverID uuid.UUID, emergency bool, at time.Time, events EventsFunc) (*models.Ride, error) {
	var ride *models.Ride
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		ride, err = scanRide(tx.QueryRow(ctx, `
			UPDATE rides
			SET safety_responded = true, safety_response_time = $3,
			    safety_emergency = safety_emergency OR $4, updated_at = $3
			WHERE id = $1 AND driver_id = $2 AND has_rest_stop
			RETURNING `+rideColumns, rideID, driverID, at, emergency))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.guardFailure(ctx, tx, rideID, driverID, ErrNoRestStop)
		}
		if err != nil {
			return fmt.Errorf("failed to record safety response: %w", err)
		}
		return r.appendFor(ctx, tx, ride, events)
	})
	if err != nil {
		return nil, err
	}
	return ride, nil
}

func (r *Repository) UpdateMeter(ctx context.Context, rideID, driverID uuid.UUID, distanceKm float64) (*models.Ride, error) {
	var ride *models.Ride
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		ride, err = scanRide(tx.QueryRow(ctx, `
			UPDATE rides SET meter_distance_km = $3, updated_at = NOW()
			WHERE id = $1 AND driver_id = $2 AND is_meter_mode AND status = 'started'
			RETURNING `+rideColumns, rideID, driverID, distanceKm))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.guardFailure(ctx, tx, rideID, driverID, ErrInvalidStatusForTransition)
		}
		if err != nil {
			return fmt.Errorf("failed to update meter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// ListDueScheduled returns scheduled pending rides whose time has come and
// which have not been announced to drivers yet.
func (r *Repository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Ride, error) {
	return r.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE is_scheduled = true AND status = 'pending'
		  AND dispatched_at IS NULL AND scheduled_time <= $1
		ORDER BY scheduled_time ASC
		LIMIT $2`, now, limit)
}

// MarkDispatched stamps dispatched_at once and appends the ride:new events with it.
// It returns false when another worker got there first or the ride left pending.
func (r *Repository) MarkDispatched(ctx context.Context, rideID uuid.UUID, at time.Time, events ...notifications.Event) (bool, error) {
	marked := false
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE rides SET dispatched_at = $2, updated_at = $2
			WHERE id = $1 AND status = 'pending' AND dispatched_at IS NULL`, rideID, at)
		if err != nil {
			return fmt.Errorf("failed to mark ride dispatched: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		marked = true
		return r.outbox.AppendTx(ctx, tx, events...)
	})
	return marked, err
}

func (r *Repository) appendFor(ctx context.Context, tx pgx.Tx, ride *models.Ride, events EventsFunc) error {
	if events == nil {
		return nil
	}
	evs, err := events(ride)
	if err != nil {
		return err
	}
	return r.outbox.AppendTx(ctx, tx, evs...)
}

func statusStrings(statuses []models.RideStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
