package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/ridecore/pkg/database"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/models"
)

// RepositoryInterface defines the persistence operations of the user directory
type RepositoryInterface interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLocation(ctx context.Context, driverID uuid.UUID, p geo.Point) (*models.DriverState, error)
	SetOnline(ctx context.Context, driverID uuid.UUID, online bool) (*models.DriverState, error)
	UpdateSettings(ctx context.Context, driverID uuid.UUID, autoAccept *bool, pickupRadiusKm *float64) (*models.DriverState, error)
	ActiveRide(ctx context.Context, driverID uuid.UUID) (*ActiveRide, error)
	IncrementStats(ctx context.Context, driverID uuid.UUID, fareEarned float64, points int) error
	ApplyRating(ctx context.Context, userID uuid.UUID, role models.UserRole, rating int) (float64, error)
	Ratings(ctx context.Context, driverIDs []uuid.UUID) (map[uuid.UUID]float64, error)
	CompletedRidesSince(ctx context.Context, driverID uuid.UUID, since time.Time) (int, error)
	ListOnline(ctx context.Context) ([]OnlineDriver, error)
}

// Repository handles user directory data access
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new user directory repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const driverStateColumns = `is_online, lat, lon, location_updated_at, pickup_radius_km, auto_accept,
	earnings_today, earnings_week, earnings_total, total_rides, rating, total_ratings, points`

func scanDriverState(row pgx.Row) (*models.DriverState, error) {
	ds := &models.DriverState{}
	err := row.Scan(&ds.IsOnline, &ds.Latitude, &ds.Longitude, &ds.LocationUpdatedAt, &ds.PickupRadiusKm,
		&ds.AutoAccept, &ds.EarningsToday, &ds.EarningsWeek, &ds.EarningsTotal, &ds.TotalRides,
		&ds.Rating, &ds.TotalRatings, &ds.Points)
	return ds, err
}

// GetUser loads the identity and the state matching its role.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, role, full_name, email, phone, profile_image, created_at
		FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Role, &user.FullName, &user.Email, &user.Phone, &user.ProfileImage, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	switch user.Role {
	case models.RoleDriver:
		ds, err := scanDriverState(r.db.QueryRow(ctx,
			`SELECT `+driverStateColumns+` FROM driver_states WHERE user_id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			ds = &models.DriverState{}
		} else if err != nil {
			return nil, fmt.Errorf("failed to get driver state: %w", err)
		}
		user.Driver = ds
	case models.RolePassenger:
		ps := &models.PassengerState{}
		err := r.db.QueryRow(ctx,
			`SELECT rating, total_ratings FROM passenger_states WHERE user_id = $1`, id,
		).Scan(&ps.Rating, &ps.TotalRatings)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to get passenger state: %w", err)
		}
		user.Passenger = ps
	}
	return user, nil
}

func (r *Repository) UpdateLocation(ctx context.Context, driverID uuid.UUID, p geo.Point) (*models.DriverState, error) {
	ds, err := scanDriverState(r.db.QueryRow(ctx, `
		UPDATE driver_states SET lat = $2, lon = $3, location_updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+driverStateColumns, driverID, p.Latitude, p.Longitude))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update driver location: %w", err)
	}
	return ds, nil
}

// SetOnline refuses to take a driver offline while a ride is active. The driver
// row is locked so the check and the update see the same state.
func (r *Repository) SetOnline(ctx context.Context, driverID uuid.UUID, online bool) (*models.DriverState, error) {
	var ds *models.DriverState
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT true FROM driver_states WHERE user_id = $1 FOR UPDATE`, driverID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDriverNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock driver state: %w", err)
		}

		if !online {
			var active bool
			err := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM rides WHERE driver_id = $1 AND status IN ('accepted', 'started', 'arrived'))`,
				driverID).Scan(&active)
			if err != nil {
				return fmt.Errorf("failed to check active ride: %w", err)
			}
			if active {
				return ErrActiveRideOnline
			}
		}

		ds, err = scanDriverState(tx.QueryRow(ctx, `
			UPDATE driver_states SET is_online = $2 WHERE user_id = $1
			RETURNING `+driverStateColumns, driverID, online))
		if err != nil {
			return fmt.Errorf("failed to update driver status: %w", err)
		}
		return nil
	})
	return ds, err
}

func (r *Repository) UpdateSettings(ctx context.Context, driverID uuid.UUID, autoAccept *bool, pickupRadiusKm *float64) (*models.DriverState, error) {
	ds, err := scanDriverState(r.db.QueryRow(ctx, `
		UPDATE driver_states SET
			auto_accept = COALESCE($2, auto_accept),
			pickup_radius_km = COALESCE($3, pickup_radius_km)
		WHERE user_id = $1
		RETURNING `+driverStateColumns, driverID, autoAccept, pickupRadiusKm))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update driver settings: %w", err)
	}
	return ds, nil
}

// ActiveRide returns nil when the driver has no accepted, started or arrived ride.
func (r *Repository) ActiveRide(ctx context.Context, driverID uuid.UUID) (*ActiveRide, error) {
	ar := &ActiveRide{}
	err := r.db.QueryRow(ctx, `
		SELECT id, passenger_id, status FROM rides
		WHERE driver_id = $1 AND status IN ('accepted', 'started', 'arrived')
		LIMIT 1`, driverID,
	).Scan(&ar.RideID, &ar.PassengerID, &ar.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active ride: %w", err)
	}
	return ar, nil
}

func (r *Repository) IncrementStats(ctx context.Context, driverID uuid.UUID, fareEarned float64, points int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE driver_states SET
			earnings_today = earnings_today + $2,
			earnings_week = earnings_week + $2,
			earnings_total = earnings_total + $2,
			total_rides = total_rides + 1,
			points = points + $3
		WHERE user_id = $1`, driverID, fareEarned, points)
	if err != nil {
		return fmt.Errorf("failed to increment driver stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

// ApplyRating folds rating into the role's running average under a row lock
// and returns the new average.
func (r *Repository) ApplyRating(ctx context.Context, userID uuid.UUID, role models.UserRole, rating int) (float64, error) {
	var table string
	switch role {
	case models.RoleDriver:
		table = "driver_states"
	case models.RolePassenger:
		table = "passenger_states"
	default:
		return 0, ErrInvalidRole
	}

	var avg float64
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if role == models.RolePassenger {
			if _, err := tx.Exec(ctx,
				`INSERT INTO passenger_states (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
				return fmt.Errorf("failed to ensure passenger state: %w", err)
			}
		}

		var current float64
		var n int
		err := tx.QueryRow(ctx,
			`SELECT rating, total_ratings FROM `+table+` WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&current, &n)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock rating row: %w", err)
		}

		avg = models.RunningAverage(current, n, rating)
		_, err = tx.Exec(ctx,
			`UPDATE `+table+` SET rating = $2, total_ratings = total_ratings + 1 WHERE user_id = $1`,
			userID, avg)
		if err != nil {
			return fmt.Errorf("failed to update rating: %w", err)
		}
		return nil
	})
	return avg, err
}

func (r *Repository) Ratings(ctx context.Context, driverIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	out := make(map[uuid.UUID]float64, len(driverIDs))
	if len(driverIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT user_id, rating FROM driver_states WHERE user_id = ANY($1)`, driverIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load driver ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var rating float64
		if err := rows.Scan(&id, &rating); err != nil {
			return nil, fmt.Errorf("failed to scan driver rating: %w", err)
		}
		out[id] = rating
	}
	return out, rows.Err()
}

func (r *Repository) CompletedRidesSince(ctx context.Context, driverID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM rides
		WHERE driver_id = $1 AND status = 'completed' AND completed_at >= $2`,
		driverID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed rides: %w", err)
	}
	return n, nil
}

// ListOnline returns online drivers with a known position.
func (r *Repository) ListOnline(ctx context.Context) ([]OnlineDriver, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, lat, lon, pickup_radius_km FROM driver_states
		WHERE is_online = true AND lat IS NOT NULL AND lon IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list online drivers: %w", err)
	}
	defer rows.Close()

	var out []OnlineDriver
	for rows.Next() {
		var d OnlineDriver
		if err := rows.Scan(&d.ID, &d.Location.Latitude, &d.Location.Longitude, &d.PickupRadiusKm); err != nil {
			return nil, fmt.Errorf("failed to scan online driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
