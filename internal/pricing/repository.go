package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface is the pricing store.
type RepositoryInterface interface {
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error
	ListActiveCities(ctx context.Context) ([]*City, error)
	ListCities(ctx context.Context) ([]*City, error)
	GetCity(ctx context.Context, id uuid.UUID) (*City, error)
	CreateCity(ctx context.Context, c *City) error
	UpdateCity(ctx context.Context, c *City) error
}

// Repository handles database operations for pricing
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new pricing repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const settingsColumns = `base_fare, price_per_km, price_per_minute, min_fare,
	economy_multiplier, comfort_multiplier, premium_multiplier,
	surge_multiplier, is_surge_active, app_commission, updated_at`

const cityColumns = `id, name, name_ar, is_active, base_fare, price_per_km, price_per_minute,
	min_fare, center_lat, center_lon, radius_km, created_at, updated_at`

// GetSettings returns nil without error when no settings row exists.
func (r *Repository) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := r.db.QueryRow(ctx, `SELECT `+settingsColumns+` FROM pricing_settings WHERE id = 1`).Scan(
		&s.BaseFare, &s.PricePerKm, &s.PricePerMinute, &s.MinFare,
		&s.VehicleMultipliers.Economy, &s.VehicleMultipliers.Comfort, &s.VehicleMultipliers.Premium,
		&s.SurgeMultiplier, &s.IsSurgeActive, &s.AppCommission, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts the single settings row.
func (r *Repository) SaveSettings(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO pricing_settings (id, base_fare, price_per_km, price_per_minute, min_fare,
			economy_multiplier, comfort_multiplier, premium_multiplier,
			surge_multiplier, is_surge_active, app_commission, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			base_fare = EXCLUDED.base_fare,
			price_per_km = EXCLUDED.price_per_km,
			price_per_minute = EXCLUDED.price_per_minute,
			min_fare = EXCLUDED.min_fare,
			economy_multiplier = EXCLUDED.economy_multiplier,
			comfort_multiplier = EXCLUDED.comfort_multiplier,
			premium_multiplier = EXCLUDED.premium_multiplier,
			surge_multiplier = EXCLUDED.surge_multiplier,
			is_surge_active = EXCLUDED.is_surge_active,
			app_commission = EXCLUDED.app_commission,
			updated_at = NOW()
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		s.BaseFare, s.PricePerKm, s.PricePerMinute, s.MinFare,
		s.VehicleMultipliers.Economy, s.VehicleMultipliers.Comfort, s.VehicleMultipliers.Premium,
		s.SurgeMultiplier, s.IsSurgeActive, s.AppCommission,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pricing settings: %w", err)
	}
	return nil
}

// ListActiveCities returns active cities oldest first, the order geofences are matched in.
func (r *Repository) ListActiveCities(ctx context.Context) ([]*City, error) {
	return r.queryCities(ctx, `SELECT `+cityColumns+` FROM cities WHERE is_active = true ORDER BY created_at ASC`)
}

func (r *Repository) ListCities(ctx context.Context) ([]*City, error) {
	return r.queryCities(ctx, `SELECT `+cityColumns+` FROM cities ORDER BY created_at ASC`)
}

func (r *Repository) GetCity(ctx context.Context, id uuid.UUID) (*City, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cityColumns+` FROM cities WHERE id = $1`, id)
	city, err := scanCity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get city: %w", err)
	}
	return city, nil
}

func (r *Repository) CreateCity(ctx context.Context, c *City) error {
	query := `
		INSERT INTO cities (id, name, name_ar, is_active, base_fare, price_per_km, price_per_minute,
			min_fare, center_lat, center_lon, radius_km, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		c.ID, c.Name, c.NameAr, c.IsActive, c.BaseFare, c.PricePerKm, c.PricePerMinute,
		c.MinFare, c.CenterLat, c.CenterLon, c.RadiusKm,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create city: %w", err)
	}
	return nil
}

func (r *Repository) UpdateCity(ctx context.Context, c *City) error {
	query := `
		UPDATE cities SET name = $2, name_ar = $3, is_active = $4, base_fare = $5,
			price_per_km = $6, price_per_minute = $7, min_fare = $8,
			center_lat = $9, center_lon = $10, radius_km = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		c.ID, c.Name, c.NameAr, c.IsActive, c.BaseFare, c.PricePerKm, c.PricePerMinute,
		c.MinFare, c.CenterLat, c.CenterLon, c.RadiusKm,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCityNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update city: %w", err)
	}
	return nil
}

func (r *Repository) queryCities(ctx context.Context, query string) ([]*City, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	defer rows.Close()

	var cities []*City
	for rows.Next() {
		city, err := scanCity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan city: %w", err)
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

func scanCity(row pgx.Row) (*City, error) {
	var c City
	err := row.Scan(&c.ID, &c.Name, &c.NameAr, &c.IsActive, &c.BaseFare, &c.PricePerKm,
		&c.PricePerMinute, &c.MinFare, &c.CenterLat, &c.CenterLon, &c.RadiusKm,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
