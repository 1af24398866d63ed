package pricing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/models"
)

var (
	ErrCityNotFound      = errors.New("city not found")
	ErrInvalidPricing    = errors.New("pricing values must be non-negative")
	ErrInvalidMultiplier = errors.New("multipliers must be positive")
)

// Source records where a resolved config came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceSettings Source = "settings"
	SourceCity     Source = "city"
)

// VehicleMultipliers scales the fare per service tier.
type VehicleMultipliers struct {
	Economy float64 `json:"economy"`
	Comfort float64 `json:"comfort"`
	Premium float64 `json:"premium"`
}

// For returns the multiplier for vt, 1.0 for an unknown tier.
func (m VehicleMultipliers) For(vt models.VehicleType) float64 {
	switch vt {
	case models.VehicleEconomy:
		return m.Economy
	case models.VehicleComfort:
		return m.Comfort
	case models.VehiclePremium:
		return m.Premium
	default:
		return 1.0
	}
}

// Config is the pricing in effect for one pickup point.
type Config struct {
	BaseFare           float64            `json:"base_fare"`
	PricePerKm         float64            `json:"price_per_km"`
	PricePerMinute     float64            `json:"price_per_minute"`
	MinFare            float64            `json:"min_fare"`
	VehicleMultipliers VehicleMultipliers `json:"vehicle_multipliers"`
	SurgeMultiplier    float64            `json:"surge_multiplier"`
	IsSurgeActive      bool               `json:"is_surge_active"`
	AppCommission      float64            `json:"app_commission"`
	Source             Source             `json:"source"`
	CityID             *uuid.UUID         `json:"city_id,omitempty"`
}

// DefaultConfig is used when no settings row exists or the store is unreachable.
func DefaultConfig() Config {
	return Config{
		BaseFare:       10,
		PricePerKm:     5,
		PricePerMinute: 1,
		MinFare:        15,
		VehicleMultipliers: VehicleMultipliers{
			Economy: 1.0,
			Comfort: 1.3,
			Premium: 1.6,
		},
		SurgeMultiplier: 1.0,
		IsSurgeActive:   false,
		AppCommission:   10,
		Source:          SourceDefault,
	}
}

// Commission returns the platform's cut of fare.
func (c Config) Commission(fare float64) float64 {
	return fare * c.AppCommission / 100
}

// Settings is the single global pricing row.
type Settings struct {
	BaseFare           float64            `json:"base_fare" binding:"gte=0"`
	PricePerKm         float64            `json:"price_per_km" binding:"gte=0"`
	PricePerMinute     float64            `json:"price_per_minute" binding:"gte=0"`
	MinFare            float64            `json:"min_fare" binding:"gte=0"`
	VehicleMultipliers VehicleMultipliers `json:"vehicle_multipliers"`
	SurgeMultiplier    float64            `json:"surge_multiplier" binding:"gte=1"`
	IsSurgeActive      bool               `json:"is_surge_active"`
	AppCommission      float64            `json:"app_commission" binding:"gte=0,lte=100"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (s *Settings) validate() error {
	if s.BaseFare < 0 || s.PricePerKm < 0 || s.PricePerMinute < 0 || s.MinFare < 0 {
		return ErrInvalidPricing
	}
	m := s.VehicleMultipliers
	if m.Economy <= 0 || m.Comfort <= 0 || m.Premium <= 0 || s.SurgeMultiplier <= 0 {
		return ErrInvalidMultiplier
	}
	return nil
}

// City overrides the four money fields inside a circular geofence.
type City struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	NameAr         string    `json:"name_ar"`
	IsActive       bool      `json:"is_active"`
	BaseFare       float64   `json:"base_fare"`
	PricePerKm     float64   `json:"price_per_km"`
	PricePerMinute float64   `json:"price_per_minute"`
	MinFare        float64   `json:"min_fare"`
	CenterLat      float64   `json:"center_lat"`
	CenterLon      float64   `json:"center_lon"`
	RadiusKm       float64   `json:"radius_km"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Covers reports whether p lies inside the city's geofence.
func (c *City) Covers(p geo.Point) bool {
	return geo.IsWithinRadius(geo.Point{Latitude: c.CenterLat, Longitude: c.CenterLon}, p, c.RadiusKm)
}

// CityRequest is the admin payload for creating or updating a city.
type CityRequest struct {
	Name           string   `json:"name" binding:"required"`
	NameAr         string   `json:"name_ar" binding:"required"`
	IsActive       *bool    `json:"is_active"`
	BaseFare       float64  `json:"base_fare" binding:"gte=0"`
	PricePerKm     float64  `json:"price_per_km" binding:"gte=0"`
	PricePerMinute float64  `json:"price_per_minute" binding:"gte=0"`
	MinFare        float64  `json:"min_fare" binding:"gte=0"`
	CenterLat      float64  `json:"center_lat" binding:"gte=-90,lte=90"`
	CenterLon      float64  `json:"center_lon" binding:"gte=-180,lte=180"`
	RadiusKm       *float64 `json:"radius_km" binding:"omitempty,gt=0"`
}

const defaultCityRadiusKm = 10

// QuoteRequest asks for an estimate per vehicle tier.
type QuoteRequest struct {
	Pickup  geo.Point
	Dropoff geo.Point
	Stops   []geo.Point
}

// Estimate is one tier's fare.
type Estimate struct {
	VehicleType models.VehicleType `json:"vehicle_type"`
	Multiplier  float64            `json:"multiplier"`
	Fare        float64            `json:"fare"`
}

// QuoteResponse carries the shared route metrics and one estimate per tier.
type QuoteResponse struct {
	DistanceKm      float64    `json:"distance_km"`
	DurationMinutes int        `json:"duration_minutes"`
	SurgeActive     bool       `json:"surge_active"`
	SurgeMultiplier float64    `json:"surge_multiplier"`
	Source          Source     `json:"source"`
	CityID          *uuid.UUID `json:"city_id,omitempty"`
	Estimates       []Estimate `json:"estimates"`
}
