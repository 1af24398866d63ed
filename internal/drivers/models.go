package drivers

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/geo"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDriverNotFound   = errors.New("driver not found")
	ErrInvalidLocation  = errors.New("invalid coordinates")
	ErrActiveRideOnline = errors.New("cannot go offline while you have an active ride")
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
	ErrInvalidRole      = errors.New("ratings apply to drivers and passengers only")
	ErrInvalidRadius    = errors.New("pickup radius must be greater than 0 and at most 50 km")
	ErrLocationUnknown  = errors.New("driver location unknown")
)

const maxPickupRadiusKm = 50

// NearbyDriver is an online driver whose own pickup radius covers the search point.
type NearbyDriver struct {
	ID         uuid.UUID `json:"id"`
	Location   geo.Point `json:"location"`
	DistanceKm float64   `json:"distance_km"`
	Rating     float64   `json:"rating"`
}

// ActiveRide identifies the ride a driver is currently serving.
type ActiveRide struct {
	RideID      uuid.UUID
	PassengerID uuid.UUID
	Status      string
}

// OnlineDriver is a row used to rebuild the read model.
type OnlineDriver struct {
	ID             uuid.UUID
	Location       geo.Point
	PickupRadiusKm float64
}

// Earnings is the driver's earnings dashboard.
type Earnings struct {
	Today      float64 `json:"today"`
	Week       float64 `json:"week"`
	Total      float64 `json:"total"`
	TotalRides int     `json:"total_rides"`
	TodayRides int     `json:"today_rides"`
	WeekRides  int     `json:"week_rides"`
	Points     int     `json:"points"`
	Rating     float64 `json:"rating"`
}

type StatusRequest struct {
	IsOnline *bool `json:"is_online" binding:"required"`
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,latitude"`
	Longitude *float64 `json:"longitude" binding:"required,longitude"`
}

type SettingsRequest struct {
	AutoAccept     *bool    `json:"auto_accept"`
	PickupRadiusKm *float64 `json:"pickup_radius_km"`
}

// startOfWeek is local midnight of the most recent Sunday.
func startOfWeek(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
