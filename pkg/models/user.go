package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole represents user role type
type UserRole string

const (
	RolePassenger UserRole = "passenger"
	RoleDriver    UserRole = "driver"
	RoleAdmin     UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RolePassenger, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is the base identity shared by every role. Exactly one of Driver or
// Passenger is populated, matching Role; admins carry neither.
type User struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Role         UserRole        `json:"role" db:"role"`
	FullName     string          `json:"full_name" db:"full_name"`
	Email        string          `json:"email" db:"email"`
	Phone        string          `json:"phone" db:"phone"`
	ProfileImage *string         `json:"profile_image,omitempty" db:"profile_image"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	Driver       *DriverState    `json:"driver,omitempty"`
	Passenger    *PassengerState `json:"passenger,omitempty"`
}

// HasCompleteProfile reports whether the name, email and photo are set; drivers need it to accept rides.
func (u *User) HasCompleteProfile() bool {
	return strings.TrimSpace(u.FullName) != "" &&
		strings.TrimSpace(u.Email) != "" &&
		u.ProfileImage != nil && strings.TrimSpace(*u.ProfileImage) != ""
}

// Rating returns the role-specific average rating, 0 for admins.
func (u *User) Rating() float64 {
	switch {
	case u.Driver != nil:
		return u.Driver.Rating
	case u.Passenger != nil:
		return u.Passenger.Rating
	default:
		return 0
	}
}

// DriverState holds everything that exists only for drivers.
type DriverState struct {
	IsOnline          bool       `json:"is_online" db:"is_online"`
	Latitude          *float64   `json:"latitude,omitempty" db:"lat"`
	Longitude         *float64   `json:"longitude,omitempty" db:"lon"`
	LocationUpdatedAt *time.Time `json:"location_updated_at,omitempty" db:"location_updated_at"`
	PickupRadiusKm    float64    `json:"pickup_radius_km" db:"pickup_radius_km"`
	AutoAccept        bool       `json:"auto_accept" db:"auto_accept"`
	EarningsToday     float64    `json:"earnings_today" db:"earnings_today"`
	EarningsWeek      float64    `json:"earnings_week" db:"earnings_week"`
	EarningsTotal     float64    `json:"earnings_total" db:"earnings_total"`
	TotalRides        int        `json:"total_rides" db:"total_rides"`
	Rating            float64    `json:"rating" db:"rating"`
	TotalRatings      int        `json:"total_ratings" db:"total_ratings"`
	Points            int        `json:"points" db:"points"`
}

// HasLocation reports whether the driver has reported a position.
func (d *DriverState) HasLocation() bool {
	return d.Latitude != nil && d.Longitude != nil
}

type PassengerState struct {
	Rating       float64 `json:"rating" db:"rating"`
	TotalRatings int     `json:"total_ratings" db:"total_ratings"`
}

// RunningAverage folds one more rating into an average over n ratings.
func RunningAverage(avg float64, n int, rating int) float64 {
	return (avg*float64(n) + float64(rating)) / float64(n+1)
}
