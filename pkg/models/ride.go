package models

import (
	"time"

	"github.com/google/uuid"
)

// RideStatus represents the status of a ride
type RideStatus string

const (
	RideStatusPending   RideStatus = "pending"
	RideStatusAccepted  RideStatus = "accepted"
	RideStatusStarted   RideStatus = "started"
	RideStatusArrived   RideStatus = "arrived"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// ActiveRideStatuses are the statuses that occupy a passenger.
var ActiveRideStatuses = []RideStatus{
	RideStatusPending, RideStatusAccepted, RideStatusStarted, RideStatusArrived,
}

// DriverActiveRideStatuses are the statuses that occupy a driver.
var DriverActiveRideStatuses = []RideStatus{
	RideStatusAccepted, RideStatusStarted, RideStatusArrived,
}

// rideTransitions lists every allowed forward move. "arrived" is reached twice:
// at pickup (from accepted) and at the destination (from started).
var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusPending:   {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:  {RideStatusArrived, RideStatusStarted, RideStatusCancelled},
	RideStatusArrived:   {RideStatusStarted, RideStatusCompleted, RideStatusCancelled},
	RideStatusStarted:   {RideStatusArrived, RideStatusCompleted, RideStatusCancelled},
	RideStatusCompleted: nil,
	RideStatusCancelled: nil,
}

// Valid reports whether s is a known status.
func (s RideStatus) Valid() bool {
	_, ok := rideTransitions[s]
	return ok
}

// CanTransition reports whether a ride may move from s to next.
func (s RideStatus) CanTransition(next RideStatus) bool {
	for _, allowed := range rideTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsActive reports whether the ride still occupies its passenger.
func (s RideStatus) IsActive() bool {
	return s.Valid() && !s.IsTerminal()
}

// VehicleType is the requested service tier.
type VehicleType string

const (
	VehicleEconomy VehicleType = "economy"
	VehicleComfort VehicleType = "comfort"
	VehiclePremium VehicleType = "premium"
)

// VehicleTypes lists the tiers in quote order.
var VehicleTypes = []VehicleType{VehicleEconomy, VehicleComfort, VehiclePremium}

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleEconomy, VehicleComfort, VehiclePremium:
		return true
	default:
		return false
	}
}

// PaymentMethod is how the passenger settles the fare.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
	PaymentCard   PaymentMethod = "card"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentWallet, PaymentCard:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// CancelledBy identifies which party cancelled a ride.
type CancelledBy string

const (
	CancelledByPassenger CancelledBy = "passenger"
	CancelledByDriver    CancelledBy = "driver"
)

// Location is an addressed coordinate.
type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Stop is an intermediate waypoint, visited in Order.
type Stop struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Order     int     `json:"order"`
}

// Ride represents a ride in the system
type Ride struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	PassengerID uuid.UUID  `json:"passenger_id" db:"passenger_id"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty" db:"driver_id"`

	Pickup  Location `json:"pickup"`
	Dropoff Location `json:"dropoff"`
	Stops   []Stop   `json:"stops" db:"stops"`

	VehicleType     VehicleType   `json:"vehicle_type" db:"vehicle_type"`
	DistanceKm      float64       `json:"distance_km" db:"distance_km"`
	DurationMinutes int           `json:"duration_minutes" db:"duration_minutes"`
	BaseFare        float64       `json:"base_fare" db:"base_fare"`
	VoucherCode     *string       `json:"voucher_code,omitempty" db:"voucher_code"`
	VoucherDiscount float64       `json:"voucher_discount" db:"voucher_discount"`
	WalletAmount    float64       `json:"wallet_amount_used" db:"wallet_amount_used"`
	FinalFare       float64       `json:"final_fare" db:"final_fare"`
	PaymentMethod   PaymentMethod `json:"payment_method" db:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status" db:"payment_status"`

	Status               RideStatus   `json:"status" db:"status"`
	AcceptedAt           *time.Time   `json:"accepted_at,omitempty" db:"accepted_at"`
	StartedAt            *time.Time   `json:"started_at,omitempty" db:"started_at"`
	ArrivedAt            *time.Time   `json:"arrived_at,omitempty" db:"arrived_at"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt          *time.Time   `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy          *CancelledBy `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReasonID *uuid.UUID   `json:"cancellation_reason_id,omitempty" db:"cancellation_reason_id"`
	CancellationReason   *string      `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	IsScheduled   bool       `json:"is_scheduled" db:"is_scheduled"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty" db:"scheduled_time"`
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`

	DriverRating    *int    `json:"driver_rating,omitempty" db:"driver_rating"`
	DriverReview    *string `json:"driver_review,omitempty" db:"driver_review"`
	PassengerRating *int    `json:"passenger_rating,omitempty" db:"passenger_rating"`
	PassengerReview *string `json:"passenger_review,omitempty" db:"passenger_review"`

	HasRestStop        bool       `json:"has_rest_stop" db:"has_rest_stop"`
	RestStopLatitude   *float64   `json:"rest_stop_latitude,omitempty" db:"rest_stop_lat"`
	RestStopLongitude  *float64   `json:"rest_stop_longitude,omitempty" db:"rest_stop_lon"`
	SafetyResponded    bool       `json:"safety_responded" db:"safety_responded"`
	SafetyResponseTime *time.Time `json:"safety_response_time,omitempty" db:"safety_response_time"`
	SafetyEmergency    bool       `json:"safety_emergency" db:"safety_emergency"`

	IsMeterMode     bool       `json:"is_meter_mode" db:"is_meter_mode"`
	MeterStartTime  *time.Time `json:"meter_start_time,omitempty" db:"meter_start_time"`
	MeterDistanceKm float64    `json:"meter_distance_km" db:"meter_distance_km"`
	IsRoundTrip     bool       `json:"is_round_trip" db:"is_round_trip"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAssignedTo reports whether driverID is the ride's driver.
func (r *Ride) IsAssignedTo(driverID uuid.UUID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

// IsParticipant reports whether userID is the passenger or the assigned driver.
func (r *Ride) IsParticipant(userID uuid.UUID) bool {
	return r.PassengerID == userID || r.IsAssignedTo(userID)
}
