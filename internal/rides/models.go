package rides

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/notifications"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/models"
)

var (
	ErrRideNotFound               = errors.New("ride not found")
	ErrRideNotPending             = errors.New("ride is no longer available")
	ErrRideAlreadyAssigned        = errors.New("ride has already been accepted by another driver")
	ErrNotAssignedToRide          = errors.New("you are not assigned to this ride")
	ErrInvalidStatusForTransition = errors.New("ride status does not allow this action")
	ErrAlreadyHasActiveRide       = errors.New("you already have an active ride")
	ErrDriverProfileIncomplete    = errors.New("complete your profile (name, email and photo) before accepting rides")
	ErrInvalidCancellationReason  = errors.New("invalid cancellation reason")
	ErrCannotCancelTerminalRide   = errors.New("ride is already completed or cancelled")
	ErrAlreadyRated               = errors.New("ride has already been rated")
	ErrRatingOutOfRange           = errors.New("rating must be between 1 and 5")
	ErrNotMeterMode               = errors.New("this ride is not in meter mode")
	ErrNoRestStop                 = errors.New("this ride doesn't have a rest stop")
	ErrInvalidDistance            = errors.New("valid distance is required")
	ErrDriverOffline              = errors.New("you must be online to receive ride requests")
	ErrLocationRequired           = errors.New("please update your location first")
	ErrNoActiveRide               = errors.New("you don't have an active ride")
	ErrInvalidLocation            = errors.New("invalid coordinates")
	ErrInvalidVehicleType         = errors.New("invalid vehicle type")
	ErrInvalidPaymentMethod       = errors.New("invalid payment method")
	ErrScheduledTimeRequired      = errors.New("scheduled_time is required for scheduled rides")
	ErrRestStopLocationRequired   = errors.New("rest stop coordinates are required")
)

const (
	incomingRidesLimit     = 10
	pendingScanLimit       = 200
	defaultUpcomingRadius  = 5.0
	scheduledDispatchBatch = 50

	SafetyResponseOK        = "ok"
	SafetyResponseEmergency = "emergency"
)

// Step is a driver-initiated forward move of an assigned ride.
type Step string

const (
	StepArrivePickup      Step = "arrive_pickup"
	StepStart             Step = "start"
	StepArriveDestination Step = "arrive_destination"
	StepComplete          Step = "complete"
)

// Allows reports whether r is in a state from which the step may run. Start is
// allowed once; complete requires the trip to have started.
func (s Step) Allows(r *models.Ride) bool {
	switch s {
	case StepArrivePickup:
		return r.Status == models.RideStatusAccepted
	case StepStart:
		return (r.Status == models.RideStatusAccepted || r.Status == models.RideStatusArrived) && r.StartedAt == nil
	case StepArriveDestination:
		return r.Status == models.RideStatusStarted
	case StepComplete:
		return (r.Status == models.RideStatusStarted || r.Status == models.RideStatusArrived) && r.StartedAt != nil
	default:
		return false
	}
}

// Target is the status the ride holds after the step.
func (s Step) Target() models.RideStatus {
	switch s {
	case StepStart:
		return models.RideStatusStarted
	case StepComplete:
		return models.RideStatusCompleted
	default:
		return models.RideStatusArrived
	}
}

// Apply mutates r the way the step's UPDATE does.
func (s Step) Apply(r *models.Ride, at time.Time) {
	r.Status = s.Target()
	r.UpdatedAt = at
	switch s {
	case StepArrivePickup, StepArriveDestination:
		r.ArrivedAt = &at
	case StepStart:
		r.StartedAt = &at
		if r.IsMeterMode {
			r.MeterStartTime = &at
		}
	case StepComplete:
		r.CompletedAt = &at
		r.PaymentStatus = models.PaymentStatusPending
		if r.PaymentMethod == models.PaymentCash {
			r.PaymentStatus = models.PaymentStatusPaid
		}
	}
}

// EventsFunc builds the notifications for a ride after its row has been
// updated; it runs inside the same transaction.
type EventsFunc func(r *models.Ride) ([]notifications.Event, error)

// FareUpdate carries the fare recomputed when a driver accepts.
type FareUpdate struct {
	DistanceKm      float64
	DurationMinutes int
	BaseFare        float64
}

// Rebase applies the new base fare to r, keeping the voucher discount. The
// wallet share is capped at what remains due after the discount.
func (f FareUpdate) Rebase(r *models.Ride) {
	r.DistanceKm = f.DistanceKm
	r.DurationMinutes = f.DurationMinutes
	r.BaseFare = f.BaseFare
	due := f.BaseFare - r.VoucherDiscount
	if due < 0 {
		due = 0
	}
	if r.WalletAmount > due {
		r.WalletAmount = due
	}
	r.FinalFare = due - r.WalletAmount
}

// Cancellation describes who cancels and why.
type Cancellation struct {
	By       models.CancelledBy
	ActorID  uuid.UUID
	ReasonID uuid.UUID
	Reason   string
	At       time.Time
}

// LocationInput is an addressed coordinate in a request body.
type LocationInput struct {
	Address   string   `json:"address" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required,latitude"`
	Longitude *float64 `json:"longitude" binding:"required,longitude"`
}

func (l LocationInput) point() geo.Point {
	return geo.Point{Latitude: *l.Latitude, Longitude: *l.Longitude}
}

func (l LocationInput) location() models.Location {
	return models.Location{Address: l.Address, Latitude: *l.Latitude, Longitude: *l.Longitude}
}

// RequestRideRequest is the body of POST /rides.
type RequestRideRequest struct {
	Pickup            LocationInput        `json:"pickup" binding:"required"`
	Dropoff           LocationInput        `json:"dropoff" binding:"required"`
	Stops             []LocationInput      `json:"stops" binding:"omitempty,dive"`
	VehicleType       models.VehicleType   `json:"vehicle_type" binding:"omitempty,vehicle_type"`
	PaymentMethod     models.PaymentMethod `json:"payment_method" binding:"omitempty,payment_method"`
	VoucherCode       string               `json:"voucher_code"`
	UseWallet         bool                 `json:"use_wallet"`
	IsScheduled       bool                 `json:"is_scheduled"`
	ScheduledTime     *time.Time           `json:"scheduled_time"`
	IsRoundTrip       bool                 `json:"is_round_trip"`
	IsMeterMode       bool                 `json:"is_meter_mode"`
	HasRestStop       bool                 `json:"has_rest_stop"`
	RestStopLatitude  *float64             `json:"rest_stop_latitude"`
	RestStopLongitude *float64             `json:"rest_stop_longitude"`
}

// CompleteRideRequest is the body of POST /driver/rides/:id/complete.
type CompleteRideRequest struct {
	AmountPaid        float64 `json:"amount_paid" binding:"gte=0"`
	AddChangeToWallet bool    `json:"add_change_to_wallet"`
}

type CancelRideRequest struct {
	ReasonID string `json:"reason_id" binding:"required,uuid"`
}

type RateRideRequest struct {
	Rating int     `json:"rating" binding:"required"`
	Review *string `json:"review"`
}

type SafetyCheckRequest struct {
	Response string `json:"response" binding:"required,oneof=ok emergency"`
}

type MeterRequest struct {
	DistanceKm float64 `json:"distance_km"`
}

// PricingBreakdown is returned with a new ride.
type PricingBreakdown struct {
	BaseFare         float64 `json:"base_fare"`
	VoucherDiscount  float64 `json:"voucher_discount"`
	WalletAmountUsed float64 `json:"wallet_amount_used"`
	FinalFare        float64 `json:"final_fare"`
}

type RequestResult struct {
	Ride            *models.Ride     `json:"ride"`
	Pricing         PricingBreakdown `json:"pricing"`
	NotifiedDrivers int              `json:"notified_drivers"`
}

type CompleteResult struct {
	Ride             *models.Ride `json:"ride"`
	Commission       float64      `json:"commission"`
	CommissionPaid   bool         `json:"commission_paid"`
	ChangeToWallet   float64      `json:"change_to_wallet"`
	EarningsRecorded bool         `json:"earnings_recorded"`
}

type CancelResult struct {
	Ride            *models.Ride       `json:"ride"`
	CancelledBy     models.CancelledBy `json:"cancelled_by"`
	CancellationFee float64            `json:"cancellation_fee"`
	PenaltyApplied  bool               `json:"penalty_applied"`
	PenaltyAmount   float64            `json:"penalty_amount,omitempty"`
	WalletRefund    float64            `json:"wallet_refund,omitempty"`
}

type RateResult struct {
	RideID        uuid.UUID `json:"ride_id"`
	Rating        int       `json:"rating"`
	RatedUserID   uuid.UUID `json:"rated_user_id"`
	AverageRating float64   `json:"average_rating"`
}

// NearbyRide is a pending ride with its distance from the driver's reference point.
type NearbyRide struct {
	Ride       *models.Ride `json:"ride"`
	DistanceKm float64      `json:"distance_km"`
}

// PartyInfo is the counterpart summary carried in ride notifications.
type PartyInfo struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Phone  string    `json:"phone,omitempty"`
	Rating float64   `json:"rating"`
}

func partyInfo(u *models.User) *PartyInfo {
	if u == nil {
		return nil
	}
	return &PartyInfo{ID: u.ID, Name: u.FullName, Phone: u.Phone, Rating: u.Rating()}
}

// NewRideNotification is the ride:new payload sent to candidate drivers.
type NewRideNotification struct {
	RideID      uuid.UUID          `json:"ride_id"`
	Pickup      models.Location    `json:"pickup"`
	Dropoff     models.Location    `json:"dropoff"`
	Stops       []models.Stop      `json:"stops"`
	VehicleType models.VehicleType `json:"vehicle_type"`
	Fare        float64            `json:"fare"`
	DistanceKm  float64            `json:"distance_km"`
	PickupKm    float64            `json:"pickup_distance_km"`
	Passenger   *PartyInfo         `json:"passenger,omitempty"`
}

// RideNotification is the payload of every other ride:* event.
type RideNotification struct {
	RideID      uuid.UUID          `json:"ride_id"`
	Status      models.RideStatus  `json:"status"`
	Ride        *models.Ride       `json:"ride"`
	Driver      *PartyInfo         `json:"driver,omitempty"`
	Stage       string             `json:"stage,omitempty"`
	CancelledBy models.CancelledBy `json:"cancelled_by,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	ReasonAr    string             `json:"reason_ar,omitempty"`
}

// emergencyAlert extends the SMS payload with what the admin dashboard shows.
type emergencyAlert struct {
	notifications.EmergencyPayload
	DriverName string    `json:"driver_name,omitempty"`
	Time       time.Time `json:"time"`
}
