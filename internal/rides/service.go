package rides

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/cancellation"
	"github.com/richxcame/ridecore/internal/notifications"
	"github.com/richxcame/ridecore/internal/pricing"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/config"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/models"
	"github.com/richxcame/ridecore/pkg/tracing"
	"go.uber.org/zap"
)

const tracerName = "rides-service"

// Deps are the collaborators of the ride lifecycle.
type Deps struct {
	Directory UserDirectory
	Reasons   CancellationReasonCatalog
	Pricing   PricingConfigProvider
	Ledger    Ledger
	Vouchers  VoucherEngine
}

// Service handles ride business logic
type Service struct {
	repo                  RepositoryInterface
	directory             UserDirectory
	reasons               CancellationReasonCatalog
	pricing               PricingConfigProvider
	ledger                Ledger
	vouchers              VoucherEngine
	matcher               *Matcher
	policy                cancellation.Policy
	loyaltyPoints         int
	defaultPickupRadiusKm float64
	now                   func() time.Time
}

// NewService creates a new rides service
func NewService(repo RepositoryInterface, deps Deps, rides config.RidesConfig, drivers config.DriversConfig) *Service {
	return &Service{
		repo:      repo,
		directory: deps.Directory,
		reasons:   deps.Reasons,
		pricing:   deps.Pricing,
		ledger:    deps.Ledger,
		vouchers:  deps.Vouchers,
		matcher:   NewMatcher(DefaultMatchingConfig(rides.MaxDispatch), deps.Directory),
		policy: cancellation.Policy{
			PenaltyAmount:           rides.DriverPenalty,
			FreeCancellationsPerDay: rides.FreeDriverCancelsPerDay,
		},
		loyaltyPoints:         rides.LoyaltyPointsPerRide,
		defaultPickupRadiusKm: drivers.DefaultPickupRadiusKm,
		now:                   time.Now,
	}
}

// RequestRide prices a new ride, redeems the voucher, takes the wallet share
// and announces the ride to the best nearby drivers. Money taken before the
// insert is returned if the insert fails.
func (s *Service) RequestRide(ctx context.Context, passengerID uuid.UUID, req *RequestRideRequest) (res *RequestResult, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "RequestRide")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(tracing.UserIDKey.String(passengerID.String()))

	if err := normalizeRequest(req); err != nil {
		return nil, rideError(err)
	}
	span.SetAttributes(tracing.VehicleTypeKey.String(string(req.VehicleType)))

	active, err := s.repo.GetActiveRide(ctx, passengerID, models.RolePassenger)
	if err != nil {
		return nil, rideError(err)
	}
	if active != nil {
		return nil, rideError(ErrAlreadyHasActiveRide)
	}

	route := make([]geo.Point, 0, len(req.Stops)+2)
	route = append(route, req.Pickup.point())
	stops := make([]models.Stop, len(req.Stops))
	for i, st := range req.Stops {
		route = append(route, st.point())
		stops[i] = models.Stop{Address: st.Address, Latitude: *st.Latitude, Longitude: *st.Longitude, Order: i + 1}
	}
	route = append(route, req.Dropoff.point())

	distance := geo.RouteDistanceKm(route...)
	duration := geo.EstimateDurationMinutes(distance)
	cfg := s.pricing.ResolveForPoint(ctx, req.Pickup.point())
	fare := pricing.ComputeFare(distance, duration, req.VehicleType, cfg, pricing.FareOptions{Floor: pricing.FloorPerVehicle})

	now := s.now()
	ride := &models.Ride{
		ID:              uuid.New(),
		PassengerID:     passengerID,
		Pickup:          req.Pickup.location(),
		Dropoff:         req.Dropoff.location(),
		Stops:           stops,
		VehicleType:     req.VehicleType,
		DistanceKm:      distance,
		DurationMinutes: duration,
		BaseFare:        fare,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.RideStatusPending,
		IsScheduled:     req.IsScheduled,
		IsRoundTrip:     req.IsRoundTrip,
		IsMeterMode:     req.IsMeterMode,
		HasRestStop:     req.HasRestStop,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.IsScheduled {
		ride.ScheduledTime = req.ScheduledTime
	}
	if req.HasRestStop {
		ride.RestStopLatitude, ride.RestStopLongitude = req.RestStopLatitude, req.RestStopLongitude
	}

	if req.VoucherCode != "" {
		redeemed, err := s.vouchers.Redeem(ctx, req.VoucherCode, fare, passengerID, ride.ID)
		if err != nil {
			return nil, rideError(err)
		}
		ride.VoucherCode = &redeemed.Code
		ride.VoucherDiscount = redeemed.Discount
	}

	afterVoucher := math.Max(fare-ride.VoucherDiscount, 0)
	if req.UseWallet && req.PaymentMethod == models.PaymentWallet && afterVoucher > 0 {
		used, err := s.takeFromWallet(ctx, ride, afterVoucher)
		if err != nil {
			s.compensateRequest(ctx, ride)
			return nil, rideError(err)
		}
		ride.WalletAmount = used
	}
	ride.FinalFare = math.Max(afterVoucher-ride.WalletAmount, 0)

	var events []notifications.Event
	if !ride.IsScheduled {
		events = s.newRideEvents(ctx, ride)
		ride.DispatchedAt = &now
	}

	if err := s.repo.CreateRide(ctx, ride, events...); err != nil {
		s.compensateRequest(ctx, ride)
		return nil, rideError(err)
	}

	ridesRequestedTotal.WithLabelValues(string(ride.VehicleType), strconv.FormatBool(ride.IsScheduled)).Inc()
	logger.InfoContext(ctx, "ride requested",
		zap.String("ride_id", ride.ID.String()),
		zap.String("passenger_id", passengerID.String()),
		zap.Float64("distance_km", distance),
		zap.Float64("base_fare", fare),
		zap.Float64("final_fare", ride.FinalFare),
		zap.Int("drivers_notified", len(events)),
	)

	return &RequestResult{
		Ride: ride,
		Pricing: PricingBreakdown{
			BaseFare:         ride.BaseFare,
			VoucherDiscount:  ride.VoucherDiscount,
			WalletAmountUsed: ride.WalletAmount,
			FinalFare:        ride.FinalFare,
		},
		NotifiedDrivers: len(events),
	}, nil
}

func normalizeRequest(req *RequestRideRequest) error {
	if req.VehicleType == "" {
		req.VehicleType = models.VehicleEconomy
	}
	if !req.VehicleType.Valid() {
		return ErrInvalidVehicleType
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentCash
	}
	if !req.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if !req.Pickup.point().Valid() || !req.Dropoff.point().Valid() {
		return ErrInvalidLocation
	}
	for _, st := range req.Stops {
		if !st.point().Valid() {
			return ErrInvalidLocation
		}
	}
	if req.IsScheduled && req.ScheduledTime == nil {
		return ErrScheduledTimeRequired
	}
	if req.HasRestStop {
		if req.RestStopLatitude == nil || req.RestStopLongitude == nil {
			return ErrRestStopLocationRequired
		}
		if !(geo.Point{Latitude: *req.RestStopLatitude, Longitude: *req.RestStopLongitude}).Valid() {
			return ErrInvalidLocation
		}
	}
	return nil
}

// takeFromWallet debits min(balance, amount) without overdraft.
func (s *Service) takeFromWallet(ctx context.Context, ride *models.Ride, amount float64) (float64, error) {
	balance, err := s.ledger.Balance(ctx, ride.PassengerID)
	if err != nil {
		return 0, err
	}
	if balance <= 0 {
		return 0, nil
	}
	used := math.Min(balance, amount)
	if _, err := s.ledger.Debit(ctx, ride.PassengerID, used, &ride.ID, "Ride payment", false); err != nil {
		return 0, err
	}
	return used, nil
}

// compensateRequest returns the wallet share and the voucher usage of a ride
// that was never stored.
func (s *Service) compensateRequest(ctx context.Context, ride *models.Ride) {
	if ride.WalletAmount > 0 {
		_, err := s.ledger.Credit(ctx, ride.PassengerID, ride.WalletAmount, models.TransactionRefund, &ride.ID, "Refund for failed ride request")
		recordCompensation(ctx, "wallet", ride.ID, err)
	}
	if ride.VoucherCode != nil {
		err := s.vouchers.Release(ctx, *ride.VoucherCode, ride.PassengerID, ride.ID)
		recordCompensation(ctx, "voucher", ride.ID, err)
	}
}

func recordCompensation(ctx context.Context, kind string, rideID uuid.UUID, err error) {
	if err != nil {
		rideCompensationsTotal.WithLabelValues(kind, "failed").Inc()
		logger.ErrorContext(ctx, "failed to compensate ride request",
			zap.String("kind", kind), zap.String("ride_id", rideID.String()), zap.Error(err))
		return
	}
	rideCompensationsTotal.WithLabelValues(kind, "ok").Inc()
	logger.WarnContext(ctx, "compensated ride request",
		zap.String("kind", kind), zap.String("ride_id", rideID.String()))
}

// newRideEvents ranks nearby drivers and builds one ride:new per selected
// driver. A failed search dispatches to nobody; drivers still see the ride in
// their incoming list.
func (s *Service) newRideEvents(ctx context.Context, ride *models.Ride) []notifications.Event {
	pickup := geo.Point{Latitude: ride.Pickup.Latitude, Longitude: ride.Pickup.Longitude}
	candidates, err := s.matcher.FindBestDrivers(ctx, pickup)
	if err != nil {
		logger.WarnContext(ctx, "driver search failed, ride not dispatched",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
		return nil
	}
	rideDispatchCandidates.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		return nil
	}

	var passenger *PartyInfo
	if u, err := s.directory.GetUser(ctx, ride.PassengerID); err == nil {
		passenger = partyInfo(u)
	} else {
		logger.WarnContext(ctx, "failed to load passenger for dispatch",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
	}

	events := make([]notifications.Event, 0, len(candidates))
	for _, c := range candidates {
		ev, err := notifications.ToUser(c.DriverID, notifications.EventRideNew, NewRideNotification{
			RideID:      ride.ID,
			Pickup:      ride.Pickup,
			Dropoff:     ride.Dropoff,
			Stops:       ride.Stops,
			VehicleType: ride.VehicleType,
			Fare:        ride.FinalFare,
			DistanceKm:  ride.DistanceKm,
			PickupKm:    c.DistanceKm,
			Passenger:   passenger,
		})
		if err != nil {
			logger.WarnContext(ctx, "failed to build ride:new", zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events
}

// toPassenger addresses a ride notification to the ride's passenger.
func toPassenger(name string, build func(r *models.Ride) RideNotification) EventsFunc {
	return func(r *models.Ride) ([]notifications.Event, error) {
		ev, err := notifications.ToUser(r.PassengerID, name, build(r))
		if err != nil {
			return nil, err
		}
		return []notifications.Event{ev}, nil
	}
}

// AcceptRide assigns the ride to the driver. Exactly one of several
// concurrent drivers wins; the others get ErrRideAlreadyAssigned.
func (s *Service) AcceptRide(ctx context.Context, rideID, driverID uuid.UUID) (ride *models.Ride, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "AcceptRide")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(
		tracing.RideIDKey.String(rideID.String()),
		tracing.DriverIDKey.String(driverID.String()),
	)

	driver, err := s.directory.GetUser(ctx, driverID)
	if err != nil {
		return nil, rideError(err)
	}
	if driver.Role != models.RoleDriver {
		return nil, common.NewForbiddenError("only drivers can accept rides", nil)
	}
	if !driver.HasCompleteProfile() {
		return nil, rideError(ErrDriverProfileIncomplete)
	}

	current, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}
	if current.DriverID != nil {
		rideAcceptConflictsTotal.Inc()
		return nil, rideError(ErrRideAlreadyAssigned)
	}
	if current.Status != models.RideStatusPending {
		return nil, rideError(ErrRideNotPending)
	}

	active, err := s.repo.GetActiveRide(ctx, driverID, models.RoleDriver)
	if err != nil {
		return nil, rideError(err)
	}
	if active != nil {
		return nil, rideError(ErrAlreadyHasActiveRide)
	}

	fare := s.recomputeFare(ctx, current)
	ride, err = s.repo.AcceptRide(ctx, rideID, driverID, fare, s.now(),
		toPassenger(notifications.EventRideAccepted, func(r *models.Ride) RideNotification {
			return RideNotification{RideID: r.ID, Status: r.Status, Ride: r, Driver: partyInfo(driver)}
		}))
	if err != nil {
		if errors.Is(err, ErrRideAlreadyAssigned) {
			rideAcceptConflictsTotal.Inc()
		}
		return nil, rideError(err)
	}
	if surplus := current.WalletAmount - ride.WalletAmount; surplus > 0 {
		s.refundWalletSurplus(ctx, ride, surplus)
	}

	ridesTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	logger.InfoContext(ctx, "ride accepted",
		zap.String("ride_id", rideID.String()),
		zap.String("driver_id", driverID.String()),
		zap.Float64("base_fare", ride.BaseFare),
		zap.Float64("final_fare", ride.FinalFare),
	)
	return ride, nil
}

// refundWalletSurplus returns the part of the wallet share the recomputed fare
// no longer needs.
func (s *Service) refundWalletSurplus(ctx context.Context, ride *models.Ride, surplus float64) {
	if _, err := s.ledger.Credit(ctx, ride.PassengerID, surplus, models.TransactionRefund, &ride.ID, "Ride fare adjusted"); err != nil {
		logger.ErrorContext(ctx, "failed to refund wallet surplus",
			zap.String("ride_id", ride.ID.String()),
			zap.Float64("surplus", surplus),
			zap.Error(err))
	}
}

// recomputeFare prices pickup to dropoff directly with the flat floor.
func (s *Service) recomputeFare(ctx context.Context, r *models.Ride) FareUpdate {
	pickup := geo.Point{Latitude: r.Pickup.Latitude, Longitude: r.Pickup.Longitude}
	dropoff := geo.Point{Latitude: r.Dropoff.Latitude, Longitude: r.Dropoff.Longitude}
	distance := geo.Distance(pickup, dropoff)
	duration := geo.EstimateDurationMinutes(distance)
	cfg := s.pricing.ResolveForPoint(ctx, pickup)
	return FareUpdate{
		DistanceKm:      distance,
		DurationMinutes: duration,
		BaseFare:        pricing.ComputeFare(distance, duration, r.VehicleType, cfg, pricing.FareOptions{Floor: pricing.FloorFlat}),
	}
}

var stepEvents = map[Step]struct{ event, stage string }{
	StepArrivePickup:      {notifications.EventRideArrived, "pickup"},
	StepStart:             {notifications.EventRideStarted, ""},
	StepArriveDestination: {notifications.EventRideArrived, "destination"},
	StepComplete:          {notifications.EventRideCompleted, ""},
}

func (s *Service) advance(ctx context.Context, rideID, driverID uuid.UUID, step Step) (*models.Ride, error) {
	current, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}
	if !current.IsAssignedTo(driverID) {
		return nil, rideError(ErrNotAssignedToRide)
	}
	if !step.Allows(current) {
		return nil, rideError(ErrInvalidStatusForTransition)
	}

	ev := stepEvents[step]
	ride, err := s.repo.Advance(ctx, rideID, driverID, step, s.now(),
		toPassenger(ev.event, func(r *models.Ride) RideNotification {
			return RideNotification{RideID: r.ID, Status: r.Status, Ride: r, Stage: ev.stage}
		}))
	if err != nil {
		return nil, rideError(err)
	}

	ridesTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	logger.InfoContext(ctx, "ride status changed",
		zap.String("ride_id", rideID.String()),
		zap.String("driver_id", driverID.String()),
		zap.String("step", string(step)),
		zap.String("status", string(ride.Status)),
	)
	return ride, nil
}

// ArriveAtPickup marks the driver as waiting at the pickup point.
func (s *Service) ArriveAtPickup(ctx context.Context, rideID, driverID uuid.UUID) (ride *models.Ride, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "ArriveAtPickup")
	defer func() { tracing.EndSpan(span, err) }()
	return s.advance(ctx, rideID, driverID, StepArrivePickup)
}

// StartRide begins the trip. Meter rides start their meter here.
func (s *Service) StartRide(ctx context.Context, rideID, driverID uuid.UUID) (ride *models.Ride, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "StartRide")
	defer func() { tracing.EndSpan(span, err) }()
	return s.advance(ctx, rideID, driverID, StepStart)
}

// ArriveAtDestination marks the trip as arrived at the dropoff.
func (s *Service) ArriveAtDestination(ctx context.Context, rideID, driverID uuid.UUID) (ride *models.Ride, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "ArriveAtDestination")
	defer func() { tracing.EndSpan(span, err) }()
	return s.advance(ctx, rideID, driverID, StepArriveDestination)
}

// CompleteRide finishes the trip and settles money. Once the ride is
// completed, ledger and stats failures are logged and never undo it.
func (s *Service) CompleteRide(ctx context.Context, rideID, driverID uuid.UUID, req *CompleteRideRequest) (res *CompleteResult, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CompleteRide")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(
		tracing.RideIDKey.String(rideID.String()),
		tracing.DriverIDKey.String(driverID.String()),
	)

	ride, err := s.advance(ctx, rideID, driverID, StepComplete)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.FareAmountKey.Float64(ride.FinalFare))

	res = &CompleteResult{Ride: ride}
	if req != nil && req.AddChangeToWallet && ride.PaymentMethod == models.PaymentCash && req.AmountPaid > ride.FinalFare {
		change := req.AmountPaid - ride.FinalFare
		if s.transferChange(ctx, ride, driverID, change) {
			res.ChangeToWallet = change
		}
	}

	cfg := s.pricing.ResolveForPoint(ctx, geo.Point{Latitude: ride.Pickup.Latitude, Longitude: ride.Pickup.Longitude})
	res.Commission = cfg.Commission(ride.FinalFare)
	if res.Commission > 0 {
		if _, derr := s.ledger.Debit(ctx, driverID, res.Commission, &ride.ID, "App commission", true); derr != nil {
			logger.ErrorContext(ctx, "failed to charge ride commission",
				zap.String("ride_id", ride.ID.String()),
				zap.String("driver_id", driverID.String()),
				zap.Float64("commission", res.Commission),
				zap.Error(derr))
		} else {
			res.CommissionPaid = true
		}
	}

	if serr := s.directory.IncrementDriverStats(ctx, driverID, ride.BaseFare, s.loyaltyPoints); serr != nil {
		logger.ErrorContext(ctx, "failed to record driver earnings",
			zap.String("ride_id", ride.ID.String()),
			zap.String("driver_id", driverID.String()),
			zap.Error(serr))
	} else {
		res.EarningsRecorded = true
	}

	return res, nil
}

// transferChange moves overpaid cash into the passenger's wallet and takes it
// from the driver, who kept the cash.
func (s *Service) transferChange(ctx context.Context, ride *models.Ride, driverID uuid.UUID, change float64) bool {
	if _, err := s.ledger.Credit(ctx, ride.PassengerID, change, models.TransactionRefund, &ride.ID, "Change from ride"); err != nil {
		logger.ErrorContext(ctx, "failed to credit ride change",
			zap.String("ride_id", ride.ID.String()), zap.Float64("change", change), zap.Error(err))
		return false
	}
	if _, err := s.ledger.Debit(ctx, driverID, change, &ride.ID, "Change given to passenger wallet", true); err != nil {
		logger.ErrorContext(ctx, "failed to debit ride change from driver",
			zap.String("ride_id", ride.ID.String()), zap.Float64("change", change), zap.Error(err))
	}
	return true
}

// CancelRide cancels on behalf of the passenger or the assigned driver. The
// wallet share is refunded, a pending ride's voucher is released, and a driver
// past the free daily cancellations pays the penalty.
func (s *Service) CancelRide(ctx context.Context, rideID, actorID uuid.UUID, role models.UserRole, reasonID uuid.UUID) (res *CancelResult, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CancelRide")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(
		tracing.RideIDKey.String(rideID.String()),
		tracing.UserIDKey.String(actorID.String()),
	)

	by, userType := models.CancelledByPassenger, cancellation.UserTypePassenger
	if role == models.RoleDriver {
		by, userType = models.CancelledByDriver, cancellation.UserTypeDriver
	}

	reason, err := s.reasons.FindActiveReason(ctx, reasonID, userType)
	if err != nil {
		return nil, rideError(err)
	}
	if reason == nil {
		return nil, rideError(ErrInvalidCancellationReason)
	}

	current, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}
	c := Cancellation{By: by, ActorID: actorID, ReasonID: reason.ID, Reason: reason.Reason, At: s.now()}
	if !isCanceller(current, c) {
		return nil, rideError(ErrNotAssignedToRide)
	}
	if current.Status.IsTerminal() {
		return nil, rideError(ErrCannotCancelTerminalRide)
	}

	prior := 0
	if by == models.CancelledByDriver {
		prior, err = s.reasons.CountDriverCancellationsToday(ctx, actorID, c.At)
		if err != nil {
			return nil, rideError(err)
		}
	}

	ride, previous, err := s.repo.CancelRide(ctx, rideID, c, cancelEvents(reason, by))
	if err != nil {
		return nil, rideError(err)
	}

	res = &CancelResult{
		Ride:            ride,
		CancelledBy:     by,
		CancellationFee: pricing.CancellationFee(by, previous),
	}

	if ride.WalletAmount > 0 {
		if _, cerr := s.ledger.Credit(ctx, ride.PassengerID, ride.WalletAmount, models.TransactionRefund, &ride.ID, "Refund for cancelled ride"); cerr != nil {
			logger.ErrorContext(ctx, "failed to refund wallet share of cancelled ride",
				zap.String("ride_id", ride.ID.String()), zap.Float64("amount", ride.WalletAmount), zap.Error(cerr))
		} else {
			res.WalletRefund = ride.WalletAmount
		}
	}

	if previous == models.RideStatusPending && ride.VoucherCode != nil {
		if rerr := s.vouchers.Release(ctx, *ride.VoucherCode, ride.PassengerID, ride.ID); rerr != nil {
			logger.ErrorContext(ctx, "failed to release voucher of cancelled ride",
				zap.String("ride_id", ride.ID.String()), zap.Error(rerr))
		}
	}

	if by == models.CancelledByDriver && s.policy.PenaltyDue(prior) && s.policy.PenaltyAmount > 0 {
		if _, derr := s.ledger.Debit(ctx, actorID, s.policy.PenaltyAmount, &ride.ID, "Cancellation penalty", true); derr != nil {
			logger.ErrorContext(ctx, "failed to charge cancellation penalty",
				zap.String("ride_id", ride.ID.String()), zap.String("driver_id", actorID.String()), zap.Error(derr))
		} else {
			res.PenaltyApplied = true
			res.PenaltyAmount = s.policy.PenaltyAmount
		}
	}

	ridesTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	rideCancellationsTotal.WithLabelValues(string(by), strconv.FormatBool(res.PenaltyApplied)).Inc()
	logger.InfoContext(ctx, "ride cancelled",
		zap.String("ride_id", ride.ID.String()),
		zap.String("cancelled_by", string(by)),
		zap.String("previous_status", string(previous)),
		zap.Int("prior_driver_cancellations_today", prior),
		zap.Bool("penalty_applied", res.PenaltyApplied),
	)
	return res, nil
}

// cancelEvents tells the other party, when there is one.
func cancelEvents(reason *cancellation.Reason, by models.CancelledBy) EventsFunc {
	return func(r *models.Ride) ([]notifications.Event, error) {
		recipient := r.PassengerID
		if by == models.CancelledByPassenger {
			if r.DriverID == nil {
				return nil, nil
			}
			recipient = *r.DriverID
		}
		ev, err := notifications.ToUser(recipient, notifications.EventRideCancelled, RideNotification{
			RideID:      r.ID,
			Status:      r.Status,
			Ride:        r,
			CancelledBy: by,
			Reason:      reason.Reason,
			ReasonAr:    reason.ReasonAr,
		})
		if err != nil {
			return nil, err
		}
		return []notifications.Event{ev}, nil
	}
}

// RateRide stores the rater's score on the ride and folds it into the
// counterpart's average.
func (s *Service) RateRide(ctx context.Context, rideID, raterID uuid.UUID, role models.UserRole, req *RateRideRequest) (*RateResult, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, rideError(ErrRatingOutOfRange)
	}

	current, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}

	ratedID, ratedRole, alreadyRated := uuid.Nil, models.RoleDriver, current.DriverRating != nil
	if role == models.RoleDriver {
		if !current.IsAssignedTo(raterID) {
			return nil, rideError(ErrNotAssignedToRide)
		}
		ratedID, ratedRole, alreadyRated = current.PassengerID, models.RolePassenger, current.PassengerRating != nil
	} else {
		if current.PassengerID != raterID {
			return nil, rideError(ErrNotAssignedToRide)
		}
		if current.DriverID != nil {
			ratedID = *current.DriverID
		}
	}
	if current.Status != models.RideStatusCompleted || ratedID == uuid.Nil {
		return nil, rideError(ErrInvalidStatusForTransition)
	}
	if alreadyRated {
		return nil, rideError(ErrAlreadyRated)
	}

	if err := s.repo.RateRide(ctx, rideID, raterID, role, req.Rating, req.Review); err != nil {
		return nil, rideError(err)
	}

	res := &RateResult{RideID: rideID, Rating: req.Rating, RatedUserID: ratedID}
	avg, err := s.directory.ApplyRating(ctx, ratedID, ratedRole, req.Rating)
	if err != nil {
		logger.ErrorContext(ctx, "failed to update average rating",
			zap.String("ride_id", rideID.String()), zap.String("rated_user_id", ratedID.String()), zap.Error(err))
	} else {
		res.AverageRating = avg
	}
	return res, nil
}

// SafetyCheck records the driver's answer to the rest-stop check. An
// emergency alerts the admin room with the driver's last known position.
func (s *Service) SafetyCheck(ctx context.Context, rideID, driverID uuid.UUID, response string) (ride *models.Ride, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "SafetyCheck")
	defer func() { tracing.EndSpan(span, err) }()

	if response != SafetyResponseOK && response != SafetyResponseEmergency {
		return nil, common.NewBadRequestError("response must be ok or emergency", nil)
	}

	current, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}
	if !current.IsAssignedTo(driverID) {
		return nil, rideError(ErrNotAssignedToRide)
	}
	if !current.HasRestStop {
		return nil, rideError(ErrNoRestStop)
	}

	now := s.now()
	emergency := response == SafetyResponseEmergency
	var events EventsFunc
	if emergency {
		alert := s.emergencyAlert(ctx, current, driverID, now)
		events = func(*models.Ride) ([]notifications.Event, error) {
			ev, err := notifications.ToRoom(notifications.AdminRoom, notifications.EventEmergencyAlert, alert)
			if err != nil {
				return nil, err
			}
			return []notifications.Event{ev}, nil
		}
	}

	ride, err = s.repo.RecordSafetyResponse(ctx, rideID, driverID, emergency, now, events)
	if err != nil {
		return nil, rideError(err)
	}

	if emergency {
		logger.WarnContext(ctx, "driver reported an emergency",
			zap.String("ride_id", rideID.String()), zap.String("driver_id", driverID.String()))
	}
	return ride, nil
}

func (s *Service) emergencyAlert(ctx context.Context, ride *models.Ride, driverID uuid.UUID, at time.Time) emergencyAlert {
	alert := emergencyAlert{
		EmergencyPayload: notifications.EmergencyPayload{
			RideID:      ride.ID,
			DriverID:    driverID,
			PassengerID: ride.PassengerID,
		},
		Time: at,
	}

	if loc, err := s.directory.DriverLocation(ctx, driverID); err == nil {
		alert.Latitude, alert.Longitude, alert.Source = loc.Latitude, loc.Longitude, "driver"
	} else if ride.RestStopLatitude != nil && ride.RestStopLongitude != nil {
		alert.Latitude, alert.Longitude, alert.Source = *ride.RestStopLatitude, *ride.RestStopLongitude, "rest_stop"
	}

	if u, err := s.directory.GetUser(ctx, driverID); err == nil {
		alert.DriverName = u.FullName
	}
	return alert
}

// UpdateMeter records the metered distance of a started meter-mode ride.
func (s *Service) UpdateMeter(ctx context.Context, rideID, driverID uuid.UUID, distanceKm float64) (*models.Ride, error) {
	if distanceKm <= 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return nil, rideError(ErrInvalidDistance)
	}

	current, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}
	if !current.IsAssignedTo(driverID) {
		return nil, rideError(ErrNotAssignedToRide)
	}
	if !current.IsMeterMode {
		return nil, rideError(ErrNotMeterMode)
	}
	if current.Status != models.RideStatusStarted {
		return nil, rideError(ErrInvalidStatusForTransition)
	}

	ride, err := s.repo.UpdateMeter(ctx, rideID, driverID, distanceKm)
	if err != nil {
		return nil, rideError(err)
	}
	return ride, nil
}

// GetRide returns a ride to one of its participants or an admin.
func (s *Service) GetRide(ctx context.Context, rideID, userID uuid.UUID, role models.UserRole) (*models.Ride, error) {
	ride, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}
	if role != models.RoleAdmin && !ride.IsParticipant(userID) {
		return nil, common.NewForbiddenError("you are not authorized to view this ride", ErrNotAssignedToRide)
	}
	return ride, nil
}

// GetActiveRide returns the ride occupying the user, or nil.
func (s *Service) GetActiveRide(ctx context.Context, userID uuid.UUID, role models.UserRole) (*models.Ride, error) {
	ride, err := s.repo.GetActiveRide(ctx, userID, role)
	if err != nil {
		return nil, rideError(err)
	}
	return ride, nil
}

// RideHistory lists completed and cancelled rides, newest first.
func (s *Service) RideHistory(ctx context.Context, userID uuid.UUID, role models.UserRole, page, limit int) ([]*models.Ride, int64, error) {
	rides, total, err := s.repo.ListHistory(ctx, userID, role, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, rideError(err)
	}
	return rides, total, nil
}

// IncomingRides lists open rides whose pickup is within the driver's radius.
func (s *Service) IncomingRides(ctx context.Context, driverID uuid.UUID) ([]NearbyRide, error) {
	driver, err := s.directory.GetUser(ctx, driverID)
	if err != nil {
		return nil, rideError(err)
	}
	if driver.Driver == nil {
		return nil, common.NewForbiddenError("only drivers receive ride requests", nil)
	}
	if !driver.Driver.IsOnline {
		return nil, rideError(ErrDriverOffline)
	}
	if !driver.Driver.HasLocation() {
		return nil, rideError(ErrLocationRequired)
	}

	radius := driver.Driver.PickupRadiusKm
	if radius <= 0 {
		radius = s.defaultPickupRadiusKm
	}
	pending, err := s.repo.ListPendingRides(ctx, s.now(), pendingScanLimit)
	if err != nil {
		return nil, rideError(err)
	}
	origin := geo.Point{Latitude: *driver.Driver.Latitude, Longitude: *driver.Driver.Longitude}
	return ridesNear(pending, origin, radius, incomingRidesLimit), nil
}

// UpcomingNearby lists open rides starting near where the driver's current
// trip ends, so the next pickup can be lined up.
func (s *Service) UpcomingNearby(ctx context.Context, driverID uuid.UUID, radiusKm float64) ([]NearbyRide, error) {
	if radiusKm <= 0 {
		radiusKm = defaultUpcomingRadius
	}

	active, err := s.repo.GetActiveRide(ctx, driverID, models.RoleDriver)
	if err != nil {
		return nil, rideError(err)
	}
	if active == nil || (active.Status != models.RideStatusStarted && active.Status != models.RideStatusArrived) {
		return nil, rideError(ErrNoActiveRide)
	}

	pending, err := s.repo.ListPendingRides(ctx, s.now(), pendingScanLimit)
	if err != nil {
		return nil, rideError(err)
	}
	dropoff := geo.Point{Latitude: active.Dropoff.Latitude, Longitude: active.Dropoff.Longitude}
	return ridesNear(pending, dropoff, radiusKm, incomingRidesLimit), nil
}

// ridesNear keeps the order of rides and returns at most limit whose pickup
// is within radiusKm of origin.
func ridesNear(rides []*models.Ride, origin geo.Point, radiusKm float64, limit int) []NearbyRide {
	out := []NearbyRide{}
	for _, r := range rides {
		d := geo.Distance(origin, geo.Point{Latitude: r.Pickup.Latitude, Longitude: r.Pickup.Longitude})
		if d > radiusKm {
			continue
		}
		out = append(out, NearbyRide{Ride: r, DistanceKm: d})
		if len(out) == limit {
			break
		}
	}
	return out
}

// RequestAgain books a new ride over the route of a finished one. Vouchers
// and wallet offsets are not carried over.
func (s *Service) RequestAgain(ctx context.Context, passengerID, rideID uuid.UUID) (*RequestResult, error) {
	prev, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, rideError(err)
	}
	if prev.PassengerID != passengerID {
		return nil, rideError(ErrNotAssignedToRide)
	}
	if !prev.Status.IsTerminal() {
		return nil, rideError(ErrInvalidStatusForTransition)
	}

	req := &RequestRideRequest{
		Pickup:            inputFrom(prev.Pickup.Address, prev.Pickup.Latitude, prev.Pickup.Longitude),
		Dropoff:           inputFrom(prev.Dropoff.Address, prev.Dropoff.Latitude, prev.Dropoff.Longitude),
		VehicleType:       prev.VehicleType,
		PaymentMethod:     prev.PaymentMethod,
		IsRoundTrip:       prev.IsRoundTrip,
		IsMeterMode:       prev.IsMeterMode,
		HasRestStop:       prev.HasRestStop,
		RestStopLatitude:  prev.RestStopLatitude,
		RestStopLongitude: prev.RestStopLongitude,
	}
	for _, st := range prev.Stops {
		req.Stops = append(req.Stops, inputFrom(st.Address, st.Latitude, st.Longitude))
	}
	return s.RequestRide(ctx, passengerID, req)
}

func inputFrom(address string, lat, lon float64) LocationInput {
	return LocationInput{Address: address, Latitude: &lat, Longitude: &lon}
}

// DispatchDueScheduled announces scheduled rides whose time has come. Each
// ride is dispatched once even with several workers running.
func (s *Service) DispatchDueScheduled(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListDueScheduled(ctx, now, scheduledDispatchBatch)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, ride := range due {
		events := s.newRideEvents(ctx, ride)
		marked, err := s.repo.MarkDispatched(ctx, ride.ID, now, events...)
		if err != nil {
			logger.ErrorContext(ctx, "failed to dispatch scheduled ride",
				zap.String("ride_id", ride.ID.String()), zap.Error(err))
			continue
		}
		if !marked {
			continue
		}
		dispatched++
		logger.InfoContext(ctx, "scheduled ride dispatched",
			zap.String("ride_id", ride.ID.String()),
			zap.Timep("scheduled_time", ride.ScheduledTime),
			zap.Int("drivers_notified", len(events)),
		)
	}
	return dispatched, nil
}

type errorMapping struct {
	sentinel error
	status   int
	code     common.ErrorCode
}

var rideErrors = []errorMapping{
	{ErrRideNotFound, http.StatusNotFound, "RIDE_NOT_FOUND"},
	{ErrRideNotPending, http.StatusBadRequest, "RIDE_NOT_PENDING"},
	{ErrRideAlreadyAssigned, http.StatusConflict, "RIDE_ALREADY_ASSIGNED"},
	{ErrNotAssignedToRide, http.StatusForbidden, "NOT_ASSIGNED_TO_RIDE"},
	{ErrInvalidStatusForTransition, http.StatusBadRequest, "INVALID_STATUS_TRANSITION"},
	{ErrAlreadyHasActiveRide, http.StatusConflict, "ALREADY_HAS_ACTIVE_RIDE"},
	{ErrDriverProfileIncomplete, http.StatusForbidden, "DRIVER_PROFILE_INCOMPLETE"},
	{ErrInvalidCancellationReason, http.StatusBadRequest, "INVALID_CANCELLATION_REASON"},
	{ErrCannotCancelTerminalRide, http.StatusBadRequest, "RIDE_ALREADY_FINISHED"},
	{ErrAlreadyRated, http.StatusConflict, "ALREADY_RATED"},
	{ErrRatingOutOfRange, http.StatusBadRequest, "RATING_OUT_OF_RANGE"},
	{ErrNotMeterMode, http.StatusBadRequest, "NOT_METER_MODE"},
	{ErrNoRestStop, http.StatusBadRequest, "NO_REST_STOP"},
	{ErrInvalidDistance, http.StatusBadRequest, "INVALID_DISTANCE"},
	{ErrDriverOffline, http.StatusBadRequest, "DRIVER_OFFLINE"},
	{ErrLocationRequired, http.StatusBadRequest, "LOCATION_REQUIRED"},
	{ErrNoActiveRide, http.StatusBadRequest, "NO_ACTIVE_RIDE"},
	{ErrInvalidLocation, http.StatusBadRequest, "INVALID_LOCATION"},
	{ErrInvalidVehicleType, http.StatusBadRequest, "INVALID_VEHICLE_TYPE"},
	{ErrInvalidPaymentMethod, http.StatusBadRequest, "INVALID_PAYMENT_METHOD"},
	{ErrScheduledTimeRequired, http.StatusBadRequest, "SCHEDULED_TIME_REQUIRED"},
	{ErrRestStopLocationRequired, http.StatusBadRequest, "REST_STOP_LOCATION_REQUIRED"},
}

// rideError maps domain sentinels to HTTP-aware errors. Errors that are
// already AppErrors, such as ledger or voucher failures, pass through.
func rideError(err error) error {
	if _, ok := common.AsAppError(err); ok {
		return err
	}
	for _, m := range rideErrors {
		if errors.Is(err, m.sentinel) {
			return common.NewAppError(m.status, m.sentinel.Error(), err).WithCode(m.code)
		}
	}
	return common.NewInternalError("ride operation failed", err)
}
