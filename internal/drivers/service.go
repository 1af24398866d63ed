package drivers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/notifications"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/models"
	"go.uber.org/zap"
)

// EventAppender writes notifications that are not tied to a ride transaction.
type EventAppender interface {
	Append(ctx context.Context, events ...notifications.Event) error
}

// Service is the user directory: identities, driver state and the online driver read model.
type Service struct {
	repo    RepositoryInterface
	locator *Locator
	events  EventAppender
	now     func() time.Time
}

// NewService creates a new user directory service
func NewService(repo RepositoryInterface, locator *Locator, events EventAppender) *Service {
	return &Service{repo: repo, locator: locator, events: events, now: time.Now}
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, directoryError(err)
	}
	return user, nil
}

// GetOnlineDriversNear lists online drivers that would accept a pickup at p, nearest first.
func (s *Service) GetOnlineDriversNear(ctx context.Context, p geo.Point) ([]NearbyDriver, error) {
	candidates, err := s.locator.Near(ctx, p)
	if err != nil {
		return nil, common.NewInternalError("failed to search nearby drivers", err)
	}
	if len(candidates) == 0 {
		return []NearbyDriver{}, nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	ratings, err := s.repo.Ratings(ctx, ids)
	if err != nil {
		logger.WarnContext(ctx, "failed to load driver ratings for nearby search", zap.Error(err))
		ratings = map[uuid.UUID]float64{}
	}

	out := make([]NearbyDriver, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, NearbyDriver{
			ID:         c.ID,
			Location:   c.Location,
			DistanceKm: c.DistanceKm,
			Rating:     ratings[c.ID],
		})
	}
	return out, nil
}

// SetDriverLocation stores the driver's position, refreshes the read model when
// online, and forwards the position to the passenger of an active ride.
func (s *Service) SetDriverLocation(ctx context.Context, driverID uuid.UUID, p geo.Point) error {
	if !p.Valid() {
		return common.NewBadRequestError(ErrInvalidLocation.Error(), ErrInvalidLocation)
	}

	state, err := s.repo.UpdateLocation(ctx, driverID, p)
	if err != nil {
		return directoryError(err)
	}

	if state.IsOnline {
		if err := s.locator.Add(ctx, driverID, p, state.PickupRadiusKm); err != nil {
			logger.WarnContext(ctx, "failed to refresh online driver position",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}

	active, err := s.repo.ActiveRide(ctx, driverID)
	if err != nil {
		logger.WarnContext(ctx, "failed to look up active ride for location update",
			zap.String("driver_id", driverID.String()), zap.Error(err))
		return nil
	}
	if active == nil || s.events == nil {
		return nil
	}

	ev, err := notifications.ToUser(active.PassengerID, notifications.EventDriverLocation, map[string]interface{}{
		"ride_id":   active.RideID,
		"driver_id": driverID,
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
	})
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to queue driver location",
			zap.String("ride_id", active.RideID.String()), zap.Error(err))
	}
	return nil
}

// SetOnline toggles availability and mirrors it into the read model.
func (s *Service) SetOnline(ctx context.Context, driverID uuid.UUID, online bool) (*models.DriverState, error) {
	state, err := s.repo.SetOnline(ctx, driverID, online)
	if err != nil {
		return nil, directoryError(err)
	}

	if online && state.HasLocation() {
		p := geo.Point{Latitude: *state.Latitude, Longitude: *state.Longitude}
		err = s.locator.Add(ctx, driverID, p, state.PickupRadiusKm)
	} else if !online {
		err = s.locator.Remove(ctx, driverID)
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to update online driver index",
			zap.String("driver_id", driverID.String()), zap.Bool("online", online), zap.Error(err))
	}

	logger.InfoContext(ctx, "driver availability changed",
		zap.String("driver_id", driverID.String()), zap.Bool("online", online))
	return state, nil
}

func (s *Service) UpdateSettings(ctx context.Context, driverID uuid.UUID, req *SettingsRequest) (*models.DriverState, error) {
	if req.PickupRadiusKm != nil && (*req.PickupRadiusKm <= 0 || *req.PickupRadiusKm > maxPickupRadiusKm) {
		return nil, common.NewBadRequestError(ErrInvalidRadius.Error(), ErrInvalidRadius)
	}
	state, err := s.repo.UpdateSettings(ctx, driverID, req.AutoAccept, req.PickupRadiusKm)
	if err != nil {
		return nil, directoryError(err)
	}
	if state.IsOnline && state.HasLocation() {
		p := geo.Point{Latitude: *state.Latitude, Longitude: *state.Longitude}
		if err := s.locator.Add(ctx, driverID, p, state.PickupRadiusKm); err != nil {
			logger.WarnContext(ctx, "failed to refresh pickup radius", zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}
	return state, nil
}

func (s *Service) IncrementDriverStats(ctx context.Context, driverID uuid.UUID, fareEarned float64, points int) error {
	if err := s.repo.IncrementStats(ctx, driverID, fareEarned, points); err != nil {
		return directoryError(err)
	}
	return nil
}

// ApplyRating records one rating for the user and returns the new average.
func (s *Service) ApplyRating(ctx context.Context, userID uuid.UUID, role models.UserRole, rating int) (float64, error) {
	if rating < 1 || rating > 5 {
		return 0, common.NewBadRequestError(ErrRatingOutOfRange.Error(), ErrRatingOutOfRange)
	}
	avg, err := s.repo.ApplyRating(ctx, userID, role, rating)
	if err != nil {
		return 0, directoryError(err)
	}
	return avg, nil
}

// DriverLocation returns the driver's last known position: the read model
// first, then the persisted state.
func (s *Service) DriverLocation(ctx context.Context, driverID uuid.UUID) (geo.Point, error) {
	p, ok, err := s.locator.Position(ctx, driverID)
	if err != nil {
		logger.WarnContext(ctx, "failed to read driver position from read model", zap.Error(err))
	}
	if ok {
		return p, nil
	}

	user, err := s.repo.GetUser(ctx, driverID)
	if err != nil {
		return geo.Point{}, directoryError(err)
	}
	if user.Driver == nil || !user.Driver.HasLocation() {
		return geo.Point{}, common.NewNotFoundError(ErrLocationUnknown.Error(), ErrLocationUnknown)
	}
	return geo.Point{Latitude: *user.Driver.Latitude, Longitude: *user.Driver.Longitude}, nil
}

// Earnings returns the driver's accumulated earnings with ride counts for today and this week.
func (s *Service) Earnings(ctx context.Context, driverID uuid.UUID) (*Earnings, error) {
	user, err := s.repo.GetUser(ctx, driverID)
	if err != nil {
		return nil, directoryError(err)
	}
	if user.Driver == nil {
		return nil, common.NewNotFoundError(ErrDriverNotFound.Error(), ErrDriverNotFound)
	}

	now := s.now()
	todayRides, err := s.repo.CompletedRidesSince(ctx, driverID, startOfDay(now))
	if err != nil {
		return nil, common.NewInternalError("failed to get earnings", err)
	}
	weekRides, err := s.repo.CompletedRidesSince(ctx, driverID, startOfWeek(now))
	if err != nil {
		return nil, common.NewInternalError("failed to get earnings", err)
	}

	d := user.Driver
	return &Earnings{
		Today:      d.EarningsToday,
		Week:       d.EarningsWeek,
		Total:      d.EarningsTotal,
		TotalRides: d.TotalRides,
		TodayRides: todayRides,
		WeekRides:  weekRides,
		Points:     d.Points,
		Rating:     d.Rating,
	}, nil
}

// RebuildIndex repopulates the read model from persisted driver state.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	online, err := s.repo.ListOnline(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, d := range online {
		if err := s.locator.Add(ctx, d.ID, d.Location, d.PickupRadiusKm); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func directoryError(err error) error {
	if _, ok := common.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrUserNotFound):
		return common.NewNotFoundError(ErrUserNotFound.Error(), err)
	case errors.Is(err, ErrDriverNotFound):
		return common.NewNotFoundError(ErrDriverNotFound.Error(), err)
	case errors.Is(err, ErrActiveRideOnline):
		return common.NewBadRequestError(ErrActiveRideOnline.Error(), err)
	case errors.Is(err, ErrInvalidRole):
		return common.NewBadRequestError(ErrInvalidRole.Error(), err)
	default:
		return common.NewInternalError("user directory failure", err)
	}
}
