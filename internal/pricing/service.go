package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/models"
	"go.uber.org/zap"
)

// Service handles pricing business logic
type Service struct {
	repo     RepositoryInterface
	resolver *Resolver
}

// NewService creates a new pricing service
func NewService(repo RepositoryInterface, resolver *Resolver) *Service {
	return &Service{repo: repo, resolver: resolver}
}

// Resolver exposes the config provider used by ride requests.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Quote estimates the fare for every vehicle tier along pickup, stops, dropoff.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	route := make([]geo.Point, 0, len(req.Stops)+2)
	route = append(route, req.Pickup)
	route = append(route, req.Stops...)
	route = append(route, req.Dropoff)
	for _, p := range route {
		if !p.Valid() {
			return nil, common.NewValidationError("coordinates out of range")
		}
	}

	distance := geo.RouteDistanceKm(route...)
	duration := geo.EstimateDurationMinutes(distance)
	cfg := s.resolver.ResolveForPoint(ctx, req.Pickup)

	resp := &QuoteResponse{
		DistanceKm:      distance,
		DurationMinutes: duration,
		SurgeActive:     cfg.IsSurgeActive && cfg.SurgeMultiplier > 1,
		SurgeMultiplier: cfg.SurgeMultiplier,
		Source:          cfg.Source,
		CityID:          cfg.CityID,
		Estimates:       make([]Estimate, 0, len(models.VehicleTypes)),
	}
	for _, vt := range models.VehicleTypes {
		resp.Estimates = append(resp.Estimates, Estimate{
			VehicleType: vt,
			Multiplier:  cfg.VehicleMultipliers.For(vt),
			Fare:        ComputeFare(distance, duration, vt, cfg, FareOptions{Floor: FloorPerVehicle}),
		})
	}
	return resp, nil
}

// GetSettings returns the stored settings, or the defaults when none were saved.
func (s *Service) GetSettings(ctx context.Context) (*Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to get pricing settings", err)
	}
	if settings == nil {
		d := DefaultConfig()
		settings = &Settings{
			BaseFare:           d.BaseFare,
			PricePerKm:         d.PricePerKm,
			PricePerMinute:     d.PricePerMinute,
			MinFare:            d.MinFare,
			VehicleMultipliers: d.VehicleMultipliers,
			SurgeMultiplier:    d.SurgeMultiplier,
			IsSurgeActive:      d.IsSurgeActive,
			AppCommission:      d.AppCommission,
		}
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings *Settings) (*Settings, error) {
	if err := settings.validate(); err != nil {
		return nil, common.NewBadRequestError(err.Error(), err)
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return nil, common.NewInternalError("failed to save pricing settings", err)
	}
	s.invalidate(ctx)

	logger.InfoContext(ctx, "pricing settings updated",
		zap.Float64("base_fare", settings.BaseFare),
		zap.Bool("surge_active", settings.IsSurgeActive),
	)
	return settings, nil
}

func (s *Service) ListCities(ctx context.Context) ([]*City, error) {
	cities, err := s.repo.ListCities(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to list cities", err)
	}
	return cities, nil
}

func (s *Service) CreateCity(ctx context.Context, req *CityRequest) (*City, error) {
	city := &City{ID: uuid.New(), IsActive: true, RadiusKm: defaultCityRadiusKm}
	applyCityRequest(city, req)

	if err := s.repo.CreateCity(ctx, city); err != nil {
		return nil, common.NewInternalError("failed to create city", err)
	}
	s.invalidate(ctx)
	return city, nil
}

func (s *Service) UpdateCity(ctx context.Context, id uuid.UUID, req *CityRequest) (*City, error) {
	city, err := s.repo.GetCity(ctx, id)
	if err != nil {
		return nil, cityError(err)
	}
	applyCityRequest(city, req)

	if err := s.repo.UpdateCity(ctx, city); err != nil {
		return nil, cityError(err)
	}
	s.invalidate(ctx)
	return city, nil
}

func applyCityRequest(city *City, req *CityRequest) {
	city.Name = req.Name
	city.NameAr = req.NameAr
	city.BaseFare = req.BaseFare
	city.PricePerKm = req.PricePerKm
	city.PricePerMinute = req.PricePerMinute
	city.MinFare = req.MinFare
	city.CenterLat = req.CenterLat
	city.CenterLon = req.CenterLon
	if req.IsActive != nil {
		city.IsActive = *req.IsActive
	}
	if req.RadiusKm != nil {
		city.RadiusKm = *req.RadiusKm
	}
}

func cityError(err error) error {
	if errors.Is(err, ErrCityNotFound) {
		return common.NewNotFoundError("city not found", err)
	}
	return common.NewInternalError("failed to save city", err)
}

// invalidate is best effort; stale entries expire with the cache TTL.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.resolver.Invalidate(ctx); err != nil {
		logger.WarnContext(ctx, "failed to invalidate pricing cache", zap.Error(err))
	}
}
