package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/redis"
	"github.com/uber/h3-go/v4"
	"go.uber.org/zap"
)

const (
	// cacheResolution is H3 resolution 7, cells of roughly 5 km².
	cacheResolution = 7
	cacheKeyPrefix  = "pricing:cell:"
)

// Resolver picks the pricing config for a pickup point: the first active city
// covering it, then global settings, then defaults. Results are cached per H3 cell.
type Resolver struct {
	repo  RepositoryInterface
	cache redis.ClientInterface
	ttl   time.Duration
}

// NewResolver creates a resolver. cache may be nil to disable caching.
func NewResolver(repo RepositoryInterface, cache redis.ClientInterface, ttl time.Duration) *Resolver {
	return &Resolver{repo: repo, cache: cache, ttl: ttl}
}

// ResolveForPoint never fails: store errors are logged and the defaults are returned.
func (r *Resolver) ResolveForPoint(ctx context.Context, p geo.Point) Config {
	key, cacheable := cacheKey(p)
	if cacheable && r.cache != nil {
		if cfg, ok := r.fromCache(ctx, key); ok {
			return cfg
		}
	}

	cfg, err := r.resolve(ctx, p)
	if err != nil {
		logger.WarnContext(ctx, "pricing resolution failed, using defaults",
			zap.Float64("lat", p.Latitude),
			zap.Float64("lon", p.Longitude),
			zap.Error(err),
		)
		return DefaultConfig()
	}

	if cacheable && r.cache != nil && r.ttl > 0 {
		r.toCache(ctx, key, cfg)
	}
	return cfg
}

// Invalidate drops every cached cell. Called after settings or cities change.
func (r *Resolver) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.DeleteByPattern(ctx, cacheKeyPrefix+"*")
}

func (r *Resolver) resolve(ctx context.Context, p geo.Point) (Config, error) {
	cfg := DefaultConfig()

	settings, err := r.repo.GetSettings(ctx)
	if err != nil {
		return cfg, fmt.Errorf("load settings: %w", err)
	}
	if settings != nil {
		applySettings(&cfg, settings)
	}

	cities, err := r.repo.ListActiveCities(ctx)
	if err != nil {
		return cfg, fmt.Errorf("load cities: %w", err)
	}
	for _, city := range cities {
		if city.Covers(p) {
			applyCity(&cfg, city)
			break
		}
	}

	return cfg, nil
}

func applySettings(cfg *Config, s *Settings) {
	cfg.BaseFare = s.BaseFare
	cfg.PricePerKm = s.PricePerKm
	cfg.PricePerMinute = s.PricePerMinute
	cfg.MinFare = s.MinFare
	cfg.VehicleMultipliers = s.VehicleMultipliers
	cfg.SurgeMultiplier = s.SurgeMultiplier
	cfg.IsSurgeActive = s.IsSurgeActive
	cfg.AppCommission = s.AppCommission
	cfg.Source = SourceSettings
}

// applyCity overrides only the money fields; multipliers, surge and commission stay global.
func applyCity(cfg *Config, c *City) {
	id := c.ID
	cfg.BaseFare = c.BaseFare
	cfg.PricePerKm = c.PricePerKm
	cfg.PricePerMinute = c.PricePerMinute
	cfg.MinFare = c.MinFare
	cfg.CityID = &id
	cfg.Source = SourceCity
}

func cacheKey(p geo.Point) (string, bool) {
	if !p.Valid() {
		return "", false
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Latitude, p.Longitude), cacheResolution)
	if err != nil {
		return "", false
	}
	return cacheKeyPrefix + cell.String(), true
}

func (r *Resolver) fromCache(ctx context.Context, key string) (Config, bool) {
	raw, err := r.cache.GetString(ctx, key)
	if err != nil {
		if !redis.IsNil(err) {
			logger.WarnContext(ctx, "pricing cache read failed", zap.String("key", key), zap.Error(err))
		}
		return Config{}, false
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		logger.WarnContext(ctx, "discarding malformed pricing cache entry", zap.String("key", key), zap.Error(err))
		return Config{}, false
	}
	return cfg, true
}

func (r *Resolver) toCache(ctx context.Context, key string, cfg Config) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := r.cache.SetWithExpiration(ctx, key, string(raw), r.ttl); err != nil {
		logger.WarnContext(ctx, "pricing cache write failed", zap.String("key", key), zap.Error(err))
	}
}
