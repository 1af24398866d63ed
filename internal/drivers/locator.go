package drivers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/redis"
	"go.uber.org/zap"
)

const (
	onlineDriversKey = "drivers:online"
	pickupRadiusKey  = "drivers:radius"
)

// candidate is a geo search hit before rating enrichment.
type candidate struct {
	ID         uuid.UUID
	Location   geo.Point
	DistanceKm float64
}

// Locator maintains the Redis read model of online drivers: a GEO set of
// positions and a hash of each driver's pickup radius.
type Locator struct {
	redis               redis.ClientInterface
	searchRadiusKm      float64
	defaultPickupRadius float64
}

func NewLocator(client redis.ClientInterface, searchRadiusKm, defaultPickupRadiusKm float64) *Locator {
	return &Locator{
		redis:               client,
		searchRadiusKm:      searchRadiusKm,
		defaultPickupRadius: defaultPickupRadiusKm,
	}
}

// Add places the driver in the online set at p.
func (l *Locator) Add(ctx context.Context, driverID uuid.UUID, p geo.Point, pickupRadiusKm float64) error {
	id := driverID.String()
	if err := l.redis.GeoAdd(ctx, onlineDriversKey, p.Longitude, p.Latitude, id); err != nil {
		return fmt.Errorf("geoadd driver %s: %w", id, err)
	}
	if pickupRadiusKm > 0 {
		if err := l.redis.HashSet(ctx, pickupRadiusKey, id, pickupRadiusKm); err != nil {
			return fmt.Errorf("store pickup radius for %s: %w", id, err)
		}
	}
	return nil
}

// Remove takes the driver out of the online set.
func (l *Locator) Remove(ctx context.Context, driverID uuid.UUID) error {
	id := driverID.String()
	if err := l.redis.GeoRemove(ctx, onlineDriversKey, id); err != nil {
		return fmt.Errorf("remove driver %s: %w", id, err)
	}
	return l.redis.HashDelete(ctx, pickupRadiusKey, id)
}

// Near returns online drivers within the search radius whose own pickup radius
// reaches p, nearest first.
func (l *Locator) Near(ctx context.Context, p geo.Point) ([]candidate, error) {
	members, err := l.redis.GeoSearch(ctx, onlineDriversKey, p.Longitude, p.Latitude, l.searchRadiusKm, 0)
	if err != nil {
		return nil, fmt.Errorf("search online drivers: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	radii, err := l.redis.HashGetMany(ctx, pickupRadiusKey, names...)
	if err != nil {
		return nil, fmt.Errorf("load pickup radii: %w", err)
	}

	out := make([]candidate, 0, len(members))
	for i, m := range members {
		id, err := uuid.Parse(m.Name)
		if err != nil {
			logger.WarnContext(ctx, "ignoring malformed member in online driver set", zap.String("member", m.Name))
			continue
		}
		radius := l.defaultPickupRadius
		if i < len(radii) {
			radius = l.parseRadius(radii[i])
		}
		if m.DistanceKm > radius {
			continue
		}
		out = append(out, candidate{
			ID:         id,
			Location:   geo.Point{Latitude: m.Latitude, Longitude: m.Longitude},
			DistanceKm: m.DistanceKm,
		})
	}
	return out, nil
}

// Position returns the driver's position in the read model. ok is false when
// the driver is not online.
func (l *Locator) Position(ctx context.Context, driverID uuid.UUID) (geo.Point, bool, error) {
	lon, lat, err := l.redis.GeoPos(ctx, onlineDriversKey, driverID.String())
	if redis.IsNil(err) {
		return geo.Point{}, false, nil
	}
	if err != nil {
		return geo.Point{}, false, err
	}
	return geo.Point{Latitude: lat, Longitude: lon}, true, nil
}

func (l *Locator) parseRadius(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return l.defaultPickupRadius
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 {
		return l.defaultPickupRadius
	}
	return r
}
