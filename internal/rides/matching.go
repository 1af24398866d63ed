package rides

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/drivers"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/logger"
	"go.uber.org/zap"
)

// MatchingConfig holds weights for the driver ranking.
type MatchingConfig struct {
	DistanceWeight float64 // How much pickup distance matters (default 0.65)
	RatingWeight   float64 // How much driver rating matters (default 0.35)
	MaxResults     int     // Max drivers notified per ride (RIDES_MAX_DISPATCH)
}

// DefaultMatchingConfig returns the ranking weights with the given dispatch cap.
func DefaultMatchingConfig(maxResults int) MatchingConfig {
	if maxResults <= 0 {
		maxResults = 20
	}
	return MatchingConfig{
		DistanceWeight: 0.65,
		RatingWeight:   0.35,
		MaxResults:     maxResults,
	}
}

// DriverCandidate is a nearby driver being ranked for a ride.
type DriverCandidate struct {
	DriverID   uuid.UUID `json:"driver_id"`
	DistanceKm float64   `json:"distance_km"`
	Rating     float64   `json:"rating"`
	Score      float64   `json:"score"`
}

// CandidateSource lists online drivers willing to pick up at a point.
type CandidateSource interface {
	GetOnlineDriversNear(ctx context.Context, p geo.Point) ([]drivers.NearbyDriver, error)
}

// Matcher scores and ranks driver candidates for a ride request.
type Matcher struct {
	cfg    MatchingConfig
	source CandidateSource
}

// NewMatcher creates a new driver matcher.
func NewMatcher(cfg MatchingConfig, source CandidateSource) *Matcher {
	return &Matcher{cfg: cfg, source: source}
}

// FindBestDrivers returns the top-ranked drivers for a pickup point:
//
//	score = w_dist * distScore + w_rating * ratingScore
//
// where each factor is normalized to [0, 1] with 1 being best.
func (m *Matcher) FindBestDrivers(ctx context.Context, pickup geo.Point) ([]*DriverCandidate, error) {
	nearby, err := m.source.GetOnlineDriversNear(ctx, pickup)
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return []*DriverCandidate{}, nil
	}

	candidates := make([]*DriverCandidate, 0, len(nearby))
	maxDist := 0.0
	for _, d := range nearby {
		candidates = append(candidates, &DriverCandidate{
			DriverID:   d.ID,
			DistanceKm: d.DistanceKm,
			Rating:     d.Rating,
		})
		if d.DistanceKm > maxDist {
			maxDist = d.DistanceKm
		}
	}

	for _, c := range candidates {
		c.Score = m.scoreCandidate(c, maxDist)
	}

	// Ties keep the nearest-first order of the search.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	evaluated := len(candidates)
	if len(candidates) > m.cfg.MaxResults {
		candidates = candidates[:m.cfg.MaxResults]
	}

	logger.DebugContext(ctx, "driver matching completed",
		zap.Int("candidates_evaluated", evaluated),
		zap.Int("candidates_selected", len(candidates)),
		zap.Float64("pickup_lat", pickup.Latitude),
		zap.Float64("pickup_lon", pickup.Longitude),
	)

	return candidates, nil
}

// scoreCandidate computes a normalized weighted score for a single driver.
func (m *Matcher) scoreCandidate(c *DriverCandidate, maxDist float64) float64 {
	// Closer is better, inverse linear over the candidate set.
	distScore := 1.0
	if maxDist > 0 {
		distScore = 1.0 - (c.DistanceKm / maxDist)
	}

	// Normalize [1, 5] to [0, 1]. Unrated drivers score as neutral.
	ratingScore := 0.5
	if c.Rating > 0 {
		ratingScore = math.Max((c.Rating-1.0)/4.0, 0)
	}

	score := m.cfg.DistanceWeight*distScore + m.cfg.RatingWeight*ratingScore
	return math.Round(score*1000) / 1000
}
