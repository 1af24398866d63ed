package rides

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/drivers"
	"github.com/richxcame/ridecore/pkg/geo"
)

// stubSource implements CandidateSource for testing.
type stubSource struct {
	nearby []drivers.NearbyDriver
	err    error
}

func (s *stubSource) GetOnlineDriversNear(_ context.Context, _ geo.Point) ([]drivers.NearbyDriver, error) {
	return s.nearby, s.err
}

var testPickup = geo.Point{Latitude: 30.0, Longitude: 31.0}

func TestMatcher_FindBestDrivers_Empty(t *testing.T) {
	matcher := NewMatcher(DefaultMatchingConfig(5), &stubSource{})

	results, err := matcher.FindBestDrivers(context.Background(), testPickup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
}

func TestMatcher_FindBestDrivers_SourceError(t *testing.T) {
	matcher := NewMatcher(DefaultMatchingConfig(5), &stubSource{err: errors.New("redis down")})

	if _, err := matcher.FindBestDrivers(context.Background(), testPickup); err == nil {
		t.Fatal("expected error from candidate source")
	}
}

func TestMatcher_FindBestDrivers_RankedByScore(t *testing.T) {
	closeLowRated := drivers.NearbyDriver{ID: uuid.New(), DistanceKm: 0.5, Rating: 2.0}
	farTopRated := drivers.NearbyDriver{ID: uuid.New(), DistanceKm: 5.0, Rating: 5.0}
	mid := drivers.NearbyDriver{ID: uuid.New(), DistanceKm: 2.0, Rating: 4.5}

	matcher := NewMatcher(DefaultMatchingConfig(5), &stubSource{
		nearby: []drivers.NearbyDriver{closeLowRated, mid, farTopRated},
	})

	results, err := matcher.FindBestDrivers(context.Background(), testPickup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted by score: index %d (%f) > index %d (%f)",
				i, results[i].Score, i-1, results[i-1].Score)
		}
	}
	if results[len(results)-1].DriverID != farTopRated.ID {
		t.Fatalf("expected the farthest driver last, got %s", results[len(results)-1].DriverID)
	}
}

func TestMatcher_FindBestDrivers_RespectsMaxResults(t *testing.T) {
	nearby := make([]drivers.NearbyDriver, 10)
	for i := range nearby {
		nearby[i] = drivers.NearbyDriver{ID: uuid.New(), DistanceKm: float64(i + 1), Rating: 4.0}
	}

	matcher := NewMatcher(DefaultMatchingConfig(3), &stubSource{nearby: nearby})

	results, err := matcher.FindBestDrivers(context.Background(), testPickup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results (MaxResults), got %d", len(results))
	}
	if results[0].DriverID != nearby[0].ID {
		t.Fatalf("expected nearest equally rated driver first")
	}
}

func TestMatcher_ScoreCandidate_DistanceWeight(t *testing.T) {
	matcher := &Matcher{cfg: MatchingConfig{DistanceWeight: 1.0}}

	near := &DriverCandidate{DistanceKm: 1.0, Rating: 3.0}
	far := &DriverCandidate{DistanceKm: 9.0, Rating: 3.0}

	if matcher.scoreCandidate(near, 10.0) <= matcher.scoreCandidate(far, 10.0) {
		t.Fatal("closer driver should score higher")
	}
}

func TestMatcher_ScoreCandidate_RatingWeight(t *testing.T) {
	matcher := &Matcher{cfg: MatchingConfig{RatingWeight: 1.0}}

	high := &DriverCandidate{DistanceKm: 5.0, Rating: 5.0}
	low := &DriverCandidate{DistanceKm: 5.0, Rating: 2.0}
	unrated := &DriverCandidate{DistanceKm: 5.0}

	if got := matcher.scoreCandidate(high, 10.0); got != 1.0 {
		t.Fatalf("expected a 5-star driver to score 1.0, got %f", got)
	}
	if matcher.scoreCandidate(high, 10.0) <= matcher.scoreCandidate(low, 10.0) {
		t.Fatal("higher-rated driver should score higher")
	}
	if got := matcher.scoreCandidate(unrated, 10.0); got != 0.5 {
		t.Fatalf("expected unrated driver to score neutral 0.5, got %f", got)
	}
}

func TestMatcher_ScoreCandidate_SingleCandidateAtPickup(t *testing.T) {
	matcher := &Matcher{cfg: DefaultMatchingConfig(1)}

	score := matcher.scoreCandidate(&DriverCandidate{DistanceKm: 0, Rating: 1.0}, 0)
	if score != 0.65 {
		t.Fatalf("expected distance weight only, got %f", score)
	}
}
