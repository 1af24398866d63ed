package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Point
		expected float64
	}{
		{"identical points", Point{30.0, 31.0}, Point{30.0, 31.0}, 0},
		{"cairo short hop", Point{30.0, 31.0}, Point{30.1, 31.1}, 14.71},
		{"one degree latitude", Point{0, 0}, Point{1, 0}, 111.19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Distance(tt.a, tt.b))
		})
	}
}

func TestDistanceKmIsSymmetric(t *testing.T) {
	a := Point{30.0444, 31.2357}
	b := Point{29.9792, 31.1342}
	assert.Equal(t, Distance(a, b), Distance(b, a))
}

func TestIsWithinRadius(t *testing.T) {
	origin := Point{30.0, 31.0}
	near := Point{30.1, 31.1}

	assert.True(t, IsWithinRadius(origin, near, 14.71))
	assert.True(t, IsWithinRadius(origin, near, 20))
	assert.False(t, IsWithinRadius(origin, near, 14.70))
	assert.True(t, IsWithinRadius(origin, origin, 0))
}

func TestEstimateDurationMinutes(t *testing.T) {
	assert.Equal(t, 0, EstimateDurationMinutes(0))
	assert.Equal(t, 30, EstimateDurationMinutes(14.71))
	assert.Equal(t, 20, EstimateDurationMinutes(10))
	assert.Equal(t, 1, EstimateDurationMinutes(0.01))
}

func TestRouteDistanceKm(t *testing.T) {
	pickup := Point{30.0, 31.0}
	stop := Point{30.05, 31.05}
	dropoff := Point{30.1, 31.1}

	direct := RouteDistanceKm(pickup, dropoff)
	viaStop := RouteDistanceKm(pickup, stop, dropoff)

	assert.Equal(t, Distance(pickup, dropoff), direct)
	assert.InDelta(t, 14.70, viaStop, 1e-9)
	assert.Equal(t, 0.0, RouteDistanceKm(pickup))
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{90, 180}.Valid())
	assert.False(t, Point{91, 0}.Valid())
	assert.False(t, Point{0, -181}.Valid())
}
