package geo

import "math"

const (
	earthRadiusKm   = 6371.0
	averageSpeedKmh = 30.0 // city traffic average
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the point lies inside the latitude/longitude ranges.
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceKm calculates the great-circle distance in kilometres between two
// coordinates. The result is rounded to two decimal places.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return math.Round(earthRadiusKm*c*100) / 100
}

// Distance is DistanceKm for two points.
func Distance(a, b Point) float64 {
	return DistanceKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// IsWithinRadius reports whether b lies within radiusKm of a.
func IsWithinRadius(a, b Point, radiusKm float64) bool {
	return Distance(a, b) <= radiusKm
}

// RouteDistanceKm sums the rounded segment distances along the given points.
func RouteDistanceKm(points ...Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return math.Round(total*100) / 100
}

// EstimateDurationMinutes returns the estimated travel time in minutes for a
// given distance in kilometres at 30 km/h, rounded up.
func EstimateDurationMinutes(distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / averageSpeedKmh * 60))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
