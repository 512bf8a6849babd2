package proximity

import (
	"math"

	"github.com/1F47E/go-proximity/pkg/models"
)

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters
const EarthRadiusMeters = 6371000.0

// DistanceMeters calculates the Haversine distance between two points in meters
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0

	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// rounding can push a a hair outside [0, 1] near antipodes
	a = math.Max(0, math.Min(1, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Between is DistanceMeters for two coordinates
func Between(a, b models.Coordinate) float64 {
	return DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

// InRegion reports whether the sample has coordinates inside region.
// Nil samples and samples without coordinates are never inside.
func InRegion(region models.BoundingBox, p *models.PositionSample) bool {
	if p == nil || p.Coords == nil {
		return false
	}
	return region.Contains(*p.Coords)
}
