package proximity

import (
	"cmp"
	"slices"

	"github.com/1F47E/go-proximity/pkg/models"
)

// Locatable is anything with a position on the map
type Locatable interface {
	Coordinate() models.Coordinate
}

// Nearby pairs a candidate with its distance from the last-known position
type Nearby[T any] struct {
	Item           T
	DistanceMeters float64
}

// CandidateSource yields candidates that may lie within radius meters of center,
// in a stable order. geo.StopIndex implements it for stops.
type CandidateSource[T any] interface {
	Within(center models.Coordinate, radiusMeters float64) []T
}

// FindNearby returns candidates within maxDistanceMeters of the last-known position,
// closest first. Equal distances keep their input order. Without a fix the result
// is empty. A non-positive maxDistanceMeters falls back to Config.NearbyRadius.
func FindNearby[T Locatable](s *Service, candidates []T, maxDistanceMeters float64) []Nearby[T] {
	origin, ok := s.origin()
	if !ok {
		return []Nearby[T]{}
	}
	if maxDistanceMeters <= 0 {
		maxDistanceMeters = s.cfg.NearbyRadius
	}
	return rank(origin, candidates, maxDistanceMeters)
}

// FindNearbyIndexed is FindNearby over a spatial index instead of a slice
func FindNearbyIndexed[T Locatable](s *Service, src CandidateSource[T], maxDistanceMeters float64) []Nearby[T] {
	origin, ok := s.origin()
	if !ok {
		return []Nearby[T]{}
	}
	if maxDistanceMeters <= 0 {
		maxDistanceMeters = s.cfg.NearbyRadius
	}
	return rank(origin, src.Within(origin, maxDistanceMeters), maxDistanceMeters)
}

// RankFrom is FindNearbyIndexed around an explicit origin instead of the
// last-known position
func RankFrom[T Locatable](origin models.Coordinate, src CandidateSource[T], maxDistanceMeters float64) []Nearby[T] {
	if maxDistanceMeters <= 0 {
		maxDistanceMeters = DefaultNearbyRadius
	}
	return rank(origin, src.Within(origin, maxDistanceMeters), maxDistanceMeters)
}

func (s *Service) origin() (models.Coordinate, bool) {
	last, ok := s.LastKnown()
	if !ok || last.Coords == nil {
		return models.Coordinate{}, false
	}
	return *last.Coords, true
}

func rank[T Locatable](origin models.Coordinate, candidates []T, maxDistanceMeters float64) []Nearby[T] {
	results := make([]Nearby[T], 0, len(candidates))
	for _, c := range candidates {
		dist := Between(origin, c.Coordinate())
		if dist <= maxDistanceMeters {
			results = append(results, Nearby[T]{Item: c, DistanceMeters: dist})
		}
	}

	slices.SortStableFunc(results, func(a, b Nearby[T]) int {
		return cmp.Compare(a.DistanceMeters, b.DistanceMeters)
	})
	return results
}
