// Package geo provides an R-Tree index of transit stops for proximity queries.
package geo

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

const (
	tolerance   = 1e-7
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// stopItem wraps a Stop for R-Tree indexing
type stopItem struct {
	stop models.Stop
	seq  int
	rect *rtreego.Rect
}

func (si *stopItem) Bounds() *rtreego.Rect {
	return si.rect
}

// StopIndex is a thread-safe R-Tree of stops. Query results keep insertion order.
type StopIndex struct {
	mu    sync.RWMutex
	tree  *rtreego.Rtree
	items []*stopItem
}

// NewStopIndex creates an empty index
func NewStopIndex() *StopIndex {
	return &StopIndex{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// Index adds stops to the index. Stops with invalid coordinates are skipped;
// the number of stops indexed is returned.
func (g *StopIndex) Index(stops []models.Stop) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	added := 0
	for _, s := range stops {
		if !s.Coordinate().Valid() {
			continue
		}
		item := &stopItem{
			stop: s,
			seq:  len(g.items),
			rect: rtreego.Point{s.Lat, s.Lon}.ToRect(tolerance),
		}
		g.tree.Insert(item)
		g.items = append(g.items, item)
		added++
	}
	return added
}

// Within returns stops whose bounding box lies within radiusMeters of center.
// It is a prefilter: corners of the box may be slightly farther than the radius.
func (g *StopIndex) Within(center models.Coordinate, radiusMeters float64) []models.Stop {
	g.mu.RLock()
	defer g.mu.RUnlock()

	latDeg := radiusMeters / proximity.EarthRadiusMeters * 180 / math.Pi
	// widen longitude span as meridians converge, capped near the poles
	lonDeg := latDeg / math.Max(math.Cos(center.Lat*math.Pi/180), 0.01)

	bounds, err := rtreego.NewRect(
		rtreego.Point{center.Lat - latDeg, center.Lon - lonDeg},
		[]float64{2*latDeg + tolerance, 2*lonDeg + tolerance},
	)
	if err != nil {
		return nil
	}

	results := g.tree.SearchIntersect(bounds)
	items := make([]*stopItem, 0, len(results))
	for _, r := range results {
		if item, ok := r.(*stopItem); ok {
			items = append(items, item)
		}
	}
	return inOrder(items)
}

// Nearest returns the k stops closest to center by great-circle distance
func (g *StopIndex) Nearest(center models.Coordinate, k int) []proximity.Nearby[models.Stop] {
	if k <= 0 {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	// rtreego ranks by planar degrees, so over-fetch and re-rank by haversine
	results := g.tree.NearestNeighbors(k*2, rtreego.Point{center.Lat, center.Lon})

	ranked := make([]proximity.Nearby[models.Stop], 0, len(results))
	for _, r := range results {
		item, ok := r.(*stopItem)
		if !ok {
			continue
		}
		ranked = append(ranked, proximity.Nearby[models.Stop]{
			Item:           item.stop,
			DistanceMeters: proximity.Between(center, item.stop.Coordinate()),
		})
	}

	slices.SortStableFunc(ranked, func(a, b proximity.Nearby[models.Stop]) int {
		return cmp.Compare(a.DistanceMeters, b.DistanceMeters)
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Stops returns every indexed stop in insertion order
func (g *StopIndex) Stops() []models.Stop {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return inOrder(slices.Clone(g.items))
}

// Count returns the number of indexed stops
func (g *StopIndex) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.items)
}

// Clear removes all stops from the index
func (g *StopIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	g.items = nil
}

func inOrder(items []*stopItem) []models.Stop {
	slices.SortFunc(items, func(a, b *stopItem) int {
		return cmp.Compare(a.seq, b.seq)
	})
	stops := make([]models.Stop, len(items))
	for i, item := range items {
		stops[i] = item.stop
	}
	return stops
}
