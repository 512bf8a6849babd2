package geo

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/provider"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

var grounds = models.Coordinate{Lat: 38.0336, Lon: -78.5080}

func charlottesvilleStops() []models.Stop {
	return []models.Stop{
		{ID: "rotunda", Name: "Rotunda", Lat: 38.0356, Lon: -78.5034},           // ~460 m
		{ID: "newcomb", Name: "Newcomb Hall", Lat: 38.0359, Lon: -78.5067},      // ~280 m
		{ID: "alderman", Name: "Alderman Library", Lat: 38.0365, Lon: -78.5053}, // ~400 m
		{ID: "downtown", Name: "Downtown Mall", Lat: 38.0293, Lon: -78.4767},    // ~2.8 km
		{ID: "barracks", Name: "Barracks Road", Lat: 38.0481, Lon: -78.5082},    // ~1.6 km
		{ID: "bad", Name: "Nowhere", Lat: 123, Lon: 0},
	}
}

func TestStopIndexIndex(t *testing.T) {
	index := NewStopIndex()

	added := index.Index(charlottesvilleStops())
	assert.Equal(t, 5, added, "stop with invalid coordinates is skipped")
	assert.Equal(t, 5, index.Count())

	index.Clear()
	assert.Equal(t, 0, index.Count())
	assert.Empty(t, index.Within(grounds, 10000))
}

func TestStopIndexWithin(t *testing.T) {
	index := NewStopIndex()
	index.Index(charlottesvilleStops())

	testCases := []struct {
		name     string
		radius   float64
		expected []string
	}{
		{"100 m", 100, []string{}},
		{"500 m", 500, []string{"rotunda", "newcomb", "alderman"}},
		{"2 km", 2000, []string{"rotunda", "newcomb", "alderman", "barracks"}},
		{"5 km", 5000, []string{"rotunda", "newcomb", "alderman", "downtown", "barracks"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			results := index.Within(grounds, tc.radius)
			ids := make([]string, 0, len(results))
			for _, s := range results {
				// prefilter may include box corners; keep only true hits
				if proximity.Between(grounds, s.Coordinate()) <= tc.radius {
					ids = append(ids, s.ID)
				}
			}
			assert.Equal(t, tc.expected, ids, "results keep insertion order")
		})
	}
}

func TestStopIndexNearest(t *testing.T) {
	index := NewStopIndex()
	index.Index(charlottesvilleStops())

	results := index.Nearest(grounds, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "newcomb", results[0].Item.ID)
	assert.Equal(t, "alderman", results[1].Item.ID)
	assert.Less(t, results[0].DistanceMeters, results[1].DistanceMeters)

	assert.Nil(t, index.Nearest(grounds, 0))
	assert.Len(t, index.Nearest(grounds, 50), 5)
}

func TestFindNearbyIndexedAgreesWithLinear(t *testing.T) {
	feed := provider.NewFeed()
	svc := proximity.New(proximity.DefaultConfig(), feed)
	feed.Publish(models.NewSample(grounds.Lat, grounds.Lon, time.Now()))
	_, err := svc.GetCurrentPosition(context.Background())
	require.NoError(t, err)

	stops := generateRandomStops(2000)
	index := NewStopIndex()
	index.Index(stops)

	for _, radius := range []float64{300, 500, 1500} {
		t.Run(fmt.Sprintf("%.0fm", radius), func(t *testing.T) {
			linear := proximity.FindNearby(svc, stops, radius)
			indexed := proximity.FindNearbyIndexed[models.Stop](svc, index, radius)
			assert.NotEmpty(t, linear)
			assert.Equal(t, linear, indexed)
		})
	}
}

func TestPersistence(t *testing.T) {
	index1 := NewStopIndex()
	index1.Index(generateRandomStops(100))

	tempFile := filepath.Join(t.TempDir(), "stops.gob")
	require.NoError(t, index1.SaveToFile(tempFile))

	index2 := NewStopIndex()
	require.NoError(t, index2.LoadFromFile(tempFile))

	assert.Equal(t, index1.Count(), index2.Count())
	assert.Equal(t, index1.Stops(), index2.Stops())
	assert.Equal(t, index1.Within(grounds, 1000), index2.Within(grounds, 1000))

	assert.Error(t, index2.LoadFromFile(filepath.Join(t.TempDir(), "missing.gob")))
}

func TestLoadStopsYAML(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "stops.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
stops:
  - id: rotunda
    name: Rotunda
    lat: 38.0356
    lon: -78.5034
    routes: [gold, silver]
  - id: newcomb
    name: Newcomb Hall
    lat: 38.0359
    lon: -78.5067
`), 0o644))

	stops, err := LoadStopsYAML(good)
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, []string{"gold", "silver"}, stops[0].Routes)
	assert.Equal(t, "Newcomb Hall", stops[1].Name)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("stops:\n  - name: no id\n    lat: 1\n    lon: 1\n"), 0o644))
	_, err = LoadStopsYAML(bad)
	assert.Error(t, err)
}

func TestConcurrentQueries(t *testing.T) {
	index := NewStopIndex()
	index.Index(generateRandomStops(5000))

	// Run concurrent queries while a writer keeps adding stops
	done := make(chan bool, 101)
	go func() {
		defer func() { done <- true }()
		for i := 0; i < 20; i++ {
			index.Index([]models.Stop{{ID: fmt.Sprintf("late_%d", i), Lat: grounds.Lat, Lon: grounds.Lon}})
		}
	}()
	for i := 0; i < 100; i++ {
		go func(i int) {
			defer func() { done <- true }()

			switch i % 3 {
			case 0:
				_ = index.Within(grounds, 800)
			case 1:
				assert.NotEmpty(t, index.Nearest(grounds, 10))
			case 2:
				assert.GreaterOrEqual(t, len(index.Stops()), 5000)
			}
		}(i)
	}

	for i := 0; i < 101; i++ {
		<-done
	}
	assert.Equal(t, 5020, index.Count())
}

// Helper function to generate random stops around the grounds
func generateRandomStops(n int) []models.Stop {
	r := rand.New(rand.NewSource(7))
	stops := make([]models.Stop, n)
	for i := 0; i < n; i++ {
		stops[i] = models.Stop{
			ID:  fmt.Sprintf("stop_%d", i),
			Lat: grounds.Lat + (r.Float64()-0.5)*0.04, // about ±2.2 km
			Lon: grounds.Lon + (r.Float64()-0.5)*0.05,
		}
	}
	return stops
}

func BenchmarkStopIndexWithin(b *testing.B) {
	index := NewStopIndex()
	index.Index(generateRandomStops(100000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = index.Within(grounds, 500)
	}
}
