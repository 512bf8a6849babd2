package proximity

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	testCases := []struct {
		name     string
		lat1     float64
		lon1     float64
		lat2     float64
		lon2     float64
		expected float64
		delta    float64
	}{
		{
			name: "Same point",
			lat1: 38.0336, lon1: -78.5080,
			lat2: 38.0336, lon2: -78.5080,
			expected: 0,
			delta:    0,
		},
		{
			name: "Grounds to Rotunda lawn",
			lat1: 38.0336, lon1: -78.5080,
			lat2: 38.0356, lon2: -78.5090,
			expected: 236,
			delta:    5,
		},
		{
			name: "Charlottesville to Richmond",
			lat1: 38.0293, lon1: -78.4767,
			lat2: 37.5407, lon2: -77.4360,
			expected: 106000,
			delta:    2000,
		},
		{
			name: "Antipodes",
			lat1: 0, lon1: 0,
			lat2: 0, lon2: 180,
			expected: math.Pi * EarthRadiusMeters,
			delta:    1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dist := DistanceMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			assert.False(t, math.IsNaN(dist))
			assert.InDelta(t, tc.expected, dist, tc.delta)
		})
	}
}

func TestDistanceIdentityAndSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		lat1, lon1 := r.Float64()*180-90, r.Float64()*360-180
		lat2, lon2 := r.Float64()*180-90, r.Float64()*360-180

		assert.Equal(t, 0.0, DistanceMeters(lat1, lon1, lat1, lon1))

		ab := DistanceMeters(lat1, lon1, lat2, lon2)
		ba := DistanceMeters(lat2, lon2, lat1, lon1)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.InDelta(t, ab, ba, math.Max(ab*1e-6, 1e-9))
	}
}

func BenchmarkDistanceMeters(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DistanceMeters(38.0336, -78.5080, 38.0356, -78.5090)
	}
}
