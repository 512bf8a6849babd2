package proximity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/1F47E/go-proximity/pkg/models"
)

func TestThrottle(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	// 0.0001 deg latitude is about 11 m
	at := func(sec int, dLat float64) models.PositionSample {
		return models.NewSample(38.0336+dLat, -78.5080, base.Add(time.Duration(sec)*time.Second))
	}

	th := NewThrottle(WatchRequest{MinInterval: 5 * time.Second, MinDistance: 10})

	assert.True(t, th.Allow(at(0, 0)), "first sample always passes")
	assert.False(t, th.Allow(at(1, 0)), "too soon, no movement")
	assert.False(t, th.Allow(at(2, 0.00005)), "too soon, moved ~5 m")
	assert.True(t, th.Allow(at(3, 0.0001)), "moved ~11 m")
	assert.False(t, th.Allow(at(4, 0.0001)), "reference resets on pass")
	assert.True(t, th.Allow(at(8, 0.0001)), "interval elapsed")
}

func TestThrottleWithoutCoords(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	th := NewThrottle(WatchRequest{MinInterval: 5 * time.Second, MinDistance: 10})

	assert.True(t, th.Allow(models.PositionSample{Timestamp: base}))
	assert.False(t, th.Allow(models.NewSample(40, -70, base.Add(time.Second))))
	assert.True(t, th.Allow(models.PositionSample{Timestamp: base.Add(5 * time.Second)}))
}
