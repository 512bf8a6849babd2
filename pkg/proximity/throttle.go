package proximity

import (
	"sync"
	"time"

	"github.com/1F47E/go-proximity/pkg/models"
)

// Throttle decides which samples a subscription receives. A sample passes once
// MinInterval has elapsed since the last passed sample, or once it lies at least
// MinDistance meters from it, whichever happens first. The first sample always passes.
type Throttle struct {
	MinInterval time.Duration
	MinDistance float64

	mu   sync.Mutex
	last *models.PositionSample
}

// NewThrottle builds a throttle from a watch request
func NewThrottle(req WatchRequest) *Throttle {
	return &Throttle{MinInterval: req.MinInterval, MinDistance: req.MinDistance}
}

// Allow reports whether sample should be delivered and records it if so
func (t *Throttle) Allow(sample models.PositionSample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil || t.due(sample) {
		t.last = &sample
		return true
	}
	return false
}

func (t *Throttle) due(sample models.PositionSample) bool {
	if sample.Timestamp.Sub(t.last.Timestamp) >= t.MinInterval {
		return true
	}
	if sample.Coords != nil && t.last.Coords != nil && t.MinDistance > 0 {
		return Between(*t.last.Coords, *sample.Coords) >= t.MinDistance
	}
	return false
}
