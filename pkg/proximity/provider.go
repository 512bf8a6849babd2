package proximity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/1F47E/go-proximity/pkg/models"
)

// PermissionStatus is the foreground location permission state reported by the platform
type PermissionStatus int

const (
	PermissionUndetermined PermissionStatus = iota
	PermissionGranted
	PermissionDenied
)

func (p PermissionStatus) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "undetermined"
	}
}

// Accuracy is a hint passed to the provider about the fix quality wanted
type Accuracy int

const (
	AccuracyLowest Accuracy = iota + 1
	AccuracyLow
	AccuracyBalanced
	AccuracyHigh
	AccuracyHighest
)

var accuracyNames = map[Accuracy]string{
	AccuracyLowest:   "lowest",
	AccuracyLow:      "low",
	AccuracyBalanced: "balanced",
	AccuracyHigh:     "high",
	AccuracyHighest:  "highest",
}

func (a Accuracy) String() string {
	if name, ok := accuracyNames[a]; ok {
		return name
	}
	return fmt.Sprintf("accuracy(%d)", int(a))
}

// ParseAccuracy converts a config value such as "balanced" into an Accuracy
func ParseAccuracy(s string) (Accuracy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range accuracyNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown accuracy %q", s)
}

// FixRequest parameters a one-shot position request
type FixRequest struct {
	Accuracy Accuracy
	// MaxAge allows the provider to answer with a cached fix no older than this
	MaxAge time.Duration
}

// WatchRequest parameters a continuous subscription.
// An update is due once MinInterval has elapsed or the device moved MinDistance meters.
type WatchRequest struct {
	Accuracy    Accuracy
	MinInterval time.Duration
	MinDistance float64
}

// Subscription is a live provider subscription
type Subscription interface {
	Remove()
}

// Locator is the platform location provider
type Locator interface {
	PermissionStatus(ctx context.Context) (PermissionStatus, error)
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	CurrentPosition(ctx context.Context, req FixRequest) (models.PositionSample, error)
	Subscribe(ctx context.Context, req WatchRequest, fn func(models.PositionSample)) (Subscription, error)
}

// Geocoder turns coordinates into address records
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) ([]models.Address, error)
}

// Metrics observes service activity. All methods must be safe for concurrent use.
type Metrics interface {
	PermissionDeniedInc()
	FixObserved(d time.Duration, err error)
	WatchStarted()
	WatchStopped()
	UpdateDelivered(dropped bool)
	GeocodeObserved(fallback bool)
}
