// Package proximity tracks the device position and answers proximity questions
// about it: service-area membership, distances and nearby points of interest.
package proximity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1F47E/go-proximity/pkg/models"
)

const (
	DefaultMaxFixAge     = 10 * time.Second
	DefaultWatchInterval = 5 * time.Second
	DefaultWatchDistance = 10.0  // meters
	DefaultNearbyRadius  = 500.0 // meters
	DefaultStreamBuffer  = 16

	// UnknownLocation is what DescribeLocation returns when no label can be built
	UnknownLocation = "Unknown location"
)

// Config holds the immutable settings of a Service
type Config struct {
	Region models.BoundingBox

	Accuracy   Accuracy
	MaxFixAge  time.Duration
	FixTimeout time.Duration // zero leaves the timeout to the provider

	WatchInterval time.Duration
	WatchDistance float64
	StreamBuffer  int

	NearbyRadius float64

	FallbackCity   string
	FallbackRegion string
}

// DefaultConfig returns the Charlottesville deployment defaults
func DefaultConfig() Config {
	return Config{
		Region: models.BoundingBox{
			North: 38.1,
			South: 37.9,
			East:  -78.4,
			West:  -78.6,
		},
		Accuracy:       AccuracyBalanced,
		MaxFixAge:      DefaultMaxFixAge,
		WatchInterval:  DefaultWatchInterval,
		WatchDistance:  DefaultWatchDistance,
		StreamBuffer:   DefaultStreamBuffer,
		NearbyRadius:   DefaultNearbyRadius,
		FallbackCity:   "Charlottesville",
		FallbackRegion: "VA",
	}
}

// Option customises a Service
type Option func(*Service)

// WithGeocoder sets the reverse geocoder used by DescribeLocation
func WithGeocoder(g Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

// WithMetrics attaches a metrics observer
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger, slog.Default() otherwise
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPermissionDeniedHook registers fn to run each time the permission gate denies access
func WithPermissionDeniedHook(fn func()) Option {
	return func(s *Service) { s.onDenied = fn }
}

// Service owns the last-known position and the single live subscription
type Service struct {
	cfg      Config
	locator  Locator
	geocoder Geocoder
	metrics  Metrics
	logger   *slog.Logger
	onDenied func()

	// watchMu serialises Watch and stop calls; lock order is watchMu, Stream.mu, mu
	watchMu sync.Mutex

	mu      sync.Mutex
	last    *models.PositionSample
	current *Stream
}

// New creates a Service around the given provider
func New(cfg Config, locator Locator, opts ...Option) *Service {
	if cfg.Accuracy == 0 {
		cfg.Accuracy = AccuracyBalanced
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}
	if cfg.NearbyRadius <= 0 {
		cfg.NearbyRadius = DefaultNearbyRadius
	}

	s := &Service{
		cfg:     cfg,
		locator: locator,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration
func (s *Service) Config() Config {
	return s.cfg
}

// EnsurePermission confirms foreground location access, requesting it at most once.
// It returns ErrPermissionDenied when access is not granted after the request.
func (s *Service) EnsurePermission(ctx context.Context) error {
	status, err := s.locator.PermissionStatus(ctx)
	if err != nil {
		s.logger.Warn("permission_status_error", "err", err)
		return s.denied()
	}
	if status == PermissionGranted {
		return nil
	}

	status, err = s.locator.RequestPermission(ctx)
	if err != nil {
		s.logger.Warn("permission_request_error", "err", err)
		return s.denied()
	}
	if status != PermissionGranted {
		s.logger.Info("permission_denied", "status", status.String())
		return s.denied()
	}
	return nil
}

func (s *Service) denied() error {
	if s.metrics != nil {
		s.metrics.PermissionDeniedInc()
	}
	if s.onDenied != nil {
		s.onDenied()
	}
	return ErrPermissionDenied
}

// GetCurrentPosition acquires a single fix and stores it as the last-known position.
// A provider failure leaves the stored position untouched.
func (s *Service) GetCurrentPosition(ctx context.Context) (models.PositionSample, error) {
	if err := s.EnsurePermission(ctx); err != nil {
		return models.PositionSample{}, err
	}

	if s.cfg.FixTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FixTimeout)
		defer cancel()
	}

	start := time.Now()
	sample, err := s.locator.CurrentPosition(ctx, FixRequest{
		Accuracy: s.cfg.Accuracy,
		MaxAge:   s.cfg.MaxFixAge,
	})
	if s.metrics != nil {
		s.metrics.FixObserved(time.Since(start), err)
	}
	if err != nil {
		s.logger.Warn("position_unavailable", "err", err)
		return models.PositionSample{}, fmt.Errorf("%w: %w", ErrPositionUnavailable, err)
	}

	s.remember(sample)
	s.logger.Debug("position_fix", "lat", latOf(sample), "lon", lonOf(sample), "duration_ms", time.Since(start).Milliseconds())
	return sample, nil
}

// LastKnown returns the stored position, if any
func (s *Service) LastKnown() (models.PositionSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return models.PositionSample{}, false
	}
	return *s.last, true
}

func (s *Service) remember(sample models.PositionSample) {
	s.mu.Lock()
	s.last = &sample
	s.mu.Unlock()
}

// Watch opens a position stream, closing any stream opened before it.
// The stream outlives ctx; release it with Stream.Stop, StopWatching or Cleanup.
func (s *Service) Watch(ctx context.Context) (*Stream, error) {
	if err := s.EnsurePermission(ctx); err != nil {
		return nil, err
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if prev := s.detach(nil); prev != nil {
		s.closeStream(prev)
	}

	st := newStream(s, s.cfg.StreamBuffer)
	sub, err := s.locator.Subscribe(ctx, WatchRequest{
		Accuracy:    s.cfg.Accuracy,
		MinInterval: s.cfg.WatchInterval,
		MinDistance: s.cfg.WatchDistance,
	}, st.deliver)
	if err != nil {
		st.close()
		s.logger.Warn("watch_subscribe_error", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	st.attach(sub)

	s.mu.Lock()
	s.current = st
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.WatchStarted()
	}
	s.logger.Debug("watch_started", "stream", st.ID())
	return st, nil
}

// StartWatching opens a stream and forwards every sample to onUpdate until the
// stream is stopped. Samples still buffered at that point are discarded.
// It reports whether the subscription was established.
func (s *Service) StartWatching(ctx context.Context, onUpdate func(models.PositionSample)) bool {
	st, err := s.Watch(ctx)
	if err != nil {
		return false
	}
	if onUpdate != nil {
		go func() {
			for sample := range st.C() {
				select {
				case <-st.Done():
					return
				default:
				}
				onUpdate(sample)
			}
		}()
	}
	return true
}

// StopWatching releases the active subscription. It is a no-op without one.
func (s *Service) StopWatching() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if st := s.detach(nil); st != nil {
		s.closeStream(st)
	}
}

// Watching reports whether a subscription is active
func (s *Service) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Service) release(st *Stream) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	s.detach(st)
	s.closeStream(st)
}

// detach clears the current stream and returns it. With only set, the current
// stream is cleared only when it is only.
func (s *Service) detach(only *Stream) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil || (only != nil && st != only) {
		return nil
	}
	s.current = nil
	return st
}

func (s *Service) closeStream(st *Stream) {
	if !st.close() {
		return
	}
	if s.metrics != nil {
		s.metrics.WatchStopped()
	}
	s.logger.Debug("watch_stopped", "stream", st.ID(), "dropped", st.Dropped())
}

// IsInServiceArea reports whether p lies inside the configured service region
func (s *Service) IsInServiceArea(p *models.PositionSample) bool {
	return InRegion(s.cfg.Region, p)
}

// Cleanup stops watching and forgets the last-known position
func (s *Service) Cleanup() {
	s.StopWatching()

	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}

func latOf(p models.PositionSample) float64 {
	if p.Coords == nil {
		return 0
	}
	return p.Coords.Lat
}

func lonOf(p models.PositionSample) float64 {
	if p.Coords == nil {
		return 0
	}
	return p.Coords.Lon
}
