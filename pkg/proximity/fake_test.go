package proximity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/1F47E/go-proximity/pkg/models"
)

type fakeSubscription struct {
	loc     *fakeLocator
	id      int
	removed bool
}

func (s *fakeSubscription) Remove() {
	s.loc.mu.Lock()
	defer s.loc.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	delete(s.loc.active, s.id)
	s.loc.removals++
}

// fakeLocator is a scriptable Locator
type fakeLocator struct {
	mu sync.Mutex

	status        PermissionStatus
	statusErr     error
	grantOnAsk    bool
	requestCalls  int
	fixCalls      int
	subscribeErr  error
	fixFn         func(ctx context.Context, req FixRequest) (models.PositionSample, error)
	lastFix       FixRequest
	lastWatch     WatchRequest
	nextID        int
	active        map[int]func(models.PositionSample)
	removals      int
	subscribeHits int
}

func newFakeLocator(status PermissionStatus) *fakeLocator {
	return &fakeLocator{
		status: status,
		active: make(map[int]func(models.PositionSample)),
	}
}

func (f *fakeLocator) PermissionStatus(ctx context.Context) (PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeLocator) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestCalls++
	if f.grantOnAsk {
		f.status = PermissionGranted
	}
	return f.status, nil
}

func (f *fakeLocator) CurrentPosition(ctx context.Context, req FixRequest) (models.PositionSample, error) {
	f.mu.Lock()
	f.fixCalls++
	f.lastFix = req
	fn := f.fixFn
	f.mu.Unlock()

	if fn == nil {
		return models.PositionSample{}, errors.New("no fix scripted")
	}
	return fn(ctx, req)
}

func (f *fakeLocator) Subscribe(ctx context.Context, req WatchRequest, fn func(models.PositionSample)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeHits++
	f.lastWatch = req
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.nextID++
	f.active[f.nextID] = fn
	return &fakeSubscription{loc: f, id: f.nextID}, nil
}

// emit pushes a sample to every live subscription
func (f *fakeLocator) emit(sample models.PositionSample) {
	f.mu.Lock()
	fns := make([]func(models.PositionSample), 0, len(f.active))
	for _, fn := range f.active {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(sample)
	}
}

func (f *fakeLocator) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

// recordingMetrics counts calls into the Metrics interface
type recordingMetrics struct {
	mu        sync.Mutex
	denied    int
	fixes     int
	fixErrs   int
	started   int
	stopped   int
	delivered int
	dropped   int
	geocodes  int
	fallbacks int
}

func (m *recordingMetrics) PermissionDeniedInc() { m.mu.Lock(); m.denied++; m.mu.Unlock() }

func (m *recordingMetrics) FixObserved(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixes++
	if err != nil {
		m.fixErrs++
	}
}

func (m *recordingMetrics) WatchStarted() { m.mu.Lock(); m.started++; m.mu.Unlock() }
func (m *recordingMetrics) WatchStopped() { m.mu.Lock(); m.stopped++; m.mu.Unlock() }

func (m *recordingMetrics) UpdateDelivered(dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered++
	if dropped {
		m.dropped++
	}
}

func (m *recordingMetrics) GeocodeObserved(fallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geocodes++
	if fallback {
		m.fallbacks++
	}
}

type fakeGeocoder struct {
	addresses []models.Address
	err       error
}

func (g fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) ([]models.Address, error) {
	return g.addresses, g.err
}
