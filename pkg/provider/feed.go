// Package provider implements proximity.Locator on top of position feeds:
// samples pushed in process, replayed from a recorded track, or received over NATS.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

// Feed is a Locator fed by Publish. It remembers the latest sample so fix
// requests within MaxAge are answered from cache; otherwise they wait for the
// next published sample. Each subscription applies its own Throttle.
type Feed struct {
	mu             sync.Mutex
	permission     proximity.PermissionStatus
	grantOnRequest bool
	latest         *models.PositionSample
	receivedAt     time.Time
	waiters        map[chan models.PositionSample]struct{}
	subs           map[*feedSubscription]struct{}
	now            func() time.Time
}

// FeedOption configures a Feed
type FeedOption func(*Feed)

// WithPermission sets the initial permission state and whether a request grants it
func WithPermission(status proximity.PermissionStatus, grantOnRequest bool) FeedOption {
	return func(f *Feed) {
		f.permission = status
		f.grantOnRequest = grantOnRequest
	}
}

// WithClock overrides time.Now, used for cache age checks
func WithClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

// NewFeed creates a feed with permission already granted
func NewFeed(opts ...FeedOption) *Feed {
	f := &Feed{
		permission: proximity.PermissionGranted,
		waiters:    make(map[chan models.PositionSample]struct{}),
		subs:       make(map[*feedSubscription]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetPermission changes the permission state, as when the user edits settings
func (f *Feed) SetPermission(status proximity.PermissionStatus) {
	f.mu.Lock()
	f.permission = status
	f.mu.Unlock()
}

func (f *Feed) PermissionStatus(ctx context.Context) (proximity.PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission, nil
}

// RequestPermission resolves an undetermined state. A denial is sticky.
func (f *Feed) RequestPermission(ctx context.Context) (proximity.PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.permission == proximity.PermissionUndetermined {
		if f.grantOnRequest {
			f.permission = proximity.PermissionGranted
		} else {
			f.permission = proximity.PermissionDenied
		}
	}
	return f.permission, nil
}

// CurrentPosition returns the cached sample if it is fresh enough, otherwise
// blocks until the next Publish or until ctx is done. The accuracy hint is ignored.
func (f *Feed) CurrentPosition(ctx context.Context, req proximity.FixRequest) (models.PositionSample, error) {
	f.mu.Lock()
	if f.latest != nil && f.now().Sub(f.receivedAt) <= req.MaxAge {
		sample := *f.latest
		f.mu.Unlock()
		return sample, nil
	}
	w := make(chan models.PositionSample, 1)
	f.waiters[w] = struct{}{}
	f.mu.Unlock()

	select {
	case sample := <-w:
		return sample, nil
	case <-ctx.Done():
		f.mu.Lock()
		delete(f.waiters, w)
		f.mu.Unlock()
		return models.PositionSample{}, ctx.Err()
	}
}

func (f *Feed) Subscribe(ctx context.Context, req proximity.WatchRequest, fn func(models.PositionSample)) (proximity.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &feedSubscription{
		feed:     f,
		throttle: proximity.NewThrottle(req),
		fn:       fn,
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub, nil
}

// Publish records a new sample, wakes pending fix requests and offers the
// sample to every subscription.
func (f *Feed) Publish(sample models.PositionSample) {
	f.mu.Lock()
	f.latest = &sample
	f.receivedAt = f.now()
	waiters := f.waiters
	f.waiters = make(map[chan models.PositionSample]struct{})
	subs := make([]*feedSubscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for w := range waiters {
		w <- sample
	}
	for _, s := range subs {
		s.offer(sample)
	}
}

// Subscribers returns the number of live subscriptions
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type feedSubscription struct {
	feed     *Feed
	throttle *proximity.Throttle
	fn       func(models.PositionSample)

	mu      sync.Mutex
	removed bool
}

func (s *feedSubscription) offer(sample models.PositionSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed || !s.throttle.Allow(sample) {
		return
	}
	s.fn(sample)
}

func (s *feedSubscription) Remove() {
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()

	s.feed.mu.Lock()
	delete(s.feed.subs, s)
	s.feed.mu.Unlock()
}
