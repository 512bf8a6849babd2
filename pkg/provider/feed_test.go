package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFeedPermission(t *testing.T) {
	testCases := []struct {
		name       string
		initial    proximity.PermissionStatus
		grant      bool
		afterAsk   proximity.PermissionStatus
	}{
		{"granted stays granted", proximity.PermissionGranted, false, proximity.PermissionGranted},
		{"undetermined granted", proximity.PermissionUndetermined, true, proximity.PermissionGranted},
		{"undetermined declined", proximity.PermissionUndetermined, false, proximity.PermissionDenied},
		{"denied is sticky", proximity.PermissionDenied, true, proximity.PermissionDenied},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFeed(WithPermission(tc.initial, tc.grant))

			status, err := f.PermissionStatus(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.initial, status)

			status, err = f.RequestPermission(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.afterAsk, status)
		})
	}
}

func TestFeedCurrentPositionUsesFreshCache(t *testing.T) {
	clock := &manualClock{now: t0}
	f := NewFeed(WithClock(clock.Now))

	sample := models.NewSample(38.0336, -78.5080, t0)
	f.Publish(sample)
	clock.Advance(9 * time.Second)

	got, err := f.CurrentPosition(context.Background(), proximity.FixRequest{MaxAge: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestFeedCurrentPositionWaitsWhenStale(t *testing.T) {
	clock := &manualClock{now: t0}
	f := NewFeed(WithClock(clock.Now))

	f.Publish(models.NewSample(38.0336, -78.5080, t0))
	clock.Advance(11 * time.Second)

	fresh := models.NewSample(38.0356, -78.5090, t0.Add(11*time.Second))
	done := make(chan models.PositionSample, 1)
	go func() {
		s, err := f.CurrentPosition(context.Background(), proximity.FixRequest{MaxAge: 10 * time.Second})
		assert.NoError(t, err)
		done <- s
	}()

	// publish until the waiter has picked up a sample
	deadline := time.After(2 * time.Second)
	for {
		f.Publish(fresh)
		select {
		case got := <-done:
			assert.Equal(t, fresh, got)
			return
		case <-deadline:
			t.Fatal("waiter never woke up")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestFeedCurrentPositionTimeout(t *testing.T) {
	f := NewFeed()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.CurrentPosition(ctx, proximity.FixRequest{MaxAge: time.Second})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.mu.Lock()
	assert.Empty(t, f.waiters)
	f.mu.Unlock()
}

func TestFeedSubscriptionThrottles(t *testing.T) {
	f := NewFeed()

	var mu sync.Mutex
	var got []models.PositionSample
	sub, err := f.Subscribe(context.Background(), proximity.WatchRequest{
		MinInterval: 5 * time.Second,
		MinDistance: 10,
	}, func(s models.PositionSample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Subscribers())

	f.Publish(models.NewSample(38.0336, -78.5080, t0))
	f.Publish(models.NewSample(38.0336, -78.5080, t0.Add(time.Second)))   // too soon
	f.Publish(models.NewSample(38.0338, -78.5080, t0.Add(2*time.Second))) // ~22 m away
	f.Publish(models.NewSample(38.0338, -78.5080, t0.Add(8*time.Second))) // interval elapsed

	sub.Remove()
	sub.Remove()
	assert.Equal(t, 0, f.Subscribers())
	f.Publish(models.NewSample(38.1, -78.5, t0.Add(time.Minute)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, t0, got[0].Timestamp)
	assert.Equal(t, t0.Add(2*time.Second), got[1].Timestamp)
	assert.Equal(t, t0.Add(8*time.Second), got[2].Timestamp)
}

func TestFeedDrivesService(t *testing.T) {
	f := NewFeed(WithPermission(proximity.PermissionUndetermined, true))
	svc := proximity.New(proximity.DefaultConfig(), f)

	st, err := svc.Watch(context.Background())
	require.NoError(t, err)
	second, err := svc.Watch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.Subscribers())

	f.Publish(models.NewSample(38.0336, -78.5080, t0))

	select {
	case s := <-second.C():
		assert.True(t, svc.IsInServiceArea(&s))
	case <-time.After(time.Second):
		t.Fatal("no sample")
	}
	_, open := <-st.C()
	assert.False(t, open)

	svc.Cleanup()
	assert.Equal(t, 0, f.Subscribers())
}
