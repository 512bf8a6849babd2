// Package metrics exposes proximity service activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1F47E/go-proximity/pkg/proximity"
)

type Collector struct {
	reg *prometheus.Registry

	PermissionDenied prometheus.Counter
	Fixes            *prometheus.CounterVec // result label: ok|denied|unavailable|timeout|error
	FixDuration      prometheus.Histogram

	WatchActive   prometheus.Gauge
	WatchStarts   prometheus.Counter
	Updates       prometheus.Counter
	UpdateDropped prometheus.Counter

	Geocodes *prometheus.CounterVec // result label: resolved|fallback
}

var _ proximity.Metrics = (*Collector)(nil)

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PermissionDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proximity_permission_denied_total",
			Help: "Location requests refused because permission was not granted.",
		}),
		Fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proximity_fixes_total",
			Help: "One-shot position requests by result.",
		}, []string{"result"}),
		FixDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proximity_fix_duration_seconds",
			Help:    "Time taken to obtain a one-shot position.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		WatchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proximity_watch_active",
			Help: "1 while a live position subscription is running.",
		}),
		WatchStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proximity_watch_started_total",
			Help: "Live subscriptions started.",
		}),
		Updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proximity_updates_total",
			Help: "Position updates delivered to the live stream.",
		}),
		UpdateDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proximity_updates_dropped_total",
			Help: "Stale updates discarded because the consumer fell behind.",
		}),
		Geocodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proximity_geocode_total",
			Help: "Reverse-geocoding lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.PermissionDenied, c.Fixes, c.FixDuration,
		c.WatchActive, c.WatchStarts, c.Updates, c.UpdateDropped,
		c.Geocodes,
	)
	return c
}

func (c *Collector) PermissionDeniedInc() { c.PermissionDenied.Inc() }

func (c *Collector) FixObserved(d time.Duration, err error) {
	c.FixDuration.Observe(d.Seconds())
	c.Fixes.WithLabelValues(fixResult(err)).Inc()
}

func (c *Collector) WatchStarted() {
	c.WatchStarts.Inc()
	c.WatchActive.Set(1)
}

func (c *Collector) WatchStopped() { c.WatchActive.Set(0) }

func (c *Collector) UpdateDelivered(dropped bool) {
	c.Updates.Inc()
	if dropped {
		c.UpdateDropped.Inc()
	}
}

func (c *Collector) GeocodeObserved(fallback bool) {
	if fallback {
		c.Geocodes.WithLabelValues("fallback").Inc()
		return
	}
	c.Geocodes.WithLabelValues("resolved").Inc()
}

func fixResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, proximity.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, proximity.ErrPositionUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics_server_error", "err", err)
		}
	}()
	logger.Info("metrics_listening", "addr", addr)
	return srv
}
