package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/1F47E/go-proximity/pkg/geo"
	"github.com/1F47E/go-proximity/pkg/geocode"
	"github.com/1F47E/go-proximity/pkg/metrics"
	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/postgis"
	"github.com/1F47E/go-proximity/pkg/provider"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

// serviceOptions wires the configured geocoder and an optional collector
func serviceOptions(collector *metrics.Collector) (opts []proximity.Option, closeFn func()) {
	opts = []proximity.Option{proximity.WithLogger(logger)}
	closeFn = func() {}

	var rev geocode.Reverser = geocode.NewNominatim(cfg.Geocode.NominatimURL, cfg.Geocode.UserAgent)
	if cfg.Geocode.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Geocode.RedisAddr})
		rev = geocode.NewCached(rev, rc, cfg.Geocode.CacheTTL, logger)
		closeFn = func() { _ = rc.Close() }
	}
	opts = append(opts, proximity.WithGeocoder(rev))

	if collector != nil {
		opts = append(opts, proximity.WithMetrics(collector))
	}
	return opts, closeFn
}

// fixAt builds a service whose one-shot fix answers with the given point
func fixAt(ctx context.Context, lat, lon float64) (*proximity.Service, func(), error) {
	if !(models.Coordinate{Lat: lat, Lon: lon}).Valid() {
		return nil, nil, fmt.Errorf("invalid coordinate %g,%g", lat, lon)
	}

	feed := provider.NewFeed()
	opts, closeFn := serviceOptions(nil)
	svc := proximity.New(cfg.Service(), feed, opts...)

	feed.Publish(models.NewSample(lat, lon, time.Now()))
	if _, err := svc.GetCurrentPosition(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return svc, func() {
		svc.Cleanup()
		closeFn()
	}, nil
}

type stopFlags struct {
	stopsFile  string
	indexFile  string
	usePostGIS bool
}

func (f *stopFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.stopsFile, "stops", "", "Stop catalog (YAML)")
	cmd.Flags().StringVar(&f.indexFile, "index", "", "Prebuilt stop index (gob)")
	cmd.Flags().BoolVar(&f.usePostGIS, "postgis", false, "Query stops from PostGIS (postgis.dsn)")
}

func (f *stopFlags) resolve() {
	if f.stopsFile == "" {
		f.stopsFile = cfg.Nearby.StopsFile
	}
	if f.indexFile == "" {
		f.indexFile = cfg.Nearby.IndexFile
	}
}

// loadIndex builds an in-memory index from the gob snapshot or the YAML catalog
func (f *stopFlags) loadIndex() (*geo.StopIndex, error) {
	f.resolve()
	index := geo.NewStopIndex()

	switch {
	case f.indexFile != "":
		if err := index.LoadFromFile(f.indexFile); err != nil {
			return nil, err
		}
	case f.stopsFile != "":
		stops, err := geo.LoadStopsYAML(f.stopsFile)
		if err != nil {
			return nil, err
		}
		index.Index(stops)
	default:
		return nil, errors.New("no stops: pass --stops, --index or --postgis")
	}

	logger.Debug("stops_loaded", "count", index.Count())
	return index, nil
}

func openStore(ctx context.Context) (*postgis.StopStore, error) {
	if cfg.PostGIS.DSN == "" {
		return nil, errors.New("postgis.dsn is not configured")
	}
	return postgis.Open(ctx, cfg.PostGIS.DSN)
}
