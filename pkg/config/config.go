// Package config loads the proximity service settings from YAML, .env and
// PROXIMITY_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

const envPrefix = "PROXIMITY_"

type Config struct {
	Region models.BoundingBox `yaml:"region"`

	Location struct {
		Accuracy       string        `yaml:"accuracy"`
		MaxFixAge      time.Duration `yaml:"max_fix_age"`
		FixTimeout     time.Duration `yaml:"fix_timeout"`
		WatchInterval  time.Duration `yaml:"watch_interval"`
		WatchDistanceM float64       `yaml:"watch_distance_m"`
		StreamBuffer   int           `yaml:"stream_buffer"`
	} `yaml:"location"`

	Nearby struct {
		RadiusM   float64 `yaml:"radius_m"`
		StopsFile string  `yaml:"stops_file"`
		IndexFile string  `yaml:"index_file"`
	} `yaml:"nearby"`

	Geocode struct {
		FallbackCity   string        `yaml:"fallback_city"`
		FallbackRegion string        `yaml:"fallback_region"`
		NominatimURL   string        `yaml:"nominatim_url"`
		UserAgent      string        `yaml:"user_agent"`
		RedisAddr      string        `yaml:"redis_addr"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
	} `yaml:"geocode"`

	Feed struct {
		NATSURL     string  `yaml:"nats_url"`
		NATSSubject string  `yaml:"nats_subject"`
		TrackFile   string  `yaml:"track_file"`
		ReplaySpeed float64 `yaml:"replay_speed"`
	} `yaml:"feed"`

	PostGIS struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgis"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default mirrors proximity.DefaultConfig plus the outer surfaces' defaults
func Default() *Config {
	svc := proximity.DefaultConfig()

	cfg := &Config{Region: svc.Region}
	cfg.Location.Accuracy = svc.Accuracy.String()
	cfg.Location.MaxFixAge = svc.MaxFixAge
	cfg.Location.WatchInterval = svc.WatchInterval
	cfg.Location.WatchDistanceM = svc.WatchDistance
	cfg.Location.StreamBuffer = svc.StreamBuffer
	cfg.Nearby.RadiusM = svc.NearbyRadius
	cfg.Geocode.FallbackCity = svc.FallbackCity
	cfg.Geocode.FallbackRegion = svc.FallbackRegion
	cfg.Geocode.UserAgent = "go-proximity/1.0"
	cfg.Geocode.CacheTTL = time.Hour
	cfg.Feed.NATSSubject = "positions.>"
	cfg.Feed.ReplaySpeed = 1
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads path (optional when empty), then .env, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []string

	floatVar := func(key string, dst *float64) {
		if v := os.Getenv(envPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s%s: %q", envPrefix, key, v))
				return
			}
			*dst = f
		}
	}
	durationVar := func(key string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s%s: %q", envPrefix, key, v))
				return
			}
			*dst = d
		}
	}
	intVar := func(key string, dst *int) {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s%s: %q", envPrefix, key, v))
				return
			}
			*dst = n
		}
	}
	stringVar := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	floatVar("REGION_NORTH", &c.Region.North)
	floatVar("REGION_SOUTH", &c.Region.South)
	floatVar("REGION_EAST", &c.Region.East)
	floatVar("REGION_WEST", &c.Region.West)

	stringVar("ACCURACY", &c.Location.Accuracy)
	durationVar("MAX_FIX_AGE", &c.Location.MaxFixAge)
	durationVar("FIX_TIMEOUT", &c.Location.FixTimeout)
	durationVar("WATCH_INTERVAL", &c.Location.WatchInterval)
	floatVar("WATCH_DISTANCE_M", &c.Location.WatchDistanceM)
	intVar("STREAM_BUFFER", &c.Location.StreamBuffer)

	floatVar("NEARBY_RADIUS_M", &c.Nearby.RadiusM)
	stringVar("STOPS_FILE", &c.Nearby.StopsFile)
	stringVar("INDEX_FILE", &c.Nearby.IndexFile)

	stringVar("FALLBACK_CITY", &c.Geocode.FallbackCity)
	stringVar("FALLBACK_REGION", &c.Geocode.FallbackRegion)
	stringVar("NOMINATIM_URL", &c.Geocode.NominatimURL)
	stringVar("USER_AGENT", &c.Geocode.UserAgent)
	stringVar("REDIS_ADDR", &c.Geocode.RedisAddr)
	durationVar("CACHE_TTL", &c.Geocode.CacheTTL)

	stringVar("NATS_URL", &c.Feed.NATSURL)
	stringVar("NATS_SUBJECT", &c.Feed.NATSSubject)
	stringVar("TRACK_FILE", &c.Feed.TrackFile)
	floatVar("REPLAY_SPEED", &c.Feed.ReplaySpeed)

	stringVar("POSTGIS_DSN", &c.PostGIS.DSN)
	stringVar("METRICS_ADDR", &c.Metrics.Addr)
	stringVar("LOG_LEVEL", &c.Log.Level)
	stringVar("LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	r := c.Region
	if !(models.Coordinate{Lat: r.North, Lon: r.East}).Valid() || !(models.Coordinate{Lat: r.South, Lon: r.West}).Valid() {
		errs = append(errs, "region bounds must be valid coordinates")
	}
	if r.South > r.North {
		errs = append(errs, fmt.Sprintf("region.south (%g) must not exceed region.north (%g)", r.South, r.North))
	}
	// boxes crossing the antimeridian are not supported
	if r.West > r.East {
		errs = append(errs, fmt.Sprintf("region.west (%g) must not exceed region.east (%g)", r.West, r.East))
	}
	if _, err := proximity.ParseAccuracy(c.Location.Accuracy); err != nil {
		errs = append(errs, "location.accuracy: "+err.Error())
	}
	// a zero window makes every published sample stale before it is read
	if c.Location.MaxFixAge <= 0 {
		errs = append(errs, "location.max_fix_age must be positive")
	}
	if c.Location.FixTimeout < 0 {
		errs = append(errs, "location.fix_timeout must not be negative")
	}
	if c.Location.WatchInterval < 0 {
		errs = append(errs, "location.watch_interval must not be negative")
	}
	if c.Location.StreamBuffer < 0 {
		errs = append(errs, "location.stream_buffer must not be negative")
	}
	if c.Nearby.RadiusM <= 0 {
		errs = append(errs, "nearby.radius_m must be positive")
	}
	if c.Feed.ReplaySpeed <= 0 {
		errs = append(errs, "feed.replay_speed must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Service converts the loaded settings into the proximity service configuration
func (c *Config) Service() proximity.Config {
	svc := proximity.DefaultConfig()
	svc.Region = c.Region
	if a, err := proximity.ParseAccuracy(c.Location.Accuracy); err == nil {
		svc.Accuracy = a
	}
	svc.MaxFixAge = c.Location.MaxFixAge
	svc.FixTimeout = c.Location.FixTimeout
	svc.WatchInterval = c.Location.WatchInterval
	svc.WatchDistance = c.Location.WatchDistanceM
	if c.Location.StreamBuffer > 0 {
		svc.StreamBuffer = c.Location.StreamBuffer
	}
	svc.NearbyRadius = c.Nearby.RadiusM
	svc.FallbackCity = c.Geocode.FallbackCity
	svc.FallbackRegion = c.Geocode.FallbackRegion
	return svc
}
