package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/1F47E/go-proximity/pkg/models"
)

// DefaultCacheTTL is how long a reverse-geocoding answer is reused
const DefaultCacheTTL = time.Hour

// Reverser is the subset of proximity.Geocoder the cache wraps
type Reverser interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) ([]models.Address, error)
}

// Cached stores answers from another geocoder in redis. Redis failures are
// logged and bypassed; they never fail a lookup.
type Cached struct {
	next   Reverser
	rc     *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next. A nil rc disables caching.
func NewCached(next Reverser, rc *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, rc: rc, ttl: ttl, logger: logger}
}

// CacheKey rounds to four decimals, about 11 m, so nearby lookups share an entry
func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("revgeo:%.4f:%.4f", lat, lon)
}

func (c *Cached) ReverseGeocode(ctx context.Context, lat, lon float64) ([]models.Address, error) {
	if c.rc == nil {
		return c.next.ReverseGeocode(ctx, lat, lon)
	}

	key := CacheKey(lat, lon)
	if s, err := c.rc.Get(ctx, key).Result(); err == nil {
		var cached []models.Address
		if err := json.Unmarshal([]byte(s), &cached); err == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("revgeo_cache_get_error", "key", key, "err", err)
	}

	addresses, err := c.next.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	// empty answers are not cached so a later lookup can still succeed
	if len(addresses) == 0 {
		return addresses, nil
	}

	b, err := json.Marshal(addresses)
	if err == nil {
		if err := c.rc.Set(ctx, key, string(b), c.ttl).Err(); err != nil {
			c.logger.Warn("revgeo_cache_set_error", "key", key, "err", err)
		}
	}
	return addresses, nil
}
