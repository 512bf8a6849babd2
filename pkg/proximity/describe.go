package proximity

import (
	"context"
	"strings"

	"github.com/1F47E/go-proximity/pkg/models"
)

// DescribeLocation returns a human-readable label for the coordinate.
// It cannot fail: any geocoding problem yields UnknownLocation, so callers
// must not rely on it for anything beyond display.
func (s *Service) DescribeLocation(ctx context.Context, lat, lon float64) string {
	if s.geocoder == nil {
		s.observeGeocode(true)
		return UnknownLocation
	}

	addresses, err := s.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		s.logger.Warn("reverse_geocode_error", "lat", lat, "lon", lon, "err", err)
		s.observeGeocode(true)
		return UnknownLocation
	}
	if len(addresses) == 0 {
		s.observeGeocode(true)
		return UnknownLocation
	}

	s.observeGeocode(false)
	return FormatAddress(addresses[0], s.cfg.FallbackCity, s.cfg.FallbackRegion)
}

func (s *Service) observeGeocode(fallback bool) {
	if s.metrics != nil {
		s.metrics.GeocodeObserved(fallback)
	}
}

// FormatAddress composes "street name, city, region", skipping empty parts.
// City and region fall back to the given defaults when the record lacks them.
func FormatAddress(a models.Address, fallbackCity, fallbackRegion string) string {
	city := strings.TrimSpace(a.City)
	if city == "" {
		city = fallbackCity
	}
	region := strings.TrimSpace(a.Region)
	if region == "" {
		region = fallbackRegion
	}

	parts := []string{
		strings.TrimSpace(strings.TrimSpace(a.Street) + " " + strings.TrimSpace(a.Name)),
		city,
		region,
	}

	label := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			label = append(label, p)
		}
	}
	if len(label) == 0 {
		return UnknownLocation
	}
	return strings.Join(label, ", ")
}
