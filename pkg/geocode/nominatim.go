// Package geocode turns coordinates into addresses for display.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/1F47E/go-proximity/pkg/models"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim endpoint
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// nominatimResponse mirrors the jsonv2 reverse payload, only the fields we use
type nominatimResponse struct {
	Error   string `json:"error"`
	Name    string `json:"name"`
	Address struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
		Country     string `json:"country"`
	} `json:"address"`
}

// Nominatim is a reverse geocoder backed by a Nominatim server
type Nominatim struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// NewNominatim creates a client. An empty baseURL uses the public server.
func NewNominatim(baseURL, userAgent string) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &Nominatim{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// ReverseGeocode returns at most one address; an empty slice when the server
// knows nothing about the point.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lon float64) ([]models.Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if n.UserAgent != "" {
		req.Header.Set("User-Agent", n.UserAgent)
	}

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var r nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	if r.Error != "" {
		// "Unable to geocode" is an empty answer, not a failure
		if r.Error == "Unable to geocode" {
			return []models.Address{}, nil
		}
		return nil, errors.New("nominatim: " + r.Error)
	}

	street := r.Address.Road
	if r.Address.HouseNumber != "" && street != "" {
		street = r.Address.HouseNumber + " " + street
	}
	return []models.Address{{
		Street:     street,
		Name:       r.Name,
		City:       firstNonEmpty(r.Address.City, r.Address.Town, r.Address.Village),
		Region:     r.Address.State,
		PostalCode: r.Address.Postcode,
		Country:    r.Address.Country,
	}}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
