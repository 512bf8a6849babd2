package models

import "time"

// Coordinate represents a geographic location with latitude and longitude
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the coordinate lies within lat [-90, 90] and lon [-180, 180]
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// PositionSample is a timestamped reading produced by a location provider.
// Coords is nil when the provider handed over a sample without a fix.
type PositionSample struct {
	Coords    *Coordinate `json:"coords"`
	Accuracy  *float64    `json:"accuracy,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewSample builds a sample with coordinates set
func NewSample(lat, lon float64, ts time.Time) PositionSample {
	return PositionSample{Coords: &Coordinate{Lat: lat, Lon: lon}, Timestamp: ts}
}

// BoundingBox is an axis-aligned region in degrees
type BoundingBox struct {
	North float64 `json:"north" yaml:"north"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	West  float64 `json:"west" yaml:"west"`
}

// Contains reports whether c lies inside the box. Edges count as inside.
// Boxes crossing the antimeridian are not supported.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.South && c.Lat <= b.North &&
		c.Lon >= b.West && c.Lon <= b.East
}

// Stop is a transit stop used as a point of interest
type Stop struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	Lat    float64  `json:"lat" yaml:"lat"`
	Lon    float64  `json:"lon" yaml:"lon"`
	Routes []string `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// Coordinate returns the stop location
func (s Stop) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lon: s.Lon}
}

// Address is a single reverse-geocoding result. Any field may be empty.
type Address struct {
	Street     string `json:"street,omitempty"`
	Name       string `json:"name,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}
