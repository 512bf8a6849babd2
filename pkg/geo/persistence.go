package geo

import (
	"encoding/gob"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/1F47E/go-proximity/pkg/models"
)

// IndexData represents the serializable form of the stop index
type IndexData struct {
	Stops []models.Stop `json:"stops"`
	Count int           `json:"count"`
}

// SaveToFile saves the index to a binary file
func (g *StopIndex) SaveToFile(filename string) error {
	data := IndexData{Stops: g.Stops()}
	data.Count = len(data.Stops)

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return nil
}

// LoadFromFile replaces the index contents with a file written by SaveToFile
func (g *StopIndex) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data IndexData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	if len(data.Stops) != data.Count {
		return fmt.Errorf("corrupt index: header says %d stops, found %d", data.Count, len(data.Stops))
	}

	g.Clear()
	g.Index(data.Stops)
	return nil
}

// stopCatalog is the YAML layout of a stop list
type stopCatalog struct {
	Stops []models.Stop `yaml:"stops"`
}

// LoadStopsYAML reads a stop catalog such as
//
//	stops:
//	  - id: rotunda
//	    name: Rotunda
//	    lat: 38.0356
//	    lon: -78.5034
//	    routes: [gold, silver]
func LoadStopsYAML(filename string) ([]models.Stop, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read stops: %w", err)
	}

	var catalog stopCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse stops: %w", err)
	}

	for i, s := range catalog.Stops {
		if s.ID == "" {
			return nil, fmt.Errorf("stop #%d has no id", i+1)
		}
		if !s.Coordinate().Valid() {
			return nil, fmt.Errorf("stop %s has invalid coordinates (%.6f, %.6f)", s.ID, s.Lat, s.Lon)
		}
	}
	return catalog.Stops, nil
}
