// Package seed loads the fixed place collection the hub starts from.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/couchcryptid/place-state-hub/internal/domain"
)

// record mirrors one entry of the seed file.
type record struct {
	ID         string   `json:"id" toml:"id"`
	Name       string   `json:"name" toml:"name"`
	State      string   `json:"state" toml:"state"`
	Category   string   `json:"category" toml:"category"`
	Lat        *float64 `json:"lat" toml:"lat"`
	Lng        *float64 `json:"lng" toml:"lng"`
	Capacity   int      `json:"capacity" toml:"capacity"`
	CrowdCount int      `json:"crowdCount" toml:"crowdCount"`
}

type tomlFile struct {
	Places []record `toml:"places"`
}

// Load reads a seed file. Files ending in .toml are parsed as TOML with a
// [[places]] array; anything else is a JSON array.
func Load(path string) ([]domain.Place, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return ParseJSON(data)
}

// ParseJSON decodes a JSON array of places.
func ParseJSON(data []byte) ([]domain.Place, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode seed json: %w", err)
	}
	return toPlaces(records)
}

// ParseTOML decodes a TOML document with a [[places]] array.
func ParseTOML(data []byte) ([]domain.Place, error) {
	var f tomlFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("decode seed toml: %w", err)
	}
	return toPlaces(f.Places)
}

func toPlaces(records []record) ([]domain.Place, error) {
	if len(records) == 0 {
		return nil, domain.Invalid("places", "seed contains no places")
	}
	seen := make(map[string]struct{}, len(records))
	places := make([]domain.Place, 0, len(records))
	for i, r := range records {
		p := domain.Place{
			ID:         r.ID,
			Name:       r.Name,
			State:      r.State,
			Category:   r.Category,
			Capacity:   r.Capacity,
			CrowdCount: r.CrowdCount,
		}
		switch {
		case r.Lat != nil && r.Lng != nil:
			p.Geo = &domain.Geo{Lat: *r.Lat, Lon: *r.Lng}
		case r.Lat != nil || r.Lng != nil:
			return nil, fmt.Errorf("seed place %d (%s): %w", i, r.ID, domain.Invalid("lat/lng", "both or neither must be set"))
		}
		valid, err := domain.NewPlace(p)
		if err != nil {
			return nil, fmt.Errorf("seed place %d (%s): %w", i, r.ID, err)
		}
		if _, dup := seen[valid.ID]; dup {
			return nil, domain.Invalid("id", fmt.Sprintf("duplicate place id %q", valid.ID))
		}
		seen[valid.ID] = struct{}{}
		places = append(places, valid)
	}
	return places, nil
}

// Geocode fills in coordinates for places that lack them. A nil geocoder
// leaves the places unchanged.
func Geocode(ctx context.Context, places []domain.Place, geocoder domain.Geocoder, logger *slog.Logger) []domain.Place {
	if geocoder == nil {
		return places
	}
	out := make([]domain.Place, len(places))
	resolved := 0
	for i, p := range places {
		out[i] = domain.GeocodePlace(ctx, p, geocoder, logger)
		if !p.HasCoordinates() && out[i].HasCoordinates() {
			resolved++
		}
	}
	logger.Info("seed geocoding complete", "places", len(places), "resolved", resolved)
	return out
}

// Restore overlays the crowd state of a previous snapshot onto the seed.
// Places missing from the snapshot keep their seed values; snapshot entries
// for unknown ids are ignored. Levels are reclassified against the seed
// capacity.
func Restore(places []domain.Place, saved []domain.Place) ([]domain.Place, int) {
	byID := make(map[string]domain.Place, len(saved))
	for _, p := range saved {
		byID[p.ID] = p
	}
	out := make([]domain.Place, len(places))
	restored := 0
	for i, p := range places {
		if s, ok := byID[p.ID]; ok && s.CrowdCount >= 0 {
			p = p.WithCrowd(s.CrowdCount, domain.Classify(s.CrowdCount, p.Capacity), s.UpdatedAt)
			restored++
		}
		out[i] = p
	}
	return out, restored
}
