package domain

import (
	"strings"
	"time"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate is inside the WGS-84 range.
func (g Geo) Validate() error {
	if g.Lat < -90 || g.Lat > 90 {
		return Invalid("lat", "must be between -90 and 90")
	}
	if g.Lon < -180 || g.Lon > 180 {
		return Invalid("lon", "must be between -180 and 180")
	}
	return nil
}

// Place is a monitored location. Values are immutable snapshots: mutations
// produce a new Place via WithCrowd.
type Place struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	State      string     `json:"state,omitempty"`
	Category   string     `json:"category,omitempty"`
	Geo        *Geo       `json:"geo,omitempty"`
	Capacity   int        `json:"capacity"`
	CrowdCount int        `json:"crowdCount"`
	CrowdLevel CrowdLevel `json:"crowdLevel"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewPlace validates the attributes and derives the crowd level from count and
// capacity. Capacity must be positive so classification never divides by zero.
func NewPlace(p Place) (Place, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return Place{}, Invalid("id", "must not be empty")
	}
	if p.Capacity <= 0 {
		return Place{}, Invalid("capacity", "must be positive")
	}
	if p.Capacity > MaxCount {
		return Place{}, Invalid("capacity", "is out of range")
	}
	if err := CheckCount("crowdCount", p.CrowdCount); err != nil {
		return Place{}, err
	}
	if p.Geo != nil {
		if err := p.Geo.Validate(); err != nil {
			return Place{}, err
		}
		geo := *p.Geo
		p.Geo = &geo
	}
	p.CrowdLevel = Classify(p.CrowdCount, p.Capacity)
	return p, nil
}

// WithCrowd returns a copy carrying the given count and level.
func (p Place) WithCrowd(count int, level CrowdLevel, at time.Time) Place {
	p.CrowdCount = count
	p.CrowdLevel = level
	p.UpdatedAt = at
	return p
}

// HasCoordinates reports whether the place can take part in distance queries.
func (p Place) HasCoordinates() bool {
	return p.Geo != nil
}

// Update projects the place onto the broadcast payload.
func (p Place) Update() PlaceUpdate {
	return PlaceUpdate{ID: p.ID, CrowdCount: p.CrowdCount, CrowdLevel: p.CrowdLevel}
}

// Observation is one raw reported occupancy count.
type Observation struct {
	PlaceID   string    `json:"placeId"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}
