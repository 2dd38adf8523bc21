package domain

import (
	"math"
	"sort"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0

	// DefaultNearbyRadiusKm applies when the caller gives no radius.
	DefaultNearbyRadiusKm = 10.0

	// MaxNearbyResults caps the ranked alternatives.
	MaxNearbyResults = 5
)

// NearbyPlace is one ranked alternative with its distance from the query place.
type NearbyPlace struct {
	Place      Place   `json:"place"`
	DistanceKm float64 `json:"distanceKm"`
}

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(a, b Geo) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Pow(math.Sin(dLon/2), 2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// RankNearby returns up to MaxNearbyResults candidates within radiusKm of the
// origin, nearest first, ties going to the less crowded place. The origin
// itself and candidates without coordinates are skipped. An origin without
// coordinates yields no results.
func RankNearby(origin Place, candidates []Place, radiusKm float64) []NearbyPlace {
	results := []NearbyPlace{}
	if !origin.HasCoordinates() {
		return results
	}
	for _, c := range candidates {
		if c.ID == origin.ID || !c.HasCoordinates() {
			continue
		}
		d := HaversineKm(*origin.Geo, *c.Geo)
		if d > radiusKm {
			continue
		}
		results = append(results, NearbyPlace{Place: c, DistanceKm: d})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].Place.CrowdCount < results[j].Place.CrowdCount
	})
	if len(results) > MaxNearbyResults {
		results = results[:MaxNearbyResults]
	}
	return results
}
