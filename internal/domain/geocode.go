package domain

import (
	"context"
	"log/slog"
)

// GeocodePlace fills in coordinates for a seed place that has a name and state
// but no coordinates. Places that already have coordinates, lack a name, or
// fail to resolve are returned unchanged (graceful degradation): they simply
// never appear in nearby results.
func GeocodePlace(ctx context.Context, place Place, geocoder Geocoder, logger *slog.Logger) Place {
	if geocoder == nil || place.HasCoordinates() {
		return place
	}
	if place.Name == "" || place.State == "" {
		return place
	}

	result, err := geocoder.ForwardGeocode(ctx, place.Name, place.State)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"place_id", place.ID,
			"name", place.Name,
			"state", place.State,
			"error", err,
		)
		return place
	}
	if !result.Found() {
		logger.Info("geocoder returned no match", "place_id", place.ID, "name", place.Name)
		return place
	}

	geo := Geo{Lat: result.Lat, Lon: result.Lon}
	if err := geo.Validate(); err != nil {
		logger.Warn("geocoder returned invalid coordinate", "place_id", place.ID, "error", err)
		return place
	}
	place.Geo = &geo
	logger.Debug("place geocoded",
		"place_id", place.ID,
		"formatted_address", result.FormattedAddress,
		"confidence", result.Confidence,
	)
	return place
}
