// Package domain models monitored places, their crowd observations, and the
// events the hub fans out to real-time subscribers.
//
// # Places
//
// A place is a physical location with a fixed positive capacity and a live
// occupancy estimate (crowd count). Places are created once from the seed
// collection and are never added or removed at runtime. Coordinates are
// optional; a place without coordinates never appears in nearby results.
//
// # Crowd Level
//
// The crowd level is derived from the count/capacity ratio:
//
//	percent = 100 * count / capacity
//	  percent > 75        high
//	  35 < percent <= 75  medium
//	  percent <= 35       low
//
// The comparison is done in integer arithmetic so the 75% and 35% boundaries
// are exact: 75% is medium, 35% is low. The level is never stored
// independently of the count; every mutation recomputes it.
//
// # Smoothing
//
// Raw observations are smoothed with a moving average over the most recent
// five observations, including the one just recorded. Averages round half
// away from zero ([math.Round]). Because the window is count-based rather than
// time-based, bursts of observations converge faster than sparse ones.
//
// # Forecast
//
// The forecast is a naive persistence-plus-ripple projection: the baseline is
// the average of up to the last 24 observations, perturbed by ±5% following
// sin(hourOffset). It is a modeling simplification with no accuracy guarantee.
//
// # Topics and Events
//
// Subscribers join topics: one per place (place:<id>), the global places
// topic, the alerts topic, or any other named topic. Events are a closed set
// of payloads ([PlaceUpdate], [PlacesSnapshot], [AlertRaised]) identified by
// their [EventKind].
package domain
