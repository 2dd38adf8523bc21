package domain

import "time"

// EventKind names an event payload on the wire.
type EventKind string

const (
	KindPlaceUpdate    EventKind = "placeUpdate"
	KindPlacesSnapshot EventKind = "placesSnapshot"
	KindAlertRaised    EventKind = "alertRaised"
)

// Event is the closed set of payloads delivered to subscribers.
type Event interface {
	Kind() EventKind
	isEvent()
}

// PlaceUpdate carries the new crowd state of one place.
type PlaceUpdate struct {
	ID         string     `json:"id"`
	CrowdCount int        `json:"crowdCount"`
	CrowdLevel CrowdLevel `json:"crowdLevel"`
}

// PlacesSnapshot is the baseline sent to a new subscriber of the places topic.
type PlacesSnapshot struct {
	Places []PlaceUpdate `json:"places"`
}

// AlertRaised announces a new administrative alert.
type AlertRaised struct {
	Alert Alert `json:"alert"`
}

func (PlaceUpdate) Kind() EventKind    { return KindPlaceUpdate }
func (PlacesSnapshot) Kind() EventKind { return KindPlacesSnapshot }
func (AlertRaised) Kind() EventKind    { return KindAlertRaised }

func (PlaceUpdate) isEvent()    {}
func (PlacesSnapshot) isEvent() {}
func (AlertRaised) isEvent()    {}

// EventKey returns the partitioning key for an event: the place id for place
// updates and targeted alerts, the alert id otherwise.
func EventKey(ev Event) string {
	switch e := ev.(type) {
	case PlaceUpdate:
		return e.ID
	case AlertRaised:
		if e.Alert.Targeted() {
			return e.Alert.PlaceID
		}
		return e.Alert.ID
	default:
		return string(ev.Kind())
	}
}

// ChangeRecord is the envelope written to outbound change feeds.
type ChangeRecord struct {
	Kind      EventKind `json:"kind"`
	Key       string    `json:"key"`
	EmittedAt time.Time `json:"emittedAt"`
	Data      Event     `json:"data"`
}

// NewChangeRecord wraps an event for a change feed.
func NewChangeRecord(ev Event, at time.Time) ChangeRecord {
	return ChangeRecord{Kind: ev.Kind(), Key: EventKey(ev), EmittedAt: at.UTC(), Data: ev}
}
