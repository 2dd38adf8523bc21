package domain

import "strings"

// TopicKind tags the well-known subscription scopes.
type TopicKind int

const (
	TopicNamed TopicKind = iota
	TopicPlace
	TopicPlaces
	TopicAlerts
)

const (
	placesTopicName  = "places"
	alertsTopicName  = "alerts"
	placeTopicPrefix = "place:"
)

// Topic identifies a subscription scope. It is comparable and used as a map key.
type Topic struct {
	kind TopicKind
	key  string // place id for TopicPlace, name for TopicNamed
}

// PlaceTopic is the per-place scope, place:<id>.
func PlaceTopic(id string) Topic { return Topic{kind: TopicPlace, key: id} }

// GlobalPlaces is the scope receiving every place update.
func GlobalPlaces() Topic { return Topic{kind: TopicPlaces} }

// Alerts is the scope receiving every alert.
func Alerts() Topic { return Topic{kind: TopicAlerts} }

// NamedTopic is a free-form scope with no built-in publishers.
func NamedTopic(name string) Topic { return Topic{kind: TopicNamed, key: name} }

// ParseTopic maps the wire form onto a Topic.
func ParseTopic(s string) (Topic, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Topic{}, Invalid("topic", "must not be empty")
	case s == placesTopicName:
		return GlobalPlaces(), nil
	case s == alertsTopicName:
		return Alerts(), nil
	case strings.HasPrefix(s, placeTopicPrefix):
		id := strings.TrimPrefix(s, placeTopicPrefix)
		if id == "" {
			return Topic{}, Invalid("topic", "place topic needs an id")
		}
		return PlaceTopic(id), nil
	default:
		return NamedTopic(s), nil
	}
}

// Kind returns the topic tag.
func (t Topic) Kind() TopicKind { return t.kind }

// PlaceID returns the place id for place topics and "" otherwise.
func (t Topic) PlaceID() string {
	if t.kind != TopicPlace {
		return ""
	}
	return t.key
}

func (t Topic) String() string {
	switch t.kind {
	case TopicPlace:
		return placeTopicPrefix + t.key
	case TopicPlaces:
		return placesTopicName
	case TopicAlerts:
		return alertsTopicName
	default:
		return t.key
	}
}
