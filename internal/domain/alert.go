package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlertLevel is the severity of an administrative alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// ParseAlertLevel accepts info, warning or critical. An empty string means info.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch AlertLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlertInfo:
		return AlertInfo, nil
	case AlertWarning:
		return AlertWarning, nil
	case AlertCritical:
		return AlertCritical, nil
	default:
		return "", Invalid("level", fmt.Sprintf("unknown alert level %q", s))
	}
}

// Alert is an append-only administrative notice. PlaceID is empty for alerts
// addressed to everyone.
type Alert struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Level     AlertLevel `json:"level"`
	PlaceID   string     `json:"placeId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Targeted reports whether the alert is scoped to a single place.
func (a Alert) Targeted() bool {
	return a.PlaceID != ""
}
