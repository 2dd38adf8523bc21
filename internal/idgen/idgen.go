// Package idgen generates short, URL-safe identifiers for alerts and
// real-time connections.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the identifiers the hub hands out.
const (
	AlertPrefix = "alert-"
	ConnPrefix  = "conn-"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 12
)

// Generator produces prefixed random ids.
type Generator interface {
	NewID(prefix string) (string, error)
}

// Nanoid is the production Generator.
type Nanoid struct{}

// NewID returns prefix followed by a random nanoid.
func (Nanoid) NewID(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
