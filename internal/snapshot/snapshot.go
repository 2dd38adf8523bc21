// Package snapshot persists the place table as a single overwritten document
// and restores it at startup.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
)

// FormatVersion is written into every document.
const FormatVersion = 1

// ErrNoSnapshot is returned by stores that hold no document yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Document is the persisted form of the place table.
type Document struct {
	Version int            `json:"version"`
	TakenAt time.Time      `json:"takenAt"`
	Places  []domain.Place `json:"places"`
}

// Store saves and loads the encoded document.
type Store interface {
	Name() string
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
}

// Encode serialises a document.
func Encode(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a document and checks its version and places.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version != FormatVersion {
		return Document{}, fmt.Errorf("decode snapshot: unsupported version %d", doc.Version)
	}
	for i, p := range doc.Places {
		if _, err := domain.NewPlace(p); err != nil {
			return Document{}, fmt.Errorf("decode snapshot: place %d: %w", i, err)
		}
	}
	return doc, nil
}

// Load reads and decodes the stored document. The boolean is false when the
// store is empty.
func Load(ctx context.Context, store Store) (Document, bool, error) {
	data, err := store.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("load snapshot from %s: %w", store.Name(), err)
	}
	doc, err := Decode(data)
	if err != nil {
		return Document{}, false, err
	}
	return doc, true, nil
}
