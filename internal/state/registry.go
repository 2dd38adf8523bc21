// Package state owns the in-memory place table, the per-place observation
// windows and the alert log.
package state

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
)

// Registry is the authoritative place table. The set of places is fixed at
// construction; each slot holds an immutable Place swapped atomically, so
// readers never see count and level from two different mutations.
type Registry struct {
	order []string
	slots map[string]*atomic.Pointer[domain.Place]
}

// NewRegistry builds the table from seed places, keeping their order.
// Duplicate ids and invalid places are rejected.
func NewRegistry(places []domain.Place) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(places)),
		slots: make(map[string]*atomic.Pointer[domain.Place], len(places)),
	}
	for i, p := range places {
		valid, err := domain.NewPlace(p)
		if err != nil {
			return nil, fmt.Errorf("seed place %d: %w", i, err)
		}
		if _, dup := r.slots[valid.ID]; dup {
			return nil, domain.Invalid("id", fmt.Sprintf("duplicate place id %q", valid.ID))
		}
		slot := &atomic.Pointer[domain.Place]{}
		slot.Store(&valid)
		r.slots[valid.ID] = slot
		r.order = append(r.order, valid.ID)
	}
	return r, nil
}

// Len returns the number of places.
func (r *Registry) Len() int { return len(r.order) }

// Has reports whether id names a known place.
func (r *Registry) Has(id string) bool {
	_, ok := r.slots[id]
	return ok
}

// IDs returns the place ids in seed order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the current state of one place.
func (r *Registry) Get(id string) (domain.Place, error) {
	slot, ok := r.slots[id]
	if !ok {
		return domain.Place{}, domain.PlaceNotFound(id)
	}
	return *slot.Load(), nil
}

// List returns every place in seed order.
func (r *Registry) List() []domain.Place {
	out := make([]domain.Place, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.slots[id].Load())
	}
	return out
}

// Apply replaces count and level of one place in a single atomic store.
// Callers serialise writes per place; level is expected to be
// Classify(count, capacity).
func (r *Registry) Apply(id string, count int, level domain.CrowdLevel, at time.Time) (domain.Place, error) {
	slot, ok := r.slots[id]
	if !ok {
		return domain.Place{}, domain.PlaceNotFound(id)
	}
	next := slot.Load().WithCrowd(count, level, at)
	slot.Store(&next)
	return next, nil
}

// Snapshot returns the baseline event sent to new subscribers of the places
// topic.
func (r *Registry) Snapshot() domain.PlacesSnapshot {
	updates := make([]domain.PlaceUpdate, 0, len(r.order))
	for _, id := range r.order {
		updates = append(updates, r.slots[id].Load().Update())
	}
	return domain.PlacesSnapshot{Places: updates}
}
