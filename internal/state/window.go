package state

import (
	"sync"

	"github.com/couchcryptid/place-state-hub/internal/domain"
)

const (
	// SmoothingWindow is the number of recent observations averaged into the
	// live crowd count.
	SmoothingWindow = 5

	// ForecastWindow is the number of observations retained per place and
	// averaged into the forecast baseline.
	ForecastWindow = 24
)

// ObservationWindow keeps a bounded arrival-ordered history per place.
type ObservationWindow struct {
	capacity int
	buffers  map[string]*observationBuffer
}

type observationBuffer struct {
	mu    sync.Mutex
	items []domain.Observation
}

// NewObservationWindow creates empty buffers for the given place ids, each
// retaining at most ForecastWindow observations.
func NewObservationWindow(ids []string) *ObservationWindow {
	w := &ObservationWindow{
		capacity: ForecastWindow,
		buffers:  make(map[string]*observationBuffer, len(ids)),
	}
	for _, id := range ids {
		w.buffers[id] = &observationBuffer{items: make([]domain.Observation, 0, ForecastWindow)}
	}
	return w
}

// Record appends an observation, evicting the oldest beyond the bound.
func (w *ObservationWindow) Record(obs domain.Observation) error {
	b, ok := w.buffers[obs.PlaceID]
	if !ok {
		return domain.PlaceNotFound(obs.PlaceID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == w.capacity {
		copy(b.items, b.items[1:])
		b.items = b.items[:w.capacity-1]
	}
	b.items = append(b.items, obs)
	return nil
}

// Average returns the rounded mean count of the most recent n observations,
// or fallback when the place has none.
func (w *ObservationWindow) Average(id string, n, fallback int) int {
	recent := w.Recent(id, n)
	counts := make([]int, len(recent))
	for i, o := range recent {
		counts[i] = o.Count
	}
	return domain.RoundMean(counts, fallback)
}

// Recent returns up to n of the newest observations, oldest first.
func (w *ObservationWindow) Recent(id string, n int) []domain.Observation {
	b, ok := w.buffers[id]
	if !ok || n <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start := max(len(b.items)-n, 0)
	out := make([]domain.Observation, len(b.items)-start)
	copy(out, b.items[start:])
	return out
}

// Len returns how many observations are held for a place.
func (w *ObservationWindow) Len(id string) int {
	b, ok := w.buffers[id]
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
