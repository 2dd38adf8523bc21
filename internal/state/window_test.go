package state_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, w *state.ObservationWindow, id string, counts ...int) {
	t.Helper()
	base := time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)
	for i, c := range counts {
		require.NoError(t, w.Record(domain.Observation{PlaceID: id, Timestamp: base.Add(time.Duration(i) * time.Minute), Count: c}))
	}
}

func TestObservationWindow_AverageOfLastFive(t *testing.T) {
	w := state.NewObservationWindow([]string{"taj"})
	record(t, w, "taj", 10, 20, 30, 40, 50)
	assert.Equal(t, 30, w.Average("taj", state.SmoothingWindow, 0))

	record(t, w, "taj", 100)
	assert.Equal(t, 48, w.Average("taj", state.SmoothingWindow, 0), "(20+30+40+50+100)/5")
	assert.Equal(t, 42, w.Average("taj", state.ForecastWindow, 0), "250/6 rounds to 42")
}

func TestObservationWindow_Fallback(t *testing.T) {
	w := state.NewObservationWindow([]string{"taj"})
	assert.Equal(t, 17, w.Average("taj", state.SmoothingWindow, 17))
	assert.Equal(t, 17, w.Average("unknown", state.SmoothingWindow, 17))
}

func TestObservationWindow_EvictsBeyondForecastWindow(t *testing.T) {
	w := state.NewObservationWindow([]string{"taj"})
	counts := make([]int, 30)
	for i := range counts {
		counts[i] = i
	}
	record(t, w, "taj", counts...)

	assert.Equal(t, state.ForecastWindow, w.Len("taj"))
	recent := w.Recent("taj", 100)
	require.Len(t, recent, state.ForecastWindow)
	assert.Equal(t, 6, recent[0].Count, "oldest six evicted")
	assert.Equal(t, 29, recent[len(recent)-1].Count)

	last := w.Recent("taj", 5)
	require.Len(t, last, 5)
	assert.Equal(t, 25, last[0].Count)
}

func TestObservationWindow_RecordUnknownPlace(t *testing.T) {
	w := state.NewObservationWindow([]string{"taj"})
	err := w.Record(domain.Observation{PlaceID: "nope", Count: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, w.Len("nope"))
}

func TestObservationWindow_RecentIsACopy(t *testing.T) {
	w := state.NewObservationWindow([]string{"taj"})
	record(t, w, "taj", 1, 2)
	recent := w.Recent("taj", 2)
	recent[0].Count = 99
	assert.Equal(t, 1, w.Recent("taj", 2)[0].Count)
}
