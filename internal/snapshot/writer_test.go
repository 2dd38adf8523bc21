package snapshot_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/observability"
	"github.com/couchcryptid/place-state-hub/internal/snapshot"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ places []domain.Place }

func (s staticSource) List() []domain.Place { return s.places }

func newWriter(store snapshot.Store) (*snapshot.Writer, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return snapshot.NewWriter(store, staticSource{places: samplePlaces()}, clock, logger, metrics), metrics
}

func TestWriter_Flush(t *testing.T) {
	store := &memStore{}
	w, metrics := newWriter(store)

	require.NoError(t, w.Flush(context.Background()))

	doc, found, err := snapshot.Load(context.Background(), store)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC), doc.TakenAt)
	assert.Equal(t, samplePlaces(), doc.Places)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SnapshotWrites.WithLabelValues("success")), 0)
}

func TestWriter_FlushErrorIsCounted(t *testing.T) {
	store := &memStore{err: errors.New("read-only filesystem")}
	w, metrics := newWriter(store)

	require.Error(t, w.Flush(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SnapshotWrites.WithLabelValues("error")), 0)
}

func TestWriter_RequestsCoalesce(t *testing.T) {
	store := &memStore{}
	w, _ := newWriter(store)

	// Queue many requests before the loop starts; at most one is pending.
	for range 50 {
		w.Request()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return store.saveCount() == 1 }, time.Second, 5*time.Millisecond)

	w.Request()
	require.Eventually(t, func() bool { return store.saveCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWriter_RunSurvivesFailures(t *testing.T) {
	store := &memStore{err: errors.New("boom")}
	w, metrics := newWriter(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Request()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SnapshotWrites.WithLabelValues("error")) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
