package snapshot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source supplies the places to persist.
type Source interface {
	List() []domain.Place
}

// Writer persists the place table in the background. Requests made while a
// write is pending collapse into one, and every write serialises the latest
// state, so skipped requests lose nothing.
type Writer struct {
	store   Store
	source  Source
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	pending chan struct{}
	mu      sync.Mutex // one write at a time
}

// NewWriter creates a Writer. Run must be started for Request to take effect.
func NewWriter(store Store, source Source, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{
		store:   store,
		source:  source,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		pending: make(chan struct{}, 1),
	}
}

// Request schedules a write without blocking.
func (w *Writer) Request() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Run serves requests until ctx is cancelled. Failures are logged and
// counted; the in-memory state stays authoritative.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("snapshot writer started", "store", w.store.Name())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("snapshot writer stopping", "reason", ctx.Err())
			return nil
		case <-w.pending:
			if err := w.Flush(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("snapshot write failed", "store", w.store.Name(), "error", err)
			}
		}
	}
}

// Flush writes the current state synchronously.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	data, err := Encode(Document{
		Version: FormatVersion,
		TakenAt: w.clock.Now().UTC(),
		Places:  w.source.List(),
	})
	if err == nil {
		err = w.store.Save(ctx, data)
	}
	w.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		w.metrics.SnapshotWrites.WithLabelValues("error").Inc()
		return err
	}
	w.metrics.SnapshotWrites.WithLabelValues("success").Inc()
	w.logger.Debug("snapshot written", "store", w.store.Name(), "bytes", len(data))
	return nil
}
