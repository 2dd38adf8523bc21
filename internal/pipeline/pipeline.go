// Package pipeline consumes observation messages in batches and applies them
// through the same write path as the HTTP ingestion endpoint.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Ingester applies one decoded observation.
type Ingester interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (domain.Place, error)
}

// Pipeline orchestrates the extract-decode-ingest loop.
type Pipeline struct {
	extractor BatchExtractor
	ingester  Ingester
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
}

// New creates a Pipeline.
func New(e BatchExtractor, ing Ingester, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		ingester:  ing,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-ingest cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}
	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	for _, raw := range batch {
		if !p.handleWithRetry(ctx, raw, backoff) {
			return false
		}
		p.commitOffset(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

// handle decodes and applies one message. Messages that can never succeed are
// logged, counted and reported as handled.
func (p *Pipeline) handle(ctx context.Context, raw domain.RawMessage) error {
	req, err := domain.ParseIngestRequest(raw.Value)
	if err == nil {
		req.Source = domain.SourceKafka
		_, err = p.ingester.Ingest(ctx, req)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("skipping poison message",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.PoisonMessages.Inc()
		return nil
	}
	return err
}

// handleWithRetry retries a failed message in place until it is handled or
// the context ends. The reader has already moved past the rest of the batch,
// so moving on would skip them until the next rebalance. Returns false if the
// pipeline should stop.
func (p *Pipeline) handleWithRetry(ctx context.Context, raw domain.RawMessage, backoff *time.Duration) bool {
	for {
		err := p.handle(ctx, raw)
		if err == nil {
			return true
		}
		p.logger.Error("ingest failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset, "retry_in", *backoff)
		if !p.backoffOrStop(ctx, backoff) {
			return false
		}
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns false
// if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
