package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/place-state-hub/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/place-state-hub/internal/adapter/kafka"
	"github.com/couchcryptid/place-state-hub/internal/adapter/mapbox"
	"github.com/couchcryptid/place-state-hub/internal/adapter/natsfeed"
	"github.com/couchcryptid/place-state-hub/internal/adapter/ws"
	"github.com/couchcryptid/place-state-hub/internal/config"
	"github.com/couchcryptid/place-state-hub/internal/hub"
	"github.com/couchcryptid/place-state-hub/internal/idgen"
	"github.com/couchcryptid/place-state-hub/internal/observability"
	"github.com/couchcryptid/place-state-hub/internal/pipeline"
	"github.com/couchcryptid/place-state-hub/internal/seed"
	"github.com/couchcryptid/place-state-hub/internal/service"
	"github.com/couchcryptid/place-state-hub/internal/snapshot"
	"github.com/couchcryptid/place-state-hub/internal/state"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("place-state-hub exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	places, err := seed.Load(cfg.SeedPath)
	if err != nil {
		return err
	}
	logger.Info("seed loaded", "path", cfg.SeedPath, "places", len(places))

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxCountry, cfg.MapboxTimeout, metrics, logger)
		geocoder := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
		places = seed.Geocode(ctx, places, geocoder, logger)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	store, closeStore, err := openSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if store != nil {
		doc, ok, err := snapshot.Load(ctx, store)
		if err != nil {
			return err
		}
		if ok {
			var restored int
			places, restored = seed.Restore(places, doc.Places)
			logger.Info("snapshot restored", "store", store.Name(), "taken_at", doc.TakenAt, "places", restored)
		}
	}

	registry, err := state.NewRegistry(places)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	h := hub.New(registry, logger, metrics)

	feed, closeFeed, err := newChangeFeed(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	clock := clockwork.NewRealClock()
	deps := service.Deps{
		Registry: registry,
		Window:   state.NewObservationWindow(registry.IDs()),
		Alerts:   state.NewAlertStore(cfg.AlertRetention),
		Hub:      h,
		IDs:      idgen.Nanoid{},
		Clock:    clock,
		Logger:   logger,
		Metrics:  metrics,
	}
	if feed != nil {
		deps.Feed = feed
	}

	var writer *snapshot.Writer
	if store != nil {
		writer = snapshot.NewWriter(store, registry, clock, logger, metrics)
		deps.Snapshots = writer
	}
	svc := service.New(deps)

	realtime := ws.NewHandler(h, idgen.Nanoid{}, cfg.WSSendBuffer, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, realtime, cfg.AdminAPIKeys, logger)
	if len(cfg.AdminAPIKeys) == 0 {
		logger.Warn("ADMIN_API_KEYS is empty, admin routes are disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if writer != nil {
		g.Go(func() error { return writer.Run(gctx) })
	}

	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		defer closeWith(logger, "kafka reader", reader)
		p := pipeline.New(reader, svc, logger, metrics, cfg.BatchSize)
		g.Go(func() error { return p.Run(gctx) })
	}

	svc.MarkReady()
	logger.Info("place-state-hub ready", "places", registry.Len(), "addr", cfg.HTTPAddr)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	if writer != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if ferr := writer.Flush(flushCtx); ferr != nil {
			logger.Error("final snapshot failed", "error", ferr)
		}
	}
	return err
}

// openSnapshotStore builds the configured store. The returned store is nil
// for the none driver.
func openSnapshotStore(ctx context.Context, cfg *config.Config) (snapshot.Store, func(), error) {
	noop := func() {}
	switch cfg.SnapshotDriver {
	case config.SnapshotFile:
		return snapshot.NewFileStore(cfg.SnapshotPath), noop, nil
	case config.SnapshotSQLite, config.SnapshotPostgres:
		dialect := snapshot.SQLite
		if cfg.SnapshotDriver == config.SnapshotPostgres {
			dialect = snapshot.Postgres
		}
		store, err := snapshot.OpenSQLStore(ctx, dialect, cfg.SnapshotDSN)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.SnapshotS3:
		store, err := snapshot.NewS3Store(ctx, cfg.SnapshotS3Bucket, cfg.SnapshotS3Key, cfg.SnapshotS3Region, cfg.SnapshotEndpoint)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	default:
		return nil, noop, nil
	}
}

type changeFeed interface {
	service.ChangeFeed
	io.Closer
}

// newChangeFeed builds the configured outbound feed, or nil for none.
func newChangeFeed(cfg *config.Config, logger *slog.Logger) (changeFeed, func(), error) {
	switch cfg.ChangeFeed {
	case config.FeedKafka:
		w := kafkaadapter.NewWriter(cfg, logger)
		logger.Info("kafka change feed enabled", "topic", cfg.KafkaChangeTopic)
		return w, func() { closeWith(logger, "kafka writer", w) }, nil
	case config.FeedNATS:
		p, err := natsfeed.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("nats change feed enabled", "url", cfg.NATSURL, "prefix", cfg.NATSSubjectPrefix)
		return p, func() { closeWith(logger, "nats publisher", p) }, nil
	default:
		return nil, func() {}, nil
	}
}

func closeWith(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}
