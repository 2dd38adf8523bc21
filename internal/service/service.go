// Package service applies observations, overrides and alerts to the place
// state and propagates every change to the hub.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/idgen"
	"github.com/couchcryptid/place-state-hub/internal/observability"
	"github.com/couchcryptid/place-state-hub/internal/state"
	"github.com/jonboulle/clockwork"
)

// Broadcaster delivers an event to every member of a topic.
type Broadcaster interface {
	Publish(topic domain.Topic, ev domain.Event) int
}

// SnapshotRequester schedules a durable snapshot of the place table. It must
// not block.
type SnapshotRequester interface {
	Request()
}

// ChangeFeed forwards published events to an outbound stream.
type ChangeFeed interface {
	Name() string
	Publish(ctx context.Context, ev domain.Event) error
}

// Deps collects the collaborators of a Service. Snapshots and Feed are
// optional; Clock and IDs default to the real clock and nanoid.
type Deps struct {
	Registry  *state.Registry
	Window    *state.ObservationWindow
	Alerts    *state.AlertStore
	Hub       Broadcaster
	Snapshots SnapshotRequester
	Feed      ChangeFeed
	IDs       idgen.Generator
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Service is the single write path for place state.
type Service struct {
	registry  *state.Registry
	window    *state.ObservationWindow
	alerts    *state.AlertStore
	hub       Broadcaster
	snapshots SnapshotRequester
	feed      ChangeFeed
	ids       idgen.Generator
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	// One lock per place, created up front; the place set never changes.
	locks map[string]*sync.Mutex
	ready atomic.Bool
}

// New wires a Service.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.IDs == nil {
		d.IDs = idgen.Nanoid{}
	}
	locks := make(map[string]*sync.Mutex, d.Registry.Len())
	for _, id := range d.Registry.IDs() {
		locks[id] = &sync.Mutex{}
	}
	for _, p := range d.Registry.List() {
		d.Metrics.CrowdCount.WithLabelValues(p.ID).Set(float64(p.CrowdCount))
	}
	return &Service{
		registry:  d.Registry,
		window:    d.Window,
		alerts:    d.Alerts,
		hub:       d.Hub,
		snapshots: d.Snapshots,
		feed:      d.Feed,
		ids:       d.IDs,
		clock:     d.Clock,
		logger:    d.Logger,
		metrics:   d.Metrics,
		locks:     locks,
	}
}

// MarkReady flags the service as able to serve traffic.
func (s *Service) MarkReady() { s.ready.Store(true) }

// CheckReadiness returns nil once startup has completed.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("place state has not been restored yet")
	}
	return nil
}

// Places returns every place in seed order.
func (s *Service) Places() []domain.Place {
	return s.registry.List()
}

// Place returns one place.
func (s *Service) Place(id string) (domain.Place, error) {
	return s.registry.Get(id)
}

// Ingest records an observation, recomputes the smoothed count and level,
// applies them and broadcasts the update. Unknown places and invalid counts
// leave every piece of state untouched.
func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (domain.Place, error) {
	source := req.Source
	if source == "" {
		source = "unknown"
	}
	place, err := s.ingest(ctx, req)
	switch {
	case err == nil:
		s.metrics.IngestTotal.WithLabelValues(source, "applied").Inc()
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.IngestTotal.WithLabelValues(source, "not_found").Inc()
	default:
		s.metrics.IngestTotal.WithLabelValues(source, "invalid").Inc()
	}
	return place, err
}

func (s *Service) ingest(ctx context.Context, req domain.IngestRequest) (domain.Place, error) {
	lock, ok := s.locks[req.PlaceID]
	if !ok {
		return domain.Place{}, domain.PlaceNotFound(req.PlaceID)
	}
	if err := domain.CheckCount("count", req.Count); err != nil {
		return domain.Place{}, err
	}
	at := s.clock.Now().UTC()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	lock.Lock()
	defer lock.Unlock()

	current, err := s.registry.Get(req.PlaceID)
	if err != nil {
		return domain.Place{}, err
	}
	if err := s.window.Record(domain.Observation{PlaceID: req.PlaceID, Timestamp: at, Count: req.Count}); err != nil {
		return domain.Place{}, err
	}
	smoothed := s.window.Average(req.PlaceID, state.SmoothingWindow, current.CrowdCount)
	updated, err := s.apply(ctx, req.PlaceID, smoothed, domain.Classify(smoothed, current.Capacity))
	if err != nil {
		return domain.Place{}, err
	}

	s.logger.Debug("observation applied",
		"place_id", req.PlaceID,
		"raw_count", req.Count,
		"crowd_count", updated.CrowdCount,
		"crowd_level", updated.CrowdLevel,
	)
	return updated, nil
}

// Override sets the count and/or level of a place directly, bypassing the
// observation window. The level must agree with the classification of the
// resulting count.
func (s *Service) Override(ctx context.Context, placeID string, count *int, level *domain.CrowdLevel) (domain.Place, error) {
	lock, ok := s.locks[placeID]
	if !ok {
		return domain.Place{}, domain.PlaceNotFound(placeID)
	}
	if count == nil && level == nil {
		return domain.Place{}, domain.Invalid("override", "needs crowdCount or crowdLevel")
	}
	if count != nil {
		if err := domain.CheckCount("crowdCount", *count); err != nil {
			return domain.Place{}, err
		}
	}

	lock.Lock()
	defer lock.Unlock()

	current, err := s.registry.Get(placeID)
	if err != nil {
		return domain.Place{}, err
	}
	next := current.CrowdCount
	if count != nil {
		next = *count
	}
	derived := domain.Classify(next, current.Capacity)
	if level != nil && *level != derived {
		return domain.Place{}, domain.Invalid("crowdLevel",
			"level "+string(*level)+" disagrees with count-derived level "+string(derived))
	}

	updated, err := s.apply(ctx, placeID, next, derived)
	if err != nil {
		return domain.Place{}, err
	}
	s.metrics.Overrides.Inc()
	s.logger.Info("place overridden",
		"place_id", placeID,
		"crowd_count", updated.CrowdCount,
		"crowd_level", updated.CrowdLevel,
	)
	return updated, nil
}

// apply stores the new state, requests a snapshot and publishes the update.
// The caller holds the place lock, so updates for one place reach each
// subscriber in apply order.
func (s *Service) apply(ctx context.Context, id string, count int, level domain.CrowdLevel) (domain.Place, error) {
	updated, err := s.registry.Apply(id, count, level, s.clock.Now().UTC())
	if err != nil {
		return domain.Place{}, err
	}
	s.metrics.CrowdCount.WithLabelValues(id).Set(float64(count))
	if s.snapshots != nil {
		s.snapshots.Request()
	}
	s.publish(ctx, updated.Update(), domain.PlaceTopic(id), domain.GlobalPlaces())
	return updated, nil
}

// Forecast projects the place's crowd for hour offsets 1..hours.
func (s *Service) Forecast(_ context.Context, placeID string, hours int) ([]domain.ForecastPoint, error) {
	place, err := s.registry.Get(placeID)
	if err != nil {
		return nil, err
	}
	if hours < 1 || hours > domain.MaxForecastHours {
		return nil, domain.Invalid("hours", "must be between 1 and 48")
	}
	baseline := s.window.Average(placeID, state.ForecastWindow, place.CrowdCount)
	return domain.Forecast(baseline, place.Capacity, hours), nil
}

// Nearby ranks up to five places within radiusKm of the given place.
func (s *Service) Nearby(_ context.Context, placeID string, radiusKm float64) ([]domain.NearbyPlace, error) {
	origin, err := s.registry.Get(placeID)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(radiusKm) || radiusKm < 0 {
		return nil, domain.Invalid("radius", "must be a non-negative number")
	}
	return domain.RankNearby(origin, s.registry.List(), radiusKm), nil
}

// RaiseAlert records an alert and publishes it to the alerts topic and, when
// targeted, to the place's topic.
func (s *Service) RaiseAlert(ctx context.Context, message string, level domain.AlertLevel, placeID string) (domain.Alert, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Alert{}, domain.Invalid("message", "must not be empty")
	}
	if level == "" {
		level = domain.AlertInfo
	}
	if _, err := domain.ParseAlertLevel(string(level)); err != nil {
		return domain.Alert{}, err
	}
	if placeID != "" && !s.registry.Has(placeID) {
		return domain.Alert{}, domain.PlaceNotFound(placeID)
	}

	id, err := s.ids.NewID(idgen.AlertPrefix)
	if err != nil {
		return domain.Alert{}, err
	}
	alert := domain.Alert{
		ID:        id,
		Message:   message,
		Level:     level,
		PlaceID:   placeID,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.alerts.Append(alert)
	s.metrics.AlertsTotal.WithLabelValues(string(level)).Inc()

	topics := []domain.Topic{domain.Alerts()}
	if alert.Targeted() {
		topics = append(topics, domain.PlaceTopic(placeID))
	}
	s.publish(ctx, domain.AlertRaised{Alert: alert}, topics...)

	s.logger.Info("alert raised", "alert_id", alert.ID, "level", alert.Level, "place_id", placeID)
	return alert, nil
}

// Alerts returns the retained alerts in insertion order.
func (s *Service) Alerts() []domain.Alert {
	return s.alerts.List()
}

// RecentAlerts returns up to n alerts, newest first.
func (s *Service) RecentAlerts(n int) []domain.Alert {
	return s.alerts.Recent(n)
}

func (s *Service) publish(ctx context.Context, ev domain.Event, topics ...domain.Topic) {
	for _, t := range topics {
		s.hub.Publish(t, ev)
	}
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.metrics.FeedPublished.WithLabelValues(s.feed.Name(), "error").Inc()
		s.logger.Warn("change feed publish failed", "feed", s.feed.Name(), "kind", ev.Kind(), "error", err)
		return
	}
	s.metrics.FeedPublished.WithLabelValues(s.feed.Name(), "success").Inc()
}
