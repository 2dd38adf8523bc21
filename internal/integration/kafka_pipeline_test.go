//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/adapter/kafka"
	"github.com/couchcryptid/place-state-hub/internal/config"
	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/hub"
	"github.com/couchcryptid/place-state-hub/internal/observability"
	"github.com/couchcryptid/place-state-hub/internal/pipeline"
	"github.com/couchcryptid/place-state-hub/internal/service"
	"github.com/couchcryptid/place-state-hub/internal/state"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testObservationTopic = "test-observations"
	testChangeTopic      = "test-changes"
)

type fixture struct {
	svc *service.Service
	hub *hub.Hub
}

func newFixture(t *testing.T, feed service.ChangeFeed) fixture {
	t.Helper()
	registry, err := state.NewRegistry([]domain.Place{
		{ID: "red-fort", Name: "Red Fort", State: "Delhi", Capacity: 100},
		{ID: "india-gate", Name: "India Gate", State: "Delhi", Capacity: 100},
	})
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	h := hub.New(registry, discardLogger(), metrics)
	svc := service.New(service.Deps{
		Registry: registry,
		Window:   state.NewObservationWindow(registry.IDs()),
		Alerts:   state.NewAlertStore(0),
		Hub:      h,
		Feed:     feed,
		Logger:   discardLogger(),
		Metrics:  metrics,
	})
	return fixture{svc: svc, hub: h}
}

func produce(ctx context.Context, t *testing.T, broker string, values ...string) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testObservationTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(values))
	for i, v := range values {
		msgs = append(msgs, kafkago.Message{Key: []byte(fmt.Sprintf("obs-%d", i)), Value: []byte(v)})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func nextUpdate(t *testing.T, conn *hub.ChanConn) domain.PlaceUpdate {
	t.Helper()
	select {
	case msg := <-conn.Messages():
		update, ok := msg.Event.(domain.PlaceUpdate)
		require.True(t, ok, "unexpected event %T", msg.Event)
		return update
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for place update")
		return domain.PlaceUpdate{}
	}
}

// TestPipelineEndToEnd publishes observations to Kafka and verifies that the
// smoothed updates reach a hub subscriber, skipping the poison message.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testObservationTopic)

	cfg := &config.Config{
		KafkaBrokers:          []string{broker},
		KafkaObservationTopic: testObservationTopic,
		KafkaGroupID:          fmt.Sprintf("test-pipeline-%d", time.Now().UnixNano()),
		BatchFlushInterval:    2 * time.Second,
	}

	f := newFixture(t, nil)
	sub := hub.NewChanConn("watcher", 16)
	f.hub.Subscribe(sub, domain.PlaceTopic("red-fort"))

	produce(ctx, t, broker,
		`{"place_id":"red-fort","count":20}`,
		`not-json{{{`,
		`{"place_id":"nowhere","count":5}`,
		`{"place_id":"red-fort","count":60}`,
	)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, f.svc, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	first := nextUpdate(t, sub)
	assert.Equal(t, 20, first.CrowdCount)
	assert.Equal(t, domain.CrowdLow, first.CrowdLevel)

	second := nextUpdate(t, sub)
	assert.Equal(t, 40, second.CrowdCount)
	assert.Equal(t, domain.CrowdMedium, second.CrowdLevel)

	pipelineCancel()
	require.NoError(t, <-errCh)

	place, err := f.svc.Place("red-fort")
	require.NoError(t, err)
	assert.Equal(t, 40, place.CrowdCount)
}

// TestChangeFeed verifies that applied changes are produced to the change
// topic keyed by place id.
func TestChangeFeed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testChangeTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaChangeTopic: testChangeTopic,
	}
	writer := kafka.NewWriter(cfg, discardLogger())

	f := newFixture(t, writer)
	_, err := f.svc.Ingest(ctx, domain.IngestRequest{PlaceID: "india-gate", Count: 90, Source: domain.SourceHTTP})
	require.NoError(t, err)
	_, err = f.svc.RaiseAlert(ctx, "Republic Day rehearsal", domain.AlertWarning, "india-gate")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testChangeTopic,
		GroupID:     fmt.Sprintf("test-changes-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	kinds := make([]string, 0, 2)
	for len(kinds) < 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from change topic")

		assert.Equal(t, "india-gate", string(msg.Key))
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		_, err = time.Parse(time.RFC3339, headers["emitted_at"])
		assert.NoError(t, err, "emitted_at should be valid RFC3339")

		var rec struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		assert.Equal(t, headers["event_type"], rec.Kind)
		kinds = append(kinds, rec.Kind)
	}
	assert.ElementsMatch(t, []string{"placeUpdate", "alertRaised"}, kinds)
}
