package natsfeed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

func TestPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := Connect(url, "placehub", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("placehub.>", ch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, nc.Flush())

	update := domain.PlaceUpdate{ID: "qutub-minar", CrowdCount: 120, CrowdLevel: domain.CrowdMedium}
	require.NoError(t, pub.Publish(context.Background(), update))
	require.NoError(t, pub.conn.Flush())

	select {
	case msg := <-ch:
		assert.Equal(t, "placehub.placeUpdate", msg.Subject)
		assert.Equal(t, "qutub-minar", msg.Header.Get(KeyHeader))

		var rec struct {
			Kind string             `json:"kind"`
			Key  string             `json:"key"`
			Data domain.PlaceUpdate `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &rec))
		assert.Equal(t, "placeUpdate", rec.Kind)
		assert.Equal(t, update, rec.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published change")
	}
}

func TestPublisher_Subject(t *testing.T) {
	p := &Publisher{prefix: "crowds"}
	assert.Equal(t, "crowds.alertRaised", p.Subject(domain.KindAlertRaised))
	assert.Equal(t, "nats", p.Name())
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "placehub", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to NATS")
}
