// Package natsfeed publishes place changes to NATS subjects.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/config"
	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
)

// KeyHeader carries the partitioning key of the change.
const KeyHeader = "Placehub-Key"

// Publisher writes each change to <prefix>.<kind>.
// It implements service.ChangeFeed.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	clock  clockwork.Clock
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("place-state-hub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Publisher{conn: nc, prefix: prefix, clock: clockwork.NewRealClock()}, nil
}

// Name identifies the feed in metrics and logs.
func (p *Publisher) Name() string { return config.FeedNATS }

// Subject returns the subject a given kind is published on.
func (p *Publisher) Subject(kind domain.EventKind) string {
	return p.prefix + "." + string(kind)
}

// Publish encodes the event as a change record. The NATS client buffers
// writes, so this does not wait for the server.
func (p *Publisher) Publish(_ context.Context, ev domain.Event) error {
	rec := domain.NewChangeRecord(ev, p.clock.Now())
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", rec.Kind, err)
	}
	msg := nats.NewMsg(p.Subject(rec.Kind))
	msg.Header.Set(KeyHeader, rec.Key)
	msg.Data = data
	return p.conn.PublishMsg(msg)
}

// Close flushes buffered messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
