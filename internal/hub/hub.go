// Package hub implements single-process topic fan-out of place and alert
// events to connected subscribers.
package hub

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/observability"
)

// ErrSnapshotDropped reports that a places subscription was recorded but its
// baseline snapshot did not fit in the connection's send buffer.
var ErrSnapshotDropped = errors.New("snapshot dropped: send buffer full")

// Message is one event addressed to a topic.
type Message struct {
	Topic domain.Topic
	Event domain.Event
}

// Conn is a subscriber endpoint. Deliver must not block: it either queues the
// message and returns true or drops it and returns false.
type Conn interface {
	ID() string
	Deliver(Message) bool
}

// SnapshotSource supplies the baseline sent on subscription to the places topic.
type SnapshotSource interface {
	Snapshot() domain.PlacesSnapshot
}

// Hub owns the topic membership table. Topics are created on first subscribe
// and never removed.
type Hub struct {
	mu      sync.RWMutex
	topics  map[domain.Topic]map[string]Conn
	members map[string]map[domain.Topic]struct{}

	snapshots SnapshotSource
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an empty hub.
func New(snapshots SnapshotSource, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		topics:    make(map[domain.Topic]map[string]Conn),
		members:   make(map[string]map[domain.Topic]struct{}),
		snapshots: snapshots,
		logger:    logger,
		metrics:   metrics,
	}
}

// Subscribe adds conn to topic. Subscribing to the places topic also delivers
// the current snapshot; it is queued under the membership lock, so it reaches
// the subscriber before any update published after the subscription. The
// membership is kept even when the snapshot is dropped; ErrSnapshotDropped
// tells the caller to let the subscriber know.
func (h *Hub) Subscribe(conn Conn, topic domain.Topic) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := conn.ID()
	room, ok := h.topics[topic]
	if !ok {
		room = make(map[string]Conn)
		h.topics[topic] = room
	}
	if _, already := room[id]; !already {
		room[id] = conn
		topics, ok := h.members[id]
		if !ok {
			topics = make(map[domain.Topic]struct{})
			h.members[id] = topics
			h.metrics.HubConnections.Inc()
		}
		topics[topic] = struct{}{}
		h.metrics.HubSubscriptions.Inc()
	}

	h.logger.Debug("subscribed", "conn_id", id, "topic", topic.String())
	if topic.Kind() == domain.TopicPlaces && h.snapshots != nil {
		if !h.deliver(conn, Message{Topic: topic, Event: h.snapshots.Snapshot()}) {
			h.logger.Warn("places snapshot dropped", "conn_id", id)
			return ErrSnapshotDropped
		}
	}
	return nil
}

// Unsubscribe removes conn from one topic, leaving its other memberships alone.
func (h *Hub) Unsubscribe(conn Conn, topic domain.Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(conn.ID(), topic)
}

// Disconnect removes every membership of conn.
func (h *Hub) Disconnect(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := conn.ID()
	for topic := range h.members[id] {
		h.remove(id, topic)
	}
}

func (h *Hub) remove(id string, topic domain.Topic) {
	room, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, member := room[id]; !member {
		return
	}
	delete(room, id)
	h.metrics.HubSubscriptions.Dec()

	topics := h.members[id]
	delete(topics, topic)
	if len(topics) == 0 {
		delete(h.members, id)
		h.metrics.HubConnections.Dec()
	}
}

// Publish hands ev to every current member of topic and returns how many
// accepted it. Slow or closed members are skipped.
func (h *Hub) Publish(topic domain.Topic, ev domain.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := Message{Topic: topic, Event: ev}
	delivered := 0
	for _, conn := range h.topics[topic] {
		if h.deliver(conn, msg) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) deliver(conn Conn, msg Message) bool {
	if conn.Deliver(msg) {
		h.metrics.HubDeliveries.Inc()
		return true
	}
	h.metrics.HubDrops.Inc()
	h.logger.Debug("event dropped", "conn_id", conn.ID(), "topic", msg.Topic.String(), "kind", msg.Event.Kind())
	return false
}

// Members returns the number of connections subscribed to topic.
func (h *Hub) Members(topic domain.Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics returns the topics conn currently belongs to.
func (h *Hub) Topics(conn Conn) []domain.Topic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Topic, 0, len(h.members[conn.ID()]))
	for t := range h.members[conn.ID()] {
		out = append(out, t)
	}
	return out
}
