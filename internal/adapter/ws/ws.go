// Package ws serves the real-time channel: clients subscribe to topics over a
// websocket and receive every event the hub publishes to them.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/hub"
	"github.com/couchcryptid/place-state-hub/internal/idgen"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
	controlBuffer  = 16
)

// Subscriptions is the membership surface of the hub.
type Subscriptions interface {
	Subscribe(conn hub.Conn, topic domain.Topic) error
	Unsubscribe(conn hub.Conn, topic domain.Topic)
	Disconnect(conn hub.Conn)
}

// clientFrame is a request from the browser. Room is accepted as an alias of Topic.
type clientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
	Room   string `json:"room"`
}

// serverFrame is pushed to the browser.
type serverFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler upgrades requests and runs one client per connection.
type Handler struct {
	hub        Subscriptions
	ids        idgen.Generator
	sendBuffer int
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewHandler creates the websocket endpoint.
func NewHandler(subs Subscriptions, ids idgen.Generator, sendBuffer int, logger *slog.Logger) *Handler {
	return &Handler{
		hub:        subs,
		ids:        ids,
		sendBuffer: sendBuffer,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.ids.NewID(idgen.ConnPrefix)
	if err != nil {
		http.Error(w, "could not allocate connection id", http.StatusInternalServerError)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &client{
		ChanConn: hub.NewChanConn(id, h.sendBuffer),
		hub:      h.hub,
		ws:       conn,
		control:  make(chan serverFrame, controlBuffer),
		logger:   h.logger.With("conn_id", id),
	}
	c.logger.Info("websocket connected", "remote_addr", r.RemoteAddr)

	go c.writePump()
	c.readPump()
}

// client is a middleman between the websocket connection and the hub.
type client struct {
	*hub.ChanConn
	hub     Subscriptions
	ws      *websocket.Conn
	control chan serverFrame
	logger  *slog.Logger
}

// readPump applies subscription requests until the socket closes, then
// removes the client from every topic.
func (c *client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.Close()
		c.logger.Info("websocket disconnected")
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *client) handle(data []byte) {
	var req clientFrame
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(serverFrame{Type: "error", Error: "malformed frame"})
		return
	}
	name := req.Topic
	if name == "" {
		name = req.Room
	}
	topic, err := domain.ParseTopic(name)
	if err != nil {
		c.reply(serverFrame{Type: "error", Error: err.Error()})
		return
	}

	switch req.Action {
	case "subscribe":
		if err := c.hub.Subscribe(c, topic); err != nil {
			c.reply(serverFrame{Type: "error", Topic: topic.String(), Error: err.Error()})
			return
		}
		c.reply(serverFrame{Type: "subscribed", Topic: topic.String()})
	case "unsubscribe":
		c.hub.Unsubscribe(c, topic)
		c.reply(serverFrame{Type: "unsubscribed", Topic: topic.String()})
	default:
		c.reply(serverFrame{Type: "error", Error: "unknown action " + req.Action})
	}
}

func (c *client) reply(f serverFrame) {
	select {
	case c.control <- f:
	default:
		c.logger.Debug("control reply dropped", "type", f.Type)
	}
}

// writePump forwards hub messages and control replies to the socket and keeps
// the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Messages():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame := serverFrame{Type: string(msg.Event.Kind()), Topic: msg.Topic.String(), Data: msg.Event}
			if err := c.ws.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case f := <-c.control:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
