package hub

import "sync"

// ChanConn is a Conn backed by a buffered channel. A full buffer drops the
// message; Close stops further delivery.
type ChanConn struct {
	id string

	mu     sync.Mutex
	closed bool
	ch     chan Message
}

// NewChanConn returns a connection buffering up to size messages.
func NewChanConn(id string, size int) *ChanConn {
	return &ChanConn{id: id, ch: make(chan Message, size)}
}

func (c *ChanConn) ID() string { return c.id }

// Deliver queues msg without blocking.
func (c *ChanConn) Deliver(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- msg:
		return true
	default:
		return false
	}
}

// Messages is the receive side of the buffer. It is closed by Close.
func (c *ChanConn) Messages() <-chan Message { return c.ch }

// Close stops delivery and closes the channel. It is safe to call twice.
func (c *ChanConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
