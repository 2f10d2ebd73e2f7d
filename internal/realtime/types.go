// Package realtime provides Server-Sent Events streaming and the publish
// endpoints of the realtime relay.
package realtime

import (
	"net/http"
	"time"
)

// Config holds realtime relay configuration.
type Config struct {
	HeartbeatInterval time.Duration // Default: 30 seconds
	ConnectionTimeout time.Duration // Default: 1 hour
	EventBufferSize   int           // Default: 100 events
	SubscriberSecret  string        // HMAC key for subscriber tokens
	SubscriberTTL     time.Duration // Default: 1 hour
}

// DefaultConfig returns the default realtime configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 1 * time.Hour,
		EventBufferSize:   100,
		SubscriberTTL:     1 * time.Hour,
	}
}

// Connection represents an active SSE connection.
type Connection struct {
	ID        string
	Topic     string
	Writer    http.ResponseWriter
	Flusher   http.Flusher
	Done      chan struct{}
	CreatedAt time.Time
}

// NewConnection creates a new SSE connection.
func NewConnection(id, topic string, w http.ResponseWriter) (*Connection, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingNotSupported
	}

	return &Connection{
		ID:        id,
		Topic:     topic,
		Writer:    w,
		Flusher:   flusher,
		Done:      make(chan struct{}),
		CreatedAt: time.Now(),
	}, nil
}

// Close closes the connection.
func (c *Connection) Close() {
	select {
	case <-c.Done:
		// Already closed
	default:
		close(c.Done)
	}
}

// IsClosed returns true if the connection is closed.
func (c *Connection) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}
