package events

import "time"

// Event type constants
const (
	EventTypeConnected = "connected"
	EventTypeHeartbeat = "heartbeat"
	EventTypeUpdate    = "update"
	EventTypeStockTick = "stock_tick"
	EventTypeError     = "error"
)

// Well-known topics
const (
	TopicDemo   = "demo-updates"
	TopicStocks = "stocks"
)

// ConnectedEvent is sent when a client establishes an SSE connection.
type ConnectedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// HeartbeatEvent is sent periodically to keep the connection alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// UpdateEvent carries an arbitrary broadcast message published by a client.
type UpdateEvent struct {
	Message     string    `json:"message"`
	PublishedBy string    `json:"published_by,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// StockTickEvent carries a single stock quote.
type StockTickEvent struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent is sent when an error occurs on the stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
