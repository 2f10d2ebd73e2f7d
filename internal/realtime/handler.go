package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avolkovs/portal-api/internal/events"
	"github.com/avolkovs/portal-api/internal/metrics"
)

// UpdateRequest is the payload for publishing an update to a topic
type UpdateRequest struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// Handler serves the SSE stream and the publish endpoints
type Handler struct {
	config   Config
	eventBus *events.InMemoryEventBus
	logger   *slog.Logger
}

// NewHandler creates a new realtime Handler.
func NewHandler(config Config, eventBus *events.InMemoryEventBus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:   config,
		eventBus: eventBus,
		logger:   logger,
	}
}

// HandleStream handles an SSE stream request. The topic is selected with the
// topic query parameter and defaults to the demo topic. Authentication has
// already happened in the middleware chain.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = events.TopicDemo
	}

	conn, err := NewConnection(uuid.New().String(), topic, w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	h.sendConnectedEvent(conn)

	// Replay missed events on reconnect
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID != "" {
		h.replayEvents(conn, topic, lastEventID)
	}

	unsubscribe := h.eventBus.Subscribe(topic, func(event events.Event) {
		h.sendEvent(conn, event)
	})
	defer unsubscribe()

	heartbeatDone := make(chan struct{})
	go h.heartbeatLoop(conn, heartbeatDone)

	ctx := r.Context()
	timeout := time.NewTimer(h.config.ConnectionTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		// Client disconnected
	case <-conn.Done:
		// Connection closed by server
	case <-timeout.C:
		// Connection timeout
	}

	close(heartbeatDone)
	conn.Close()
}

// PublishUpdate handles POST /api/realtime/update. The body names a topic and
// a message; the message is relayed verbatim to every subscriber.
func (h *Handler) PublishUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" || len(req.Message) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid data. Required: topic and message",
		})
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeUpdate,
		Topic:     req.Topic,
		Data:      req.Message,
		Timestamp: time.Now().UTC(),
	}

	if err := h.eventBus.Publish(event); err != nil {
		h.logger.Error("publishing update", "error", err, "topic", req.Topic)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "Update published",
		"topic":  req.Topic,
	})
}

// Demo handles GET /api/realtime/demo by publishing a canned update to the
// demo topic so clients have something to watch.
func (h *Handler) Demo(w http.ResponseWriter, r *http.Request) {
	demoData := map[string]any{
		"timestamp": time.Now().Format("2006-01-02 15:04:05"),
		"message":   "Demo realtime update",
		"random":    rand.Intn(100) + 1,
	}

	data, err := json.Marshal(demoData)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeUpdate,
		Topic:     events.TopicDemo,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	if err := h.eventBus.Publish(event); err != nil {
		h.logger.Error("publishing demo update", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "Demo update published",
		"data":   demoData,
	})
}

// Token handles GET /api/realtime/token. It mints a short-lived HMAC-signed
// subscriber token granting subscribe access to all topics, for clients that
// connect to the stream through an external hub.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	claims := jwt.MapClaims{
		"mercure": map[string]any{
			"subscribe": []string{"*"},
		},
		"iat": now.Unix(),
		"exp": now.Add(h.config.SubscriberTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.config.SubscriberSecret))
	if err != nil {
		h.logger.Error("signing subscriber token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": signed})
}

// sendConnectedEvent sends the connected event to a connection.
func (h *Handler) sendConnectedEvent(conn *Connection) {
	data, err := json.Marshal(events.ConnectedEvent{
		Timestamp: time.Now(),
		Message:   "Connected to realtime updates",
	})
	if err != nil {
		return
	}

	h.sendEvent(conn, events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeConnected,
		Topic:     conn.Topic,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// sendEvent sends an event to a connection.
func (h *Handler) sendEvent(conn *Connection, event events.Event) error {
	if conn.IsClosed() {
		return ErrConnectionClosed
	}

	if _, err := fmt.Fprint(conn.Writer, FormatSSEEvent(event)); err != nil {
		return err
	}

	conn.Flusher.Flush()
	return nil
}

// heartbeatLoop sends heartbeat events at regular intervals.
func (h *Handler) heartbeatLoop(conn *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-conn.Done:
			return
		case <-ticker.C:
			h.sendHeartbeat(conn)
		}
	}
}

// sendHeartbeat sends a heartbeat event to a connection.
func (h *Handler) sendHeartbeat(conn *Connection) {
	data, err := json.Marshal(events.HeartbeatEvent{Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.sendEvent(conn, events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeHeartbeat,
		Topic:     conn.Topic,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// replayEvents replays missed events to a reconnecting client.
func (h *Handler) replayEvents(conn *Connection, topic, lastEventID string) {
	missed, err := h.eventBus.GetEventsSince(topic, lastEventID)
	if err != nil {
		return
	}

	for _, event := range missed {
		if err := h.sendEvent(conn, event); err != nil {
			return
		}
	}
}

// FormatSSEEvent formats an event as an SSE message.
// Format: event: <type>\ndata: <json>\nid: <id>\n\n
func FormatSSEEvent(event events.Event) string {
	return fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n",
		event.Type,
		string(event.Data),
		event.ID,
	)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
