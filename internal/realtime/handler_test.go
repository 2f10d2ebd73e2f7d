package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avolkovs/portal-api/internal/events"
)

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestHandler() (*Handler, *events.InMemoryEventBus) {
	cfg := DefaultConfig()
	cfg.SubscriberSecret = "test-subscriber-secret-32-chars!"
	bus := events.NewEventBus(events.NewEventStore(100))
	return NewHandler(cfg, bus, nil), bus
}

func TestPublishUpdate(t *testing.T) {
	handler, bus := newTestHandler()

	var received []events.Event
	unsubscribe := bus.Subscribe("news", func(event events.Event) {
		received = append(received, event)
	})
	defer unsubscribe()

	payload := map[string]any{
		"topic":   "news",
		"message": map[string]string{"headline": "it works"},
	}
	raw, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/realtime/update", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.PublishUpdate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "Update published" {
		t.Errorf("unexpected status %v", body["status"])
	}
	if body["topic"] != "news" {
		t.Errorf("unexpected topic %v", body["topic"])
	}

	if len(received) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(received))
	}
	if !bytes.Contains(received[0].Data, []byte("it works")) {
		t.Errorf("message not relayed verbatim: %s", received[0].Data)
	}
}

func TestPublishUpdateRejectsIncompleteBody(t *testing.T) {
	handler, _ := newTestHandler()

	cases := []string{
		`{}`,
		`{"topic":"news"}`,
		`{"message":"hello"}`,
		`not json`,
	}
	for _, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/realtime/update", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.PublishUpdate(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %q: expected 400, got %d", payload, rec.Code)
		}
		var body map[string]any
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["error"] != "Invalid data. Required: topic and message" {
			t.Errorf("payload %q: unexpected error %v", payload, body["error"])
		}
	}
}

func TestDemoPublishesToDemoTopic(t *testing.T) {
	handler, bus := newTestHandler()

	received := 0
	unsubscribe := bus.Subscribe(events.TopicDemo, func(events.Event) {
		received++
	})
	defer unsubscribe()

	req := httptest.NewRequest(http.MethodGet, "/api/realtime/demo", nil)
	rec := httptest.NewRecorder()
	handler.Demo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if received != 1 {
		t.Errorf("expected 1 event on the demo topic, got %d", received)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "Demo update published" {
		t.Errorf("unexpected status %v", body["status"])
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body["data"])
	}
	if random, ok := data["random"].(float64); !ok || random < 1 || random > 100 {
		t.Errorf("expected random in [1,100], got %v", data["random"])
	}
}

func TestTokenIssuesSignedSubscriberJWT(t *testing.T) {
	handler, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/realtime/token", nil)
	rec := httptest.NewRecorder()
	handler.Token(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected a token")
	}

	parsed, err := jwt.Parse(body.Token, func(token *jwt.Token) (any, error) {
		return []byte("test-subscriber-secret-32-chars!"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("expected map claims")
	}
	mercure, ok := claims["mercure"].(map[string]any)
	if !ok {
		t.Fatalf("expected mercure claim, got %v", claims["mercure"])
	}
	subscribe, ok := mercure["subscribe"].([]any)
	if !ok || len(subscribe) != 1 || subscribe[0] != "*" {
		t.Errorf("expected subscribe [*], got %v", mercure["subscribe"])
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		t.Fatalf("expected an expiry claim: %v", err)
	}
	if until := time.Until(exp.Time); until <= 0 || until > time.Hour {
		t.Errorf("expected expiry within the next hour, got %v", until)
	}
}

func TestFormatSSEEvent(t *testing.T) {
	event := events.Event{
		ID:   "evt-1",
		Type: events.EventTypeUpdate,
		Data: []byte(`{"message":"hello"}`),
	}

	got := FormatSSEEvent(event)
	want := "event: update\ndata: {\"message\":\"hello\"}\nid: evt-1\n\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHandleStreamSendsConnectedAndPublished(t *testing.T) {
	handler, bus := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/realtime/stream?topic=news", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.HandleStream(rec, req)
		close(done)
	}()

	// Wait for the subscription to land, then publish and disconnect
	waitFor(t, func() bool { return bus.SubscriberCount("news") == 1 })

	bus.Publish(events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeUpdate,
		Topic:     "news",
		Data:      []byte(`{"message":"live"}`),
		Timestamp: time.Now(),
	})

	waitFor(t, func() bool { return strings.Contains(rec.Body.String(), "live") })
	cancel()
	<-done

	output := rec.Body.String()
	if !strings.Contains(output, "event: connected") {
		t.Errorf("expected a connected event, got %q", output)
	}
	if !strings.Contains(output, "event: update") {
		t.Errorf("expected the published update, got %q", output)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
	if bus.SubscriberCount("news") != 0 {
		t.Error("stream should unsubscribe on disconnect")
	}
}
