package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avolkovs/portal-api/internal/config"
	"github.com/avolkovs/portal-api/internal/ratelimit"
	"github.com/avolkovs/portal-api/internal/repository"
)

// mockAttemptRepository implements repository.AttemptRepository for testing
type mockAttemptRepository struct {
	records map[string]*repository.LoginAttempt
	nextID  int64
	now     func() time.Time
}

func newMockAttemptRepository() *mockAttemptRepository {
	return &mockAttemptRepository{
		records: make(map[string]*repository.LoginAttempt),
		nextID:  1,
		now:     time.Now,
	}
}

func (m *mockAttemptRepository) Find(ctx context.Context, identifier string) (*repository.LoginAttempt, error) {
	if record, ok := m.records[identifier]; ok {
		return record, nil
	}
	return nil, repository.ErrAttemptNotFound
}

func (m *mockAttemptRepository) Increment(ctx context.Context, identifier string, window time.Duration) (*repository.LoginAttempt, error) {
	now := m.now()
	record, ok := m.records[identifier]
	if !ok {
		record = &repository.LoginAttempt{
			ID:          m.nextID,
			Identifier:  identifier,
			Attempts:    1,
			LastAttempt: now,
		}
		m.nextID++
		m.records[identifier] = record
		return record, nil
	}

	if now.Sub(record.LastAttempt) <= window {
		record.Attempts++
	} else {
		record.Attempts = 1
	}
	record.LastAttempt = now
	return record, nil
}

func (m *mockAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for identifier, record := range m.records {
		if record.LastAttempt.Before(before) {
			delete(m.records, identifier)
			n++
		}
	}
	return n, nil
}

// newTestRouter builds the handler with the same limiter policies the server
// uses: three login failures per five minutes, five registrations per window.
func newTestRouter() (chi.Router, *mockAttemptRepository) {
	service, _, _ := newTestAuthService()
	attemptRepo := newMockAttemptRepository()

	loginGuard := ratelimit.NewGuard("login", attemptRepo, config.LimiterConfig{
		MaxAttempts: 3,
		Window:      5 * time.Minute,
		CountAll:    false,
	}, nil)
	regGuard := ratelimit.NewGuard("registration", attemptRepo, config.LimiterConfig{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		CountAll:    true,
	}, nil)

	handler := NewHandler(service, loginGuard, regGuard, nil)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		RegisterRoutes(r, handler)
	})
	return r, attemptRepo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	decoded := make(map[string]any)
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestRegisterEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	rec, body := doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Errorf("expected success true, got %v", body["success"])
	}
	if _, ok := body["id"]; !ok {
		t.Error("expected an id in the response")
	}
}

func TestRegisterMissingFields(t *testing.T) {
	router, _ := newTestRouter()

	cases := []map[string]string{
		{"email": "a@x.com"},
		{"password": "Secret123!"},
		{},
	}
	for _, payload := range cases {
		rec, body := doJSON(t, router, http.MethodPost, "/api/register", payload)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %v: expected 400, got %d", payload, rec.Code)
		}
		if body["error"] != "Missing email or password" {
			t.Errorf("payload %v: unexpected error %v", payload, body["error"])
		}
	}
}

func TestRegisterInvalidEmail(t *testing.T) {
	router, _ := newTestRouter()

	rec, body := doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "not-an-email",
		"password": "Secret123!",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["error"] != "Invalid email address" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestRegisterDuplicate(t *testing.T) {
	router, _ := newTestRouter()

	rec, _ := doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec, body := doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "OtherPass1!",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body["error"] != "Email already in use" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestRegisterRateLimited(t *testing.T) {
	router, _ := newTestRouter()

	// Registration counts every attempt, successful or not
	for i := 0; i < 5; i++ {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
			"email":     fmt.Sprintf("user%d@x.com", i),
			"password":  "Secret123!",
			"client_id": "client-1",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d", i+1, rec.Code)
		}
	}

	rec, body := doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":     "late@x.com",
		"password":  "Secret123!",
		"client_id": "client-1",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if body["error"] != "Too many registration attempts. Please try again later." {
		t.Errorf("unexpected error %v", body["error"])
	}
	if retry, ok := body["retry_after"].(float64); !ok || retry <= 0 {
		t.Errorf("expected positive retry_after, got %v", body["retry_after"])
	}
}

func TestLoginEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})

	rec, body := doJSON(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Errorf("expected success true, got %v", body["success"])
	}
	if token, ok := body["token"].(string); !ok || token == "" {
		t.Error("expected a token in the response")
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected a user object, got %v", body["user"])
	}
	if user["email"] != "a@x.com" {
		t.Errorf("unexpected user email %v", user["email"])
	}
	roles, ok := user["roles"].([]any)
	if !ok || len(roles) != 1 || roles[0] != DefaultRole {
		t.Errorf("expected roles [%s], got %v", DefaultRole, user["roles"])
	}
}

func TestLoginMissingFields(t *testing.T) {
	router, _ := newTestRouter()

	rec, body := doJSON(t, router, http.MethodPost, "/api/login", map[string]string{
		"email": "a@x.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["error"] != "Missing email or password" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	router, _ := newTestRouter()

	doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})

	rec, body := doJSON(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":    "a@x.com",
		"password": "WrongPass1!",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["error"] != "Invalid credentials" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

// Three failures are each answered with 401; the fourth attempt from the same
// caller is cut off with 429 before credentials are even checked.
func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	router, _ := newTestRouter()

	doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})

	payload := map[string]string{
		"email":     "a@x.com",
		"password":  "WrongPass1!",
		"client_id": "attacker",
	}

	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/login", payload)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("failure %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	rec, body := doJSON(t, router, http.MethodPost, "/api/login", payload)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if body["error"] != "Too many login attempts. Please try again later." {
		t.Errorf("unexpected error %v", body["error"])
	}
	if retry, ok := body["retry_after"].(float64); !ok || retry <= 0 {
		t.Errorf("expected positive retry_after, got %v", body["retry_after"])
	}

	// Even the correct password is rejected while locked out
	rec, _ = doJSON(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":     "a@x.com",
		"password":  "Secret123!",
		"client_id": "attacker",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for correct password during lockout, got %d", rec.Code)
	}
}

// Successful logins never count toward the login window.
func TestLoginSuccessesDoNotLockOut(t *testing.T) {
	router, attemptRepo := newTestRouter()

	doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})

	for i := 0; i < 10; i++ {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/login", map[string]string{
			"email":     "a@x.com",
			"password":  "Secret123!",
			"client_id": "good-client",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("login %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	if _, err := attemptRepo.Find(context.Background(), "good-client"); err == nil {
		t.Error("successful logins should not create an attempt record")
	}
}

func TestLockoutExpiresAfterWindow(t *testing.T) {
	router, attemptRepo := newTestRouter()

	doJSON(t, router, http.MethodPost, "/api/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123!",
	})

	payload := map[string]string{
		"email":     "a@x.com",
		"password":  "WrongPass1!",
		"client_id": "attacker",
	}
	for i := 0; i < 3; i++ {
		doJSON(t, router, http.MethodPost, "/api/login", payload)
	}

	rec, _ := doJSON(t, router, http.MethodPost, "/api/login", payload)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	// Age the counter past the window
	record, err := attemptRepo.Find(context.Background(), "attacker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	record.LastAttempt = time.Now().Add(-6 * time.Minute)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":     "a@x.com",
		"password":  "Secret123!",
		"client_id": "attacker",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after window elapsed, got %d", rec.Code)
	}
}
