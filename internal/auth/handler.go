package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avolkovs/portal-api/internal/metrics"
	"github.com/avolkovs/portal-api/internal/ratelimit"
)

var validate = validator.New()

// RegisterRequest represents the registration request payload.
// ClientID optionally names the caller for rate-limit bookkeeping; proxies
// and tests use it, everyone else is keyed by client address.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientID string `json:"client_id,omitempty"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientID string `json:"client_id,omitempty"`
}

// Handler handles HTTP requests for the authentication endpoints
type Handler struct {
	service    *AuthService
	loginGuard *ratelimit.Guard
	regGuard   *ratelimit.Guard
	logger     *slog.Logger
}

// NewHandler creates a new authentication Handler instance
func NewHandler(service *AuthService, loginGuard, regGuard *ratelimit.Guard, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:    service,
		loginGuard: loginGuard,
		regGuard:   regGuard,
		logger:     logger,
	}
}

// Register handles user registration
// POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}
	if err := validate.Var(req.Email, "required,email"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	identifier := clientIdentifier(r, req.ClientID)

	// Registration limits attempt frequency regardless of outcome, so the
	// guard is consulted and the attempt booked before the store is touched.
	decision, err := h.regGuard.Consume(r.Context(), identifier)
	if err != nil {
		h.serverError(w, r, "registration rate check failed", err)
		return
	}
	if !decision.Allowed {
		metrics.RegistrationsTotal.WithLabelValues("rate_limited").Inc()
		writeRateLimited(w, "Too many registration attempts. Please try again later.", decision.RetryAfter)
		return
	}
	if err := h.regGuard.RecordAttempt(r.Context(), identifier); err != nil {
		h.serverError(w, r, "registration rate recording failed", err)
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			writeError(w, http.StatusConflict, "Email already in use")
			return
		}
		if recErr := h.regGuard.RecordFailure(r.Context(), identifier); recErr != nil {
			h.logger.Error("recording registration failure", "error", recErr)
		}
		h.serverError(w, r, "registration failed", err)
		return
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      user.ID,
	})
}

// Login handles credential authentication and token issuance
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}

	identifier := clientIdentifier(r, req.ClientID)

	decision, err := h.loginGuard.Consume(r.Context(), identifier)
	if err != nil {
		h.serverError(w, r, "login rate check failed", err)
		return
	}
	if !decision.Allowed {
		metrics.LoginsTotal.WithLabelValues("rate_limited").Inc()
		writeRateLimited(w, "Too many login attempts. Please try again later.", decision.RetryAfter)
		return
	}
	if err := h.loginGuard.RecordAttempt(r.Context(), identifier); err != nil {
		h.serverError(w, r, "login rate recording failed", err)
		return
	}

	principal, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// Only failed logins count against the window.
			if recErr := h.loginGuard.RecordFailure(r.Context(), identifier); recErr != nil {
				h.logger.Error("recording login failure", "error", recErr)
			}
			metrics.LoginsTotal.WithLabelValues("failure").Inc()
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":   "Invalid credentials",
				"message": "Invalid credentials.",
			})
			return
		}
		h.serverError(w, r, "login failed", err)
		return
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.TokensIssuedTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user":    principal,
	})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// clientIdentifier selects the rate-limit key: an explicit caller-supplied
// id wins, then the network-observed client address, then the sentinel.
func clientIdentifier(r *http.Request, clientID string) string {
	if clientID != "" {
		return clientID
	}
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return ratelimit.UnknownIdentifier
	}
	return addr
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{"error": message})
}

func writeRateLimited(w http.ResponseWriter, message string, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       message,
		"retry_after": seconds,
	})
}
