package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/avolkovs/portal-api/internal/auth"
	appctx "github.com/avolkovs/portal-api/internal/context"
)

// AuthMiddleware validates bearer API tokens on protected routes
type AuthMiddleware struct {
	service *auth.AuthService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(service *auth.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		service: service,
	}
}

// Authenticate is a middleware that resolves the Authorization header to a
// principal and injects it into the request context. Every failure is a 401
// with a message that distinguishes missing, malformed, and rejected tokens
// but never reveals why a well-formed token was rejected.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.writeError(w, "No API token provided")
			return
		}

		if strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer")) == "" {
			m.writeError(w, "Invalid token format")
			return
		}

		principal, err := m.service.ValidateToken(r.Context(), authHeader)
		if err != nil {
			if errors.Is(err, auth.ErrMalformedToken) {
				m.writeError(w, "Invalid token format")
				return
			}
			m.writeError(w, "Invalid or expired token")
			return
		}

		ctx := appctx.WithPrincipal(r.Context(), principal.ID, principal.Email, principal.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeError writes the authentication failure response
func (m *AuthMiddleware) writeError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   "Authentication failed",
		"message": message,
	})
}
