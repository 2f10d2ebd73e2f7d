package auth

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the authentication routes with the Chi router.
// Both endpoints are public; the rate limit guards inside the handler
// decide whether an individual caller is still allowed through.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
}
