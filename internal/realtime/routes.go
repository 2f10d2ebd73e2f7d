package realtime

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers realtime routes with the Chi router. All of them
// sit behind the API-token middleware applied by the caller.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/realtime", func(r chi.Router) {
		r.Get("/stream", handler.HandleStream)
		r.Post("/update", handler.PublishUpdate)
		r.Get("/demo", handler.Demo)
		r.Get("/token", handler.Token)
	})
}
