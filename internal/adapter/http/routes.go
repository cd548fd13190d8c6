package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteMiddleware holds the per-group middleware applied by MountRoutes.
// Nil entries are skipped.
type RouteMiddleware struct {
	// ConnectLimit guards the stream connect endpoints.
	ConnectLimit func(http.Handler) http.Handler
	// Idempotency wraps the JSON push endpoint.
	Idempotency func(http.Handler) http.Handler
}

// MountRoutes registers all push broker routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, mw RouteMiddleware) {
	connectLimit := optional(mw.ConnectLimit)

	r.Get("/health", h.Health)
	r.With(connectLimit).Get("/ws/connect/{userId}", h.ConnectWS)

	r.Route("/sse", func(r chi.Router) {
		r.With(connectLimit).Get("/connect/{userId}", h.ConnectSSE)
		r.Get("/close/{userId}", h.CloseUser)
		r.Get("/list", h.ListUsers)
		r.Get("/count", h.CountUsers)
		r.Get("/push/{message}", h.PushAll)
		r.Get("/push/{userId}/{message}", h.PushUser)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/connections", h.ListConnections)
		r.With(optional(mw.Idempotency)).Post("/push", h.Push)
	})
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
