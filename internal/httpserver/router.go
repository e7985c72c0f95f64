package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deskagent/internal/middleware"
)

// RouterDeps bundles the channel adapters the router fronts, each exposed
// only as a plain http.Handler so this package never imports the adapters
// themselves (they import httpserver for WriteJSONError).
type RouterDeps struct {
	Logger  *slog.Logger
	Webhook http.Handler
	Chat    http.Handler
}

// NewRouter assembles the chi router with the common middleware stack and
// mounts every channel adapter on it.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Post("/webhook/{tenantID}/{convID}", deps.Webhook.ServeHTTP)
	r.Get("/chat/{tenantID}/{convID}", deps.Chat.ServeHTTP)

	return r
}
