package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fwiko/multiplayer-quiz/internal/registry"
	"github.com/fwiko/multiplayer-quiz/internal/ws"
)

// SetupRoutes builds the router with the registry injected.
func SetupRoutes(reg *registry.Registry, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", ws.Handler(reg, log))
	r.Get("/healthz", Healthz)
	r.Get("/games", ListGames(reg))
	r.Get("/sessions/{uid}", GetSession(reg))
	return r
}
