// Package httpapi composes the public HTTP surface: the authenticated API,
// the websocket feed, and the operational endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cratekeeper/internal/platform/metrics"
	"cratekeeper/internal/platform/middleware"
	"cratekeeper/internal/session"
	"cratekeeper/internal/workflow/handler"
	"cratekeeper/internal/ws"
)

// Deps carries everything the router mounts.
type Deps struct {
	Workflow  *handler.Handler
	Sessions  *session.Handler
	WS        *ws.Server
	Validator middleware.TokenValidator
	Revoked   middleware.RevocationChecker
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// New builds the router. The websocket endpoint authenticates in-band (close
// codes instead of HTTP statuses), so it sits outside RequireAuth.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Handle("/ws", deps.WS.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Revoked, deps.Logger))
		deps.Workflow.Register(r)
		deps.Sessions.Register(r)
	})

	return r
}
