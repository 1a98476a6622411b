package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/metrics"
	"github.com/ryanbastic/go-pixelwall/internal/ratelimit"
	"github.com/ryanbastic/go-pixelwall/internal/session"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

// Deps are the collaborators the HTTP API serves. Plugins, Limiter,
// Claims and Health may be nil.
type Deps struct {
	Ledger    *ledger.Ledger
	Bus       *trigger.Bus
	Sessions  *session.Registry
	Plugins   *trigger.PluginRegistry
	Limiter   *ratelimit.KeyedLimiter
	Claims    ClaimObserver
	Health    *HealthHandler
	ClearMode ledger.ClearMode
	Logger    *slog.Logger
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(d Deps) http.Handler {
	h, _ := newServer(d)
	return h
}

func newServer(d Deps) (http.Handler, huma.API) {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	health := d.Health
	if health == nil {
		health = NewHealthHandler(nil, logger)
		health.SetReady(true)
	}

	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)
	mux.Use(ClientKey)
	mux.Use(health.Gate)

	api := humachi.New(mux, huma.DefaultConfig("pixelwall API", "1.0.0"))

	registerGridRoutes(api, NewGridHandler(d.Ledger, d.Limiter, d.Claims, d.ClearMode, logger))
	sessions := NewSessionHandler(d.Sessions, d.Limiter, d.Claims, d.ClearMode, logger)
	registerSessionRoutes(api, sessions)
	registerEventRoutes(api, NewEventHandler(d.Bus, DefaultStreamBuffer, logger))
	if d.Plugins != nil {
		registerPluginRoutes(api, NewPluginHandler(d.Plugins, logger))
	}

	mux.Get("/v1/sessions/{session_id}/frame.png", sessions.Frame)
	mux.Get("/v1/livez", health.Livez)
	mux.Get("/v1/readyz", health.Readyz)
	mux.Get("/v1/health", health.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	return mux, api
}
