package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/metrics"
	"dropified/tracksync/internal/preferences"
	"dropified/tracksync/internal/service"
	"dropified/tracksync/internal/stream"
	"dropified/tracksync/internal/tracking"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runs is the run manager behind the API.
type Runs interface {
	Start(ctx context.Context, req service.StartRequest) (*tracking.Run, error)
	Get(ctx context.Context, runID string) (tracking.Snapshot, error)
	Cancel(runID string) (tracking.Snapshot, error)
	LastRun(ctx context.Context, storeID string) (*domain.Summary, error)
}

type Preferences interface {
	Get() domain.RunConfiguration
	Apply(ctx context.Context, u preferences.Update) (domain.RunConfiguration, error)
}

// History replays a store's progress stream.
type History interface {
	ReadSince(ctx context.Context, storeID, afterID string, count int64) ([]stream.Entry, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	runs     Runs
	prefs    Preferences
	history  History
	eventHub *EventHub
	checks   map[string]HealthCheck
}

// NewRouter builds the control API. history may be nil.
func NewRouter(runs Runs, prefs Preferences, history History, hub *EventHub, checks map[string]HealthCheck, token string) http.Handler {
	h := &Handlers{
		runs:     runs,
		prefs:    prefs,
		history:  history,
		eventHub: hub,
		checks:   checks,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)

		r.Group(func(r chi.Router) {
			r.Use(requireToken(token))

			r.Post("/runs", h.apiStartRun)
			r.Get("/runs/{id}", h.apiGetRun)
			r.Delete("/runs/{id}", h.apiCancelRun)
			r.Get("/runs/{id}/events", h.apiRunEvents)

			r.Get("/stores/{store_id}/last-run", h.apiLastRun)
			r.Get("/stores/{store_id}/events", h.apiStoreEvents)

			r.Get("/preferences", h.apiGetPreferences)
			r.Put("/preferences", h.apiPutPreferences)
		})
	})

	return r
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(r.Method + " " + route)
	})
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				jsonError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
