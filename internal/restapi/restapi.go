// Package restapi exposes the resolver over HTTP: resource reads and
// writes, change streams, health and metrics.
package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transitstore.org/internal/app"
)

// maxBodySize bounds the JSON accepted by write requests.
const maxBodySize = 1 << 20

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

func NewRestAPI(a *app.Application) *RestAPI {
	return &RestAPI{
		Application: a,
		rateLimiter: NewRateLimitMiddleware(a.Config.RateLimit, a.Clock),
	}
}

// SetRoutes registers every endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	limit := api.rateLimiter.Handler()

	mux.Handle("GET /resource/{authority}/{path...}", limit(http.HandlerFunc(api.queryHandler)))
	mux.Handle("POST /resource/{authority}/{path...}", limit(api.requireWriteKey(api.insertHandler)))
	mux.Handle("PUT /resource/{authority}/{path...}", limit(api.requireWriteKey(api.updateHandler)))
	mux.Handle("DELETE /resource/{authority}/{path...}", limit(api.requireWriteKey(api.deleteHandler)))
	mux.Handle("GET /watch/{authority}/{path...}", limit(http.HandlerFunc(api.watchHandler)))

	mux.HandleFunc("GET /healthz", api.healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
}

// Handler returns mux wrapped in the request middleware chain.
func (api *RestAPI) Handler(mux http.Handler) http.Handler {
	handler := MetricsHandler(api.Metrics)(mux)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	return RequestIDMiddleware(handler)
}

func (api *RestAPI) requireWriteKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.WritesRequireKey() && api.RequestHasInvalidAPIKey(r) {
			api.sendError(w, r, http.StatusUnauthorized, "permission denied")
			return
		}
		next(w, r)
	})
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
}
