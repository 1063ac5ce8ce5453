// Package api exposes the gallery service over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/fernandezvara/gallerykit"
)

// Options configures the router.
type Options struct {
	Service       *gallerykit.Service
	Authenticator gallerykit.Authenticator
	Health        gallerykit.HealthMonitor
	Gatherer      prometheus.Gatherer
	Logger        log.FieldLogger
}

// NewRouter builds the HTTP API.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Health == nil {
		opts.Health = gallerykit.StaticHealth{}
	}

	var mwOpts []gallerykit.MiddlewareOption
	if opts.Authenticator != nil {
		mwOpts = append(mwOpts, gallerykit.WithAuthenticator(opts.Authenticator))
	}
	mw := gallerykit.NewMiddleware(opts.Service, mwOpts...)
	h := &handlers{service: opts.Service, health: opts.Health, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.InjectAuditContext)
	r.Use(requestLogger(opts.Logger))

	r.Get("/healthz", h.healthz)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.LoadSession)

		r.Get("/me/role", h.myRole)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuthenticated)
			r.Get("/me/artist-request", h.myArtistRequest)
			r.Post("/artist-requests", h.submitArtistRequest)
		})

		r.With(mw.RequireFeature(gallerykit.FeatureArtworksCreate)).Post("/artworks", h.createArtwork)

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireRole(gallerykit.RoleAdmin))
			r.Get("/artist-requests", h.listArtistRequests)
			r.Post("/artist-requests/{requestID}/approve", h.resolveArtistRequest(gallerykit.DecisionApprove))
			r.Post("/artist-requests/{requestID}/reject", h.resolveArtistRequest(gallerykit.DecisionReject))
			r.Get("/audit-log", h.auditLog)
		})
	})
	return r
}

func requestLogger(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  gallerykit.GetRequestID(r.Context()),
			}).Debug("http request")
		})
	}
}
