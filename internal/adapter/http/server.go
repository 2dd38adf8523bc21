package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the REST API, the real-time endpoint and the health,
// readiness and metrics routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router. realtime serves GET /ws; it may be nil.
func NewServer(addr string, svc PlaceService, realtime http.Handler, adminKeys []string, logger *slog.Logger) *Server {
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           newRouter(svc, realtime, adminKeys, logger),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
	return s
}

func newRouter(svc PlaceService, realtime http.Handler, adminKeys []string, logger *slog.Logger) http.Handler {
	h := &handlers{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(svc))
	r.Handle("/metrics", promhttp.Handler())
	if realtime != nil {
		r.Handle("/ws", realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requestLogger(logger))
		r.Get("/places", h.listPlaces)
		r.Get("/places/{id}", h.getPlace)
		r.Get("/places/{id}/forecast", h.forecast)
		r.Get("/places/{id}/nearby", h.nearby)
		r.Post("/ingest", h.ingest)
		r.Get("/alerts", h.listAlerts)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAPIKey(adminKeys))
			r.Get("/places", h.adminPlaces)
			r.Get("/alerts", h.listAlerts)
			r.Post("/alert", h.raiseAlert)
			r.Post("/override", h.override)
		})
	})
	return r
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
