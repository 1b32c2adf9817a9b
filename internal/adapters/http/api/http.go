// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/okian/podium/internal/domain/forecast"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ForecastDependencies
	ContendersDependencies
	HealthDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	forecastHandler   *ForecastHandler
	contendersHandler *ContendersHandler

	corsOrigins     []string
	rateLimit       int
	rateLimitWindow time.Duration
	logger          logger.Logger
	docs            func(chi.Router)
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithRateLimit allows n requests per window per client IP. n <= 0 disables
// limiting.
func WithRateLimit(n int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = n
		if window > 0 {
			s.rateLimitWindow = window
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDocs mounts documentation routes, e.g. swagger.Register.
func WithDocs(register func(chi.Router)) Option {
	return func(s *Server) {
		s.docs = register
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:     NewHealthHandler(deps),
		statsHandler:      NewStatsHandler(deps),
		forecastHandler:   NewForecastHandler(deps),
		contendersHandler: NewContendersHandler(deps),
		corsOrigins:       []string{"*"},
		rateLimitWindow:   time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// Routes builds the chi router with every route and middleware attached.
func (s *Server) Routes(_ context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(Recoverer(s.logger))
	r.Use(CORS(s.corsOrigins))

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleMetrics, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	if s.docs != nil {
		s.docs(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(s.rateLimit, s.rateLimitWindow))

		r.Get("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))

		r.Route("/predictions", func(r chi.Router) {
			// Static segments win over {kind} in chi's tree.
			r.Get("/contenders", MetricsMiddleware(s.contendersHandler.HandleContenders, "contenders"))
			r.Get("/models", MetricsMiddleware(s.contendersHandler.HandleModels, "models"))
			r.Get("/{kind}", MetricsMiddleware(s.forecastHandler.HandleRanked, "ranked"))
			r.Get("/{kind}/{entity}", MetricsMiddleware(s.forecastHandler.HandleEntity, "forecast"))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, model.KindNotFound, ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, model.KindInvalidRequest, ErrMethodNotAllowed)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorBody{
		Kind:      kind,
		Message:   msg,
		RequestID: logger.RequestIDFrom(r.Context()),
	})
}

// writeKindError maps a domain error to its status code and body.
func writeKindError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	writeError(w, r, statusFor(kind), kind, err)
}

// forecastResponse adapts results to the wire shape; ranks start at 1.
func forecastResponse(results []forecast.Result) []types.Forecast {
	out := make([]types.Forecast, 0, len(results))
	for i, res := range results {
		out = append(out, types.FromResult(i+1, res))
	}
	return out
}
