// Package api serves query results, counts, navigation and exports over
// HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/obsquery/internal/cache"
	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/logger"
	"github.com/rpattn/obsquery/internal/metrics"
	"github.com/rpattn/obsquery/internal/middleware"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/repository"
	"github.com/rpattn/obsquery/internal/sequence"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Factory        *query.Factory
	Compiler       *compiler.Compiler
	Store          *cache.Store
	Navigator      *sequence.Navigator
	Entities       repository.EntityRepository
	Filters        domain.Preferences
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zerolog.Logger
}

// Server is the HTTP surface.
type Server struct {
	deps   Deps
	logger zerolog.Logger
}

// NewServer creates a server. A nil Gatherer serves the default registry and
// a nil Logger uses the global one.
func NewServer(deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	l := log.Logger
	if deps.Logger != nil {
		l = *deps.Logger
	}
	return &Server{deps: deps, logger: logger.Component(l, "api")}
}

// Handler returns the routed handler with CORS, logging and the per-request
// entity loader applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{model}", s.handleResults)
	mux.HandleFunc("GET /api/{model}/count", s.handleCount)
	mux.HandleFunc("GET /api/{model}/step", s.handleStep)
	mux.HandleFunc("GET /api/{model}/export.xlsx", s.handleExport)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.deps.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
	})

	var h http.Handler = mux
	h = middleware.DataLoaderMiddleware(s.deps.Entities)(h)
	h = middleware.LoggingMiddleware(s.logger, s.deps.Metrics, routeLabel)(h)
	return corsHandler.Handler(h)
}

func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

// entityType resolves the {model} path segment case-insensitively.
func (s *Server) entityType(r *http.Request) (domain.EntityType, bool) {
	model := r.PathValue("model")
	for _, t := range s.deps.Factory.Registry().Types() {
		if strings.EqualFold(string(t), model) {
			return t, true
		}
	}
	return "", false
}
