package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/driverlog/internal/version"
)

// requestTimeout is the per-request wall-clock budget.
const requestTimeout = 20 * time.Second

// Server holds the HTTP server dependencies. Domain handlers are mounted
// externally after NewServer.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware, CORS, and the
// unauthenticated metadata/health/metrics endpoints.
func NewServer(corsOrigins []string, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(Recover(logger))
	s.Router.Use(middleware.Timeout(requestTimeout))
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "Authorization",
			"X-API-Token", "X-Request-Timestamp", "X-Request-Signature",
			"X-File-Name", "X-Request-ID",
		},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Unknown path or method: plain-text 404 for everything except CORS
	// preflight, which always succeeds.
	s.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		RespondNotFoundRoute(w)
	})
	s.Router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		RespondNotFoundRoute(w)
	})

	// Service metadata (unauthenticated).
	s.Router.Get("/", s.handleRoot)
	s.Router.Get("/health", s.handleHealth)

	// Prometheus metrics (unauthenticated).
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"service":        "driverlog",
		"version":        version.Version,
		"commit":         version.Commit,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"ok":  true,
		"now": time.Now().UTC().Format(time.RFC3339),
	})
}
