package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/memhub/internal/auth"
	"github.com/jordanhubbard/memhub/internal/cache"
	"github.com/jordanhubbard/memhub/internal/database"
	"github.com/jordanhubbard/memhub/internal/memory"
	"github.com/jordanhubbard/memhub/internal/messagebus"
	"github.com/jordanhubbard/memhub/internal/metrics"
	"github.com/jordanhubbard/memhub/internal/registry"
	"github.com/jordanhubbard/memhub/pkg/config"
)

// Server represents the HTTP API server
type Server struct {
	db       *database.Database
	engine   *memory.Engine
	composer *memory.Composer
	registry *registry.Registry
	auth     *auth.Manager
	cache    cache.Cache
	events   *messagebus.Publisher
	metrics  *metrics.Metrics
	config   *config.Config

	httpServer *http.Server
}

// NewServer creates a new API server. The auth manager, cache and event
// publisher are optional; pass nil to disable the concern.
func NewServer(
	db *database.Database,
	engine *memory.Engine,
	composer *memory.Composer,
	reg *registry.Registry,
	authManager *auth.Manager,
	responseCache cache.Cache,
	events *messagebus.Publisher,
	cfg *config.Config,
) *Server {
	return &Server{
		db:       db,
		engine:   engine,
		composer: composer,
		registry: reg,
		auth:     authManager,
		cache:    responseCache,
		events:   events,
		metrics:  metrics.NewMetrics(),
		config:   cfg,
	}
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Unknown paths still answer JSON
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "Not found")
	})

	// Health check
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	// Memory entries
	mux.HandleFunc("/api/memory", s.handleMemory)
	mux.HandleFunc("/api/memory/retrieve", s.handleMemoryRetrieve)

	// Workflow hook and audit trail
	mux.HandleFunc("/api/workflow/ticket-finish", s.handleWorkflowTicketFinish)
	mux.HandleFunc("/api/workflow/audit", s.handleWorkflowAudit)

	// Composition
	mux.HandleFunc("/api/compose/ticket", s.handleComposeTicket)
	mux.HandleFunc("/api/compose/handoff", s.handleComposeHandoff)
	mux.HandleFunc("/api/compose/reference-prompt", s.handleComposeReferencePrompt)

	// Insights
	mux.HandleFunc("/api/insights", s.handleInsights)

	// Projects
	mux.HandleFunc("/api/projects", s.handleProjects)

	// Auth
	mux.HandleFunc("/api/auth/login", s.handleLogin)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middleware
	handler := s.metricsMiddleware(mux)
	handler = s.loggingMiddleware(handler)
	handler = s.authMiddleware(handler)
	return otelhttp.NewHandler(handler, "memhub.api")
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.SetupRoutes(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}
	log.Printf("[API] Listening on %s", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Middleware

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf("[API] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// metricsMiddleware records request counts and latency.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status),
		).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, r.URL.Path,
		).Observe(time.Since(start).Seconds())
	})
}

// authMiddleware enforces bearer tokens on mutating endpoints when auth is
// enabled. Reads, health and metrics stay open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || !s.config.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodGet || r.URL.Path == "/api/auth/login" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.ExtractBearer(r.Header.Get("Authorization"))
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		if _, err := s.auth.ValidateToken(token); err != nil {
			s.respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON parses JSON request body
func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
