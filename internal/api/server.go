package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/onesmallpr/questboard/internal/catalog"
	"github.com/onesmallpr/questboard/internal/config"
	"github.com/onesmallpr/questboard/internal/metrics"
	"github.com/onesmallpr/questboard/internal/models"
	"github.com/onesmallpr/questboard/internal/services"
	"github.com/onesmallpr/questboard/internal/storage"
)

// QuestCatalog is the catalog surface used by the handlers
type QuestCatalog interface {
	List(ctx context.Context) catalog.Listing
	Refresh(ctx context.Context) (catalog.RefreshResult, error)
	Get(id string) (*models.Quest, error)
	Snapshot() models.Snapshot
}

// Generator produces quest trials and protocols
type Generator interface {
	Quiz(ctx context.Context, quest *models.Quest, skillLevel string) []models.QuizItem
	Protocol(ctx context.Context, quest *models.Quest, skillLevel string) models.Protocol
}

// SnapshotLister lists persisted catalog snapshots
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]storage.SnapshotInfo, error)
}

// CachePurger drops cached generations
type CachePurger interface {
	Purge(ctx context.Context, pattern string) (int, error)
}

// Server represents the HTTP API server
type Server struct {
	config    config.ServerConfig
	router    *chi.Mux
	catalog   QuestCatalog
	generator Generator
	admin     *AdminGuard
	hub       *Hub
	registry  *services.Registry
	metrics   *metrics.Metrics
	snapshots SnapshotLister
	cache     CachePurger
}

// Option configures optional server collaborators
type Option func(*Server)

// WithRegistry enables dependency checks on /ready
func WithRegistry(r *services.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithMetrics enables /metrics and request instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHub sets the stream hub; a private hub is created otherwise
func WithHub(h *Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithSnapshots enables the snapshot history endpoint
func WithSnapshots(l SnapshotLister) Option {
	return func(s *Server) {
		s.snapshots = l
	}
}

// WithCachePurger enables the cache purge endpoint
func WithCachePurger(p CachePurger) Option {
	return func(s *Server) {
		s.cache = p
	}
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	admin config.AdminConfig,
	cat QuestCatalog,
	gen Generator,
	opts ...Option,
) *Server {
	s := &Server{
		config:    cfg,
		catalog:   cat,
		generator: gen,
		admin:     NewAdminGuard(admin.APIKey),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.config.RequestTimeout <= 0 {
		s.config.RequestTimeout = 60 * time.Second
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the stream hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Probes (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/quests", func(r chi.Router) {
			// long-lived, must not be cut by the request timeout
			r.Get("/stream", s.handleStream)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.config.RequestTimeout))

				r.Get("/", s.handleListQuests)
				r.With(s.admin.Require).Post("/refresh", s.handleRefresh)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetQuest)
					r.Post("/assessment", s.handleAssessment)
					r.Post("/protocol", s.handleProtocol)
					r.Get("/protocol/download", s.handleProtocolDownload)
					r.Post("/accept", s.handleAccept)
				})
			})
		})

		// Operator endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.admin.Require)
			r.Use(middleware.Timeout(s.config.RequestTimeout))

			r.Get("/snapshots", s.handleListSnapshots)
			r.Delete("/cache", s.handlePurgeCache)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog and records request metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			elapsed := time.Since(start)
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)

			if s.metrics != nil {
				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				s.metrics.ObserveHTTP(route, r.Method, ww.Status(), elapsed)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}
