package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/skylarbarrera/whim/internal/filelock"
	"github.com/skylarbarrera/whim/internal/queue"
	"github.com/skylarbarrera/whim/internal/specgen"
	"github.com/skylarbarrera/whim/internal/store"
	"github.com/skylarbarrera/whim/internal/workerreg"
)

// ServerConfig holds configuration for the HTTP server and router.
// Mirrors the teacher's internal/infrastructure/http.ServerConfig.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

func (cfg *ServerConfig) applyDefaults() {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = 1 << 20
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
}

// Handler wires every HTTP endpoint to the managers that implement them:
// the Queue Manager, Worker Registry, File-Lock Service, Spec-Generation
// Manager, and the raw Store for read-only projections the other
// managers don't already expose.
type Handler struct {
	queue    *queue.Manager
	registry *workerreg.Registry
	locks    *filelock.Service
	specgen  *specgen.Manager
	store    store.Store
}

// NewHandler constructs the HTTP Surface's router.
func NewHandler(q *queue.Manager, reg *workerreg.Registry, locks *filelock.Service, sg *specgen.Manager, s store.Store) http.Handler {
	h := &Handler{queue: q, registry: reg, locks: locks, specgen: sg, store: s}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(otelhttp.NewMiddleware("whim-orchestrator"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			slog.ErrorContext(r.Context(), "failed to write health check response", "error", err)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/work", h.submitWork)
		r.Get("/work/{id}", h.getWork)
		r.Post("/work/{id}/cancel", h.cancelWork)

		r.Post("/worker/{workerId}/heartbeat", h.heartbeat)
		r.Post("/worker/{workerId}/lock", h.lock)
		r.Post("/worker/{workerId}/unlock", h.unlock)
		r.Post("/worker/{workerId}/complete", h.complete)
		r.Post("/worker/{workerId}/complete-verification", h.completeVerification)
		r.Post("/worker/{workerId}/fail", h.fail)
		r.Post("/worker/{workerId}/stuck", h.stuck)
		r.Post("/workers/{workerId}/kill", h.kill)

		r.Get("/queue", h.getQueue)
		r.Get("/queue/dlq", h.getDeadLetterQueue)
		r.Get("/workers", h.listWorkers)
		r.Get("/status", h.getStatus)
		r.Get("/metrics", h.getMetrics)
		r.Get("/learnings", h.getLearnings)
		r.Get("/reviews", h.getReviews)
	})

	return r
}

// Server wraps net/http.Server with the Handler's router, mirroring the
// teacher's APIServer.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a ready-to-start Server.
func NewServer(handler http.Handler, cfg ServerConfig) *Server {
	cfg.applyDefaults()
	return &Server{httpServer: &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           MaxBodyBytes(cfg.MaxBodyBytes)(handler),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}}
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains outstanding requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
