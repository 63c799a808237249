// Package httpserver binds the fixed middleware chain and route table of
// spec.md §4.12 over the generic resource dispatcher, a direct structural
// descendant of the teacher's internal/httpserver/server.go: same
// chi.Router composition, same middleware-chain-then-route-groups shape,
// same ListenAndServe/Shutdown pair.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/EnaiaInc/paper-tiger/internal/billing"
	"github.com/EnaiaInc/paper-tiger/internal/chaos"
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/config"
	"github.com/EnaiaInc/paper-tiger/internal/events"
	"github.com/EnaiaInc/paper-tiger/internal/idempotency"
	"github.com/EnaiaInc/paper-tiger/internal/logger"
	"github.com/EnaiaInc/paper-tiger/internal/metrics"
	"github.com/EnaiaInc/paper-tiger/internal/resource"
	"github.com/EnaiaInc/paper-tiger/internal/telemetry"
	"github.com/EnaiaInc/paper-tiger/internal/webhooks"
)

// handlers holds every collaborator a route needs, the same
// struct-of-dependencies shape as the teacher's internal/httpserver.handlers.
type handlers struct {
	cfg          *config.Config
	catalog      *resource.Catalog
	dispatcher   *resource.Dispatcher
	bus          *telemetry.Bus
	idempStore   *idempotency.Store
	registry     *webhooks.Registry
	pipeline     *webhooks.Pipeline
	materializer *events.Materializer
	chaosCoord   *chaos.Coordinator
	eventChaos   *chaos.EventChaos
	clock        *clock.Clock
	billing      *billing.Engine
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// Server wraps the configured router and net/http.Server.
type Server struct {
	handlers
	httpServer *http.Server
}

// Deps collects every collaborator New needs, avoiding an unwieldy
// positional constructor now that the dependency count has grown past
// what the teacher's server ever needed.
type Deps struct {
	Config       *config.Config
	Catalog      *resource.Catalog
	Dispatcher   *resource.Dispatcher
	Bus          *telemetry.Bus
	Idempotency  *idempotency.Store
	Webhooks     *webhooks.Registry
	Pipeline     *webhooks.Pipeline
	Materializer *events.Materializer
	Chaos        *chaos.Coordinator
	EventChaos   *chaos.EventChaos
	Clock        *clock.Clock
	Billing      *billing.Engine
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// New builds a Server wired to its collaborators and ready to ListenAndServe.
// cfg.Server.Port must already be resolved (see config.ResolvePort) before
// calling New.
func New(d Deps) *Server {
	h := handlers{
		cfg:          d.Config,
		catalog:      d.Catalog,
		dispatcher:   d.Dispatcher,
		bus:          d.Bus,
		idempStore:   d.Idempotency,
		registry:     d.Webhooks,
		pipeline:     d.Pipeline,
		materializer: d.Materializer,
		chaosCoord:   d.Chaos,
		eventChaos:   d.EventChaos,
		clock:        d.Clock,
		billing:      d.Billing,
		metrics:      d.Metrics,
		logger:       d.Logger,
	}

	router := chi.NewRouter()
	h.configureRouter(router)

	addr := fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port)
	return &Server{
		handlers: h,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  d.Config.Server.ReadTimeout.Duration,
			WriteTimeout: d.Config.Server.WriteTimeout.Duration,
			IdleTimeout:  d.Config.Server.IdleTimeout.Duration,
		},
	}
}

// configureRouter composes the fixed middleware chain of spec.md §4.12.
// CORS is nested OUTSIDE the auth filter even though spec.md numbers auth
// (step 2) before CORS (step 3): that ordering describes logical
// processing stages for an already-authenticated request, not literal
// middleware nesting. An unauthenticated OPTIONS preflight must still get
// its 200/empty-body short-circuit from go-chi/cors before the auth
// filter ever runs, or a browser could never complete a preflight against
// a protected route. See DESIGN.md.
func (h *handlers) configureRouter(r chi.Router) {
	r.Use(corsMiddleware(h.cfg))
	r.Use(securityHeadersMiddleware)
	r.Use(logger.Middleware(h.logger))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.authMiddleware())

	prefix := h.cfg.Server.RoutePrefix

	r.Route(prefix+"/v1", func(v1 chi.Router) {
		v1.Use(chimiddleware.Timeout(60 * time.Second))
		v1.Use(h.apiChaosMiddleware())
		for _, e := range h.catalog.Entries() {
			h.mountResource(v1, e)
		}
		h.mountCustomTransitions(v1)
	})

	r.Route(prefix+"/_config", func(admin chi.Router) {
		admin.Use(chimiddleware.Timeout(5 * time.Second))
		if h.cfg.Admin.RateLimitRequests > 0 {
			admin.Use(httprate.Limit(h.cfg.Admin.RateLimitRequests, h.cfg.Admin.RateLimitWindow.Duration))
		}
		admin.Post("/webhooks/{id}", h.handleRegisterWebhook)
		admin.Delete("/data", h.handleFlushData)
		admin.Post("/time/advance", h.handleAdvanceTime)
		admin.Handle("/metrics", adminMetricsAuth(h.cfg.Server.AdminMetricsAPIKey, promhttp.Handler()))
	})
}

// corsMiddleware implements spec.md §4.5's CORS filter via go-chi/cors,
// per SPEC_FULL.md §4.5's explicit citation of that library.
func corsMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	origins := cfg.Server.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           86400,
	}).Handler
}

// adminMetricsAuth gates the /metrics endpoint behind a shared key, the
// same pattern as the teacher's server.go adminMetricsAuth helper. An
// empty key disables the check (local/dev default).
func adminMetricsAuth(key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Metrics-Key") != key {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe binds and serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("httpserver.listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr reports the server's bound address, for tests that need to dial it.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler exposes the configured router directly, for tests that want to
// drive the full middleware chain through httptest.NewServer rather than
// binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
