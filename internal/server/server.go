// Package server implements the HTTP transport layer for the Cursor API
// gateway: the client-facing OpenAI/Anthropic dialect endpoints, the model
// listing endpoint, and the admin CRUD surface over tokens/proxies/logs/
// config (spec.md §6's External Interfaces table).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go.opentelemetry.io/otel/trace"

	"github.com/zhengwenj/cursor-api-sub001/internal/admission"
	"github.com/zhengwenj/cursor-api-sub001/internal/assembler"
	"github.com/zhengwenj/cursor-api-sub001/internal/circuitbreaker"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
	"github.com/zhengwenj/cursor-api-sub001/internal/modelregistry"
	"github.com/zhengwenj/cursor-api-sub001/internal/proxypool"
	"github.com/zhengwenj/cursor-api-sub001/internal/storage"
	"github.com/zhengwenj/cursor-api-sub001/internal/telemetry"
	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
	"github.com/zhengwenj/cursor-api-sub001/internal/upstream"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Deps holds every collaborator the HTTP layer needs. Fields documented
// "nil = ..." may be omitted by tests that only exercise a slice of the
// routes.
type Deps struct {
	Admitter  *admission.Admitter
	Assembler *assembler.Assembler
	Caller    *upstream.Caller
	Models    *modelregistry.Registry
	Tokens    *tokenstate.TokenManager
	Logs      *tokenstate.LogManager
	Proxies   *proxypool.Pool
	Breakers  *circuitbreaker.Registry
	TokenPool *cursortoken.Pool

	Store storage.Store // nil = no admin persistence (tests)

	Metrics        *telemetry.Metrics // nil = no Prometheus metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	Tracer         trace.Tracer       // nil = no distributed tracing
	ReadyCheck     ReadyChecker       // nil = always ready

	AdminToken    string // required for admin CRUD routes' own gate
	RoutePrefix   string // ROUTE_PREFIX, "" = mount at root
	RequestLogsOn bool
	DefaultTZ     string
	StartTime     time.Time // process start, for GET /health's uptime field
}

// New builds the chi router with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	s := &server{deps: deps}

	r := chi.NewRouter()
	r.Use(s.securityHeaders)
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if deps.Tracer != nil {
		r.Use(tracingMiddleware(deps.Tracer))
	}

	mount := func(fn func(chi.Router)) {
		if deps.RoutePrefix != "" {
			r.Route(deps.RoutePrefix, fn)
		} else {
			fn(r)
		}
	}

	mount(func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz)
		if deps.MetricsHandler != nil {
			r.Handle("/metrics", deps.MetricsHandler)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/v1/chat/completions", s.handleChatCompletions)
			r.Post("/v1/messages", s.handleMessages)
			r.Get("/v1/models", s.handleListModels)
			r.Get("/build-key", s.handleBuildKey)
			r.Post("/build-key", s.handleBuildKey)
		})

		if deps.Store != nil || deps.Tokens != nil {
			r.Route("/tokens", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListTokens)
				r.Post("/", s.handleAddToken)
				r.Delete("/{id}", s.handleRemoveToken)
				r.Put("/{id}/alias", s.handleSetTokenAlias)
			})
			r.Route("/proxies", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListProxies)
				r.Put("/", s.handleReplaceProxies)
			})
			r.Route("/logs", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListLogs)
			})
			r.Route("/config", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleGetConfig)
				r.Put("/", s.handleSetConfig)
			})
		}
	})

	return r
}

type server struct {
	deps Deps
}
