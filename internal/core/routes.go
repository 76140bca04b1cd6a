package core

import (
	"net/http"
	"time"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// The webhook handler acknowledges before any slow work happens, so this
// only has to cover signature verification and JSON parsing plus headroom.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Stripe-Signature",
}

// MountRoutes defines the top-level routing hierarchy.
// It registers the global middleware chain, the domain handler routes
// appended by the entry point, and the health check.
func (s *Server) MountRoutes() {
	// Global middleware registration (strict order matters):
	//  1. Recoverer       - outermost, catches all panics.
	//  2. RequestID       - correlation ID for tracing.
	//  3. RequestLogger   - structured logging (redacted headers).
	//  4. ContextTimeout  - soft deadline on the handler chain.
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// HandleHealth is a liveness probe. It carries no dependency checks: the
// service holds no durable state and its upstreams are probed lazily.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	Success(w, r, map[string]string{
		"status":      "ok",
		"environment": s.Config.Environment,
	})
}
