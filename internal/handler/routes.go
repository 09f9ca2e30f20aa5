package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/support-router/internal/middleware"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Sessions      *SessionHandler
	Conversations *ConversationHandler
	Review        *ReviewHandler
	Stream        *StreamHandler
	Webhook       *WebhookHandler
}

// RouterOptions configures the shared middleware.
type RouterOptions struct {
	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger
}

// NewRouter mounts every endpoint. End-user chat routes are public and rate
// limited per IP; the staff console requires a JWT with the staff scope.
func NewRouter(h Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(opts.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	if h.Webhook != nil {
		r.Get("/webhook/facebook", h.Webhook.Verify)
		r.Post("/webhook/facebook", h.Webhook.Receive)
	}

	r.Route("/api", func(r chi.Router) {
		// End-user chat
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow))

			r.Post("/sessions", h.Sessions.Create)
			r.Post("/messages", h.Sessions.SendMessage)
			r.Get("/sessions/{id}/history", h.Sessions.History)
			r.Post("/sessions/{id}/rate", h.Sessions.Rate)
			if h.Stream != nil {
				r.Get("/sessions/{id}/stream", h.Stream.Stream)
			}
		})

		// Staff console
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(opts.JWTSecret))
			r.Use(middleware.RequireScope(middleware.ScopeStaff))
			r.Use(middleware.AgentRateLimit(opts.RateLimitRequests, opts.RateLimitWindow))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.Conversations.List)
				r.Get("/escalated", h.Conversations.Escalated)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Conversations.Get)
					r.Post("/assign", h.Conversations.Assign)
					r.Post("/reply", h.Conversations.Reply)
					r.Post("/close", h.Conversations.Close)
					r.Post("/resolve", h.Conversations.Resolve)
				})
			})

			r.Get("/review", h.Review.List)
			r.Post("/review/{messageID}/label", h.Review.Label)
			r.Get("/stats", h.Conversations.Stats)
		})
	})

	return r
}
