package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/newslens-app/newslens/internal/analyzer"
	"github.com/newslens-app/newslens/internal/archive"
	"github.com/newslens-app/newslens/internal/auth"
	"github.com/newslens-app/newslens/internal/email"
	"github.com/newslens-app/newslens/internal/entitlement"
	"github.com/newslens-app/newslens/internal/handler"
	"github.com/newslens-app/newslens/internal/middleware"
	"github.com/newslens-app/newslens/internal/payment"
	"github.com/newslens-app/newslens/internal/store"
	"github.com/newslens-app/newslens/internal/webhook"
)

type Server struct {
	db           *sql.DB
	verifier     *auth.Verifier
	webhookH     *handler.WebhookHandler
	billingH     *handler.BillingHandler
	entitlementH *handler.EntitlementHandler
	auditH       *handler.AuditHandler
	leaseStore   *store.LeaseStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

// Config carries the server's collaborators that main constructs from the
// environment. DeadLetter and Email may be nil when unconfigured.
type Config struct {
	PortalReturnURL string
	Payments        *payment.Client
	Analyzer        *analyzer.Service
	Email           *email.Client
	DeadLetter      *archive.DeadLetter
}

func New(db *sql.DB, verifier *auth.Verifier, cfg Config, logger *slog.Logger) *Server {
	entitlementStore := store.NewEntitlementStore(db)
	eventStore := store.NewEventStore(db)
	leaseStore := store.NewLeaseStore(db)
	auditStore := store.NewAuditStore(db)

	resolver := entitlement.NewResolver(entitlementStore, logger.With("component", "resolver"))
	counter := entitlement.NewCounter(entitlementStore, resolver, logger.With("component", "usage"))

	// Interface fields must stay nil-valued when the collaborator is absent,
	// so the processor's nil checks work.
	var archiver webhook.Archiver
	if cfg.DeadLetter != nil {
		archiver = cfg.DeadLetter
	}
	var notifier webhook.Notifier
	if cfg.Email != nil && cfg.Email.Configured() {
		notifier = cfg.Email
	}

	processor := webhook.NewProcessor(entitlementStore, eventStore, cfg.Payments,
		archiver, notifier, logger.With("component", "webhook"))

	return &Server{
		db:       db,
		verifier: verifier,
		webhookH: handler.NewWebhookHandler(cfg.Payments, processor, logger.With("component", "webhook_handler")),
		billingH: handler.NewBillingHandler(cfg.Payments, entitlementStore, leaseStore, resolver,
			cfg.PortalReturnURL, logger.With("component", "billing")),
		entitlementH: handler.NewEntitlementHandler(resolver, logger.With("component", "entitlement")),
		auditH:       handler.NewAuditHandler(counter, cfg.Analyzer, auditStore, logger.With("component", "audit")),
		leaseStore:   leaseStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// LeaseStore returns the lease store for cleanup tasks.
func (s *Server) LeaseStore() *store.LeaseStore {
	return s.leaseStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /webhooks/stripe", s.rateLimitedHandler(s.webhookH.HandleStripe, 120))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /api/checkout", s.billingH.Checkout)
	protectedMux.HandleFunc("POST /api/billing-portal", s.billingH.Portal)
	protectedMux.HandleFunc("GET /api/entitlement", s.entitlementH.Get)
	protectedMux.HandleFunc("POST /api/subscription/cancel", s.billingH.Cancel)
	protectedMux.HandleFunc("POST /api/subscription/reactivate", s.billingH.Reactivate)
	protectedMux.HandleFunc("POST /api/subscription/sync", s.billingH.Sync)
	protectedMux.HandleFunc("POST /api/audits", s.rateLimitedHandler(s.auditH.Create, 30))
	protectedMux.HandleFunc("GET /api/audits", s.auditH.List)

	authMiddleware := auth.RequireAuth(s.verifier, s.logger.With("component", "auth"))
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc, perMinute int) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, perMinute, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
