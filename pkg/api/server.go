package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rankforge/rankforge/pkg/audits"
	"github.com/rankforge/rankforge/pkg/httputil"
	"github.com/rankforge/rankforge/pkg/middleware"
	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
	"github.com/rankforge/rankforge/pkg/quota"
	"github.com/rankforge/rankforge/pkg/usage"
)

// maxRequestBody bounds all request bodies accepted by the server
const maxRequestBody = 1 << 20

// EventHandler consumes a raw webhook delivery. Satisfied by
// billing.Reconciler.
type EventHandler interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

// Server is the public HTTP API
type Server struct {
	router      *mux.Router
	subs        quota.SubscriptionReader
	gate        *quota.Gate
	ledger      usage.Ledger
	auditStore  audits.Store
	events      EventHandler
	quotaChecks *middleware.QuotaMiddleware
	rateLimit   mux.MiddlewareFunc
	logger      *observability.Logger
	metrics     *observability.Metrics
	tracing     bool
}

// Option configures optional server behavior
type Option func(*Server)

// WithTracing wraps the router in OpenTelemetry HTTP instrumentation
func WithTracing() Option {
	return func(s *Server) {
		s.tracing = true
	}
}

// WithRateLimit applies a rate limiting middleware to account-scoped routes
func WithRateLimit(limiter mux.MiddlewareFunc) Option {
	return func(s *Server) {
		s.rateLimit = limiter
	}
}

// NewServer creates the API server and registers all routes
func NewServer(subs quota.SubscriptionReader, gate *quota.Gate, ledger usage.Ledger, auditStore audits.Store, events EventHandler, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		subs:        subs,
		gate:        gate,
		ledger:      ledger,
		auditStore:  auditStore,
		events:      events,
		quotaChecks: middleware.NewQuotaMiddleware(gate, logger),
		logger:      logger,
		metrics:     metrics,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(mux.MiddlewareFunc(httputil.MaxBytesMiddleware(maxRequestBody)))
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))

	// Webhook route sits outside account scoping; the provider
	// authenticates with a signature, not a path
	s.router.HandleFunc("/webhooks/billing", s.handleBillingWebhook).Methods("POST")

	// Account-scoped routes
	accounts := s.router.PathPrefix("/api/accounts/{account_id}").Subrouter()
	accounts.Use(middleware.AccountContextMiddleware)
	if s.rateLimit != nil {
		accounts.Use(s.rateLimit)
	}

	accounts.HandleFunc("/subscription", s.getSubscription).Methods("GET")
	accounts.HandleFunc("/quotas", s.getQuotas).Methods("GET")

	accounts.Handle("/audits", s.quotaChecks.EnforceQuota(plans.ResourceAudit)(http.HandlerFunc(s.createAuditRun))).Methods("POST")
	accounts.HandleFunc("/audits", s.listAuditRuns).Methods("GET")
	accounts.HandleFunc("/audits/{run_id}", s.getAuditRun).Methods("GET")

	accounts.Handle("/keyword-searches", s.quotaChecks.EnforceQuota(plans.ResourceKeywordSearch)(http.HandlerFunc(s.createKeywordSearch))).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.tracing {
		otelhttp.NewHandler(s.router, "rankforge-api").ServeHTTP(w, r)
		return
	}
	s.router.ServeHTTP(w, r)
}
