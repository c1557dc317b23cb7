package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/marketrow/stallgate/pkg/audit"
	"github.com/marketrow/stallgate/pkg/auth"
	"github.com/marketrow/stallgate/pkg/contextkeys"
	"github.com/marketrow/stallgate/pkg/httputil"
	"github.com/marketrow/stallgate/pkg/middleware"
	"github.com/marketrow/stallgate/pkg/observability"
	"github.com/marketrow/stallgate/pkg/store"
)

// Server wires the HTTP surface: routing, middleware and handlers
type Server struct {
	router  *mux.Router
	logger  *observability.Logger
	metrics *observability.Metrics
	audit   audit.Logger
}

// ServerConfig carries the server's collaborators
type ServerConfig struct {
	Guarded  *store.GuardedStore
	Tokens   *auth.TokenManager
	Resolver *auth.Resolver
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// Audit receives token lifecycle events; nil discards them
	Audit audit.Logger

	// RateLimiter is optional; nil disables throttling
	RateLimiter func(http.Handler) http.Handler
}

// NewServer builds the router with the full middleware chain
func NewServer(cfg ServerConfig) *Server {
	auditLogger := cfg.Audit
	if auditLogger == nil {
		auditLogger = audit.NewNoopLogger()
	}

	s := &Server{
		router:  mux.NewRouter(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		audit:   auditLogger,
	}

	authMW := middleware.NewAuthMiddleware(cfg.Resolver, false)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestMiddleware)
	api.Use(httputil.RecoveryMiddleware(cfg.Logger))
	api.Use(authMW.Handler)
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter)
	}

	// Token routes must register before the collection wildcard
	NewTokenHandlers(cfg.Tokens).RegisterRoutes(api)
	NewDocumentHandlers(cfg.Guarded).RegisterRoutes(api)

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestMiddleware assigns a request ID, logs the request and records
// HTTP metrics.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		ctx = observability.WithRequestID(ctx, requestID)
		ctx = observability.WithLogger(ctx, s.logger)
		ctx = audit.WithLogger(ctx, s.audit)

		rw := httputil.WrapResponseWriter(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		duration := time.Since(start)
		route := routeTemplate(r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, route, rw.StatusCode, duration)
		}
		s.logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rw.StatusCode,
			"duration":   duration.String(),
		}).Info("request handled")
	})
}

// routeTemplate returns the mux route pattern so metrics label cardinality
// stays bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}
