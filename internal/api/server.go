package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/vaidashi/support-portal/internal/config"
	"github.com/vaidashi/support-portal/internal/service"
	"github.com/vaidashi/support-portal/pkg/circuitbreaker"
	"github.com/vaidashi/support-portal/pkg/logger"
	"github.com/vaidashi/support-portal/pkg/middleware"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	orders     *service.OrderService
	breaker    *circuitbreaker.CircuitBreaker
	limiter    *middleware.RateLimiter
}

// Option customizes a Server
type Option func(*Server)

// WithBreaker reports the broker circuit on the health endpoint
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *Server) { s.breaker = cb }
}

// WithRateLimiter limits requests per client
func WithRateLimiter(rl *middleware.RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// NewServer creates a new API server serving orders
func NewServer(cfg *config.Config, orders *service.OrderService, logger logger.Logger, opts ...Option) *Server {
	r := mux.NewRouter()

	server := &Server{
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		config: cfg,
		orders: orders,
	}

	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()

	server.handler = r
	if len(cfg.CORSOrigins) > 0 {
		server.handler = corsHandler(cfg.CORSOrigins)(r)
	}
	server.httpServer.Handler = server.handler

	return server
}

// corsHandler answers preflight requests and tags responses for the
// allowed browser origins
func corsHandler(origins []string) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With"}),
		handlers.MaxAge(600),
	)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint
	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	if s.limiter != nil {
		api.Use(s.skipHealth(s.limiter.Middleware))
	}

	// Fixed paths are registered before /orders/{id}
	api.HandleFunc("/orders/counts", s.getCountsHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/bulk-archive", s.bulkArchiveHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/bulk-delete", s.bulkDeleteHandler).Methods(http.MethodPost)

	api.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.updateOrderHandler).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/orders/{id}", s.deleteOrderHandler).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/archive", s.archiveOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/reminder", s.setReminderHandler).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/stages/{stage}", s.setStageHandler).Methods(http.MethodPut, http.MethodPatch)

	api.HandleFunc("/reminders", s.getRemindersHandler).Methods(http.MethodGet)
	api.HandleFunc("/analytics", s.getAnalyticsHandler).Methods(http.MethodGet)
	api.HandleFunc("/pipeline", s.getPipelineHandler).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// skipHealth applies mw to everything except the health check
func (s *Server) skipHealth(mw mux.MiddlewareFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v1/health" {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := middleware.NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
