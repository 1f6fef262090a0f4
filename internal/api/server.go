package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/vaidashi/gallery-api/internal/metrics"
	"github.com/vaidashi/gallery-api/pkg/circuitbreaker"
	"github.com/vaidashi/gallery-api/pkg/logger"
	"github.com/vaidashi/gallery-api/pkg/middleware"
)

// Dependencies are the collaborators the HTTP layer delegates to
type Dependencies struct {
	Orders        OrderManager
	Commissions   CommissionManager
	Payments      PaymentManager
	Settings      SettingsManager
	Auth          Authenticator
	Tokens        TokenParser
	Artworks      ArtworkCatalog
	Notifications NotificationInbox
	DeadLetters   DeadLetterQueue
	Database      Pinger
	Breakers      []*circuitbreaker.CircuitBreaker
	Metrics       *metrics.Metrics
	// RateLimiter guards the public write endpoints; nil disables it
	RateLimiter *middleware.RateLimiterMiddleware
}

// Server is the gallery HTTP API
type Server struct {
	deps       Dependencies
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server
}

// NewServer creates a new API server listening on port
func NewServer(port int, deps Dependencies, logger logger.Logger) *Server {
	r := mux.NewRouter()

	s := &Server{
		deps:   deps,
		logger: logger,
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.Middleware)
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.Use(s.identityMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	// Auth
	api.Handle("/auth/register", s.limited(s.registerHandler)).Methods(http.MethodPost)
	api.Handle("/auth/login", s.limited(s.loginHandler)).Methods(http.MethodPost)

	// Catalog and settings
	api.HandleFunc("/artworks", s.listArtworksHandler).Methods(http.MethodGet)
	api.HandleFunc("/artworks/{id}", s.getArtworkHandler).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.getSettingsHandler).Methods(http.MethodGet)
	api.Handle("/settings", s.requireAdmin(s.updateSettingsHandler)).Methods(http.MethodPut)

	// Orders
	api.Handle("/orders", s.limited(s.createOrderHandler)).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.Handle("/orders/{id}/status", s.requireAdmin(s.updateOrderStatusHandler)).Methods(http.MethodPatch)

	// Commissions
	api.Handle("/commissions", s.limited(s.createCommissionHandler)).Methods(http.MethodPost)
	api.Handle("/commissions/my-commissions", s.requireIdentity(s.myCommissionsHandler)).Methods(http.MethodGet)
	api.Handle("/commissions", s.requireAdmin(s.listCommissionsHandler)).Methods(http.MethodGet)
	api.Handle("/commissions/{id}", s.requireAdmin(s.getCommissionHandler)).Methods(http.MethodGet)
	api.Handle("/commissions/{id}/status", s.requireAdmin(s.updateCommissionStatusHandler)).Methods(http.MethodPatch)
	api.Handle("/commissions/{id}/progress", s.requireAdmin(s.addProgressImageHandler)).Methods(http.MethodPost)

	// Payments
	api.Handle("/payments/create-intent", s.limited(s.createPaymentIntentHandler)).Methods(http.MethodPost)
	api.Handle("/payments/commission-payment", s.limited(s.createCommissionPaymentHandler)).Methods(http.MethodPost)
	api.HandleFunc("/payments/webhook", s.paymentWebhookHandler).Methods(http.MethodPost)

	// Admin notifications
	api.Handle("/notifications", s.requireAdmin(s.listNotificationsHandler)).Methods(http.MethodGet)
	api.Handle("/notifications/read-all", s.requireAdmin(s.markAllNotificationsReadHandler)).Methods(http.MethodPost)
	api.Handle("/notifications/{id}/read", s.requireAdmin(s.markNotificationReadHandler)).Methods(http.MethodPatch)

	// Admin API for monitoring and management
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Handle("/dead-letters", s.requireAdmin(s.getDeadLettersHandler)).Methods(http.MethodGet)
	admin.Handle("/dead-letters/{id}/retry", s.requireAdmin(s.retryDeadLetterHandler)).Methods(http.MethodPost)
	admin.Handle("/dead-letters/{id}/discard", s.requireAdmin(s.discardDeadLetterHandler)).Methods(http.MethodPost)
	admin.Handle("/circuit-breakers", s.requireAdmin(s.getCircuitBreakerStatusHandler)).Methods(http.MethodGet)
	admin.Handle("/circuit-breakers/{name}/reset", s.requireAdmin(s.resetCircuitBreakerHandler)).Methods(http.MethodPost)
}
