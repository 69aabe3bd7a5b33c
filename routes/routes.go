// Package routes assembles the HTTP router.
package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/finvera/invoicing-backend/app"
	"github.com/finvera/invoicing-backend/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	clientHandler := handlers.NewClientHandler(deps.Clients, deps.Users, deps.Logger)
	invoiceHandler := handlers.NewInvoiceHandler(deps.Invoices, deps.Clients, deps.Users, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.Users, deps.PolicyGate, deps.Logger)
	paymentHandler := handlers.NewPaymentHandler(deps.Invoices, deps.Settlements, deps.TxManager,
		deps.Calculator, deps.PolicyGate, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.AuditLogs, deps.Logger)

	// Health check endpoints
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// Payment gateway webhook: signature-verified, never JWT-authenticated
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(deps.SignatureMiddleware.VerifySignature)
		r.Post("/payment", paymentHandler.HandleWebhook)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Profile and account lifecycle
		r.Route("/profile", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", userHandler.HandleGetProfile)
			r.Put("/", userHandler.HandleUpdateProfile)
			r.Post("/password", userHandler.HandleChangePassword)
			r.Delete("/", userHandler.HandleDeleteAccount)
		})

		// KYC submission and admin review
		r.Route("/kyc", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/", userHandler.HandleSubmitKYC)
		})
		r.Route("/users", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole("admin"))
			r.Post("/{id}/kyc/review", userHandler.HandleReviewKYC)
		})

		// Client management
		r.Route("/clients", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", clientHandler.HandleList)
			r.Post("/", clientHandler.HandleCreate)
			r.Get("/{id}", clientHandler.HandleGet)
			r.Put("/{id}", clientHandler.HandleUpdate)
			r.Delete("/{id}", clientHandler.HandleDelete)
		})

		// Invoice management
		r.Route("/invoices", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", invoiceHandler.HandleList)
			r.Post("/", invoiceHandler.HandleCreate)
			r.Get("/{id}", invoiceHandler.HandleGet)
			r.Patch("/{id}/status", invoiceHandler.HandleUpdateStatus)
			r.Delete("/{id}", invoiceHandler.HandleDelete)
		})

		// Audit trail (require admin role)
		r.Route("/audit-logs", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole("admin"))
			r.Get("/", auditHandler.HandleList)
			r.Get("/{id}", auditHandler.HandleGet)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
