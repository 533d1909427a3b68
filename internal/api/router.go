/**
 * @description
 * This file sets up the HTTP router for the payments-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for identity and CORS.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PaymentRoutes creates and returns a new router for the payments service.
// sessionSecret signs the optional bearer tokens used by the notifications
// read endpoint; an empty secret leaves every request anonymous.
func PaymentRoutes(h *PaymentHandlers, sessionSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Township registry and property resolution.
	r.Get("/townships", h.TownshipSearchHandler)
	r.Get("/properties/by-township", h.PropertiesByTownshipHandler)

	// Payment initiation, status, and the provider webhook. The webhook is
	// authenticated by its hash, not by a bearer token.
	r.Post("/payments/ozow", h.InitiatePaymentHandler)
	r.Get("/payments/ozow", h.PaymentStatusHandler)
	r.Post("/payments/notify", h.PaymentNotifyHandler)
	r.Get("/payments/history", h.PaymentHistoryHandler)

	// Notifications carry optional identity; anonymous callers get the empty
	// payload rather than 401.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(sessionSecret))
		r.Get("/notifications", h.NotificationsHandler)
	})

	return r
}
