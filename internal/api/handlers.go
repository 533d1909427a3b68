/**
 * @description
 * This file contains the HTTP handlers for the payments-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * Error translation is centralized here: the service and store layers return
 * sentinel errors, and handlers map them onto the HTTP taxonomy (400 for
 * validation, 403 for authenticity, 404 for missing references, 429 for
 * throttling, 503 for an unconfigured gateway, 500 otherwise).
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/myyard/payments-service/internal/app"
	"github.com/myyard/payments-service/internal/domain"
	"github.com/myyard/payments-service/internal/store"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service *app.Service
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

// townshipSearchResponse is the payload for the township registry endpoint.
type townshipSearchResponse struct {
	Total     int                     `json:"total"`
	Townships []domain.TownshipRecord `json:"townships"`
}

// notificationsResponse is the payload for the notifications read endpoint.
type notificationsResponse struct {
	Notifications []domain.InAppNotification `json:"notifications"`
	UnreadCount   int                        `json:"unread_count"`
}

// TownshipSearchHandler handles township registry lookups. A blank search
// returns the full registry.
func (h *PaymentHandlers) TownshipSearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")
	records := h.service.SearchTownships(query)
	h.writeJSON(w, http.StatusOK, townshipSearchResponse{
		Total:     len(records),
		Townships: records,
	})
}

// PropertiesByTownshipHandler resolves a free-text township name to canonical
// records and the properties listed in them.
func (h *PaymentHandlers) PropertiesByTownshipHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("township"))
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "township query parameter is required")
		return
	}

	result, err := h.service.ResolvePropertiesByTownship(r.Context(), name)
	if err != nil {
		log.Printf("level=error component=api endpoint=properties_by_township msg=\"resolution failed\" township=%q err=%v", name, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to resolve properties")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// InitiatePaymentHandler handles requests to start a gateway payment for a lease.
func (h *PaymentHandlers) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=initiate_payment outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.LeaseID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "lease_id is required")
		return
	}

	initiation, err := h.service.InitiatePayment(r.Context(), req)
	if err != nil {
		h.writePaymentInitiationError(w, req, err)
		return
	}
	h.writeJSON(w, http.StatusOK, initiation)
}

func (h *PaymentHandlers) writePaymentInitiationError(w http.ResponseWriter, req domain.InitiatePaymentRequest, err error) {
	switch {
	case errors.Is(err, app.ErrGatewayNotConfigured):
		h.writeError(w, http.StatusServiceUnavailable, "Payment gateway is not yet configured. Please try again later.")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts. Please wait a moment and try again.")
	case errors.Is(err, store.ErrLeaseNotFound):
		h.writeError(w, http.StatusNotFound, "Lease not found")
	case errors.Is(err, app.ErrInvalidPaymentType):
		h.writeError(w, http.StatusBadRequest, "Invalid payment type")
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Payment amount must be positive")
	default:
		log.Printf("level=error component=api endpoint=initiate_payment outcome=failed lease_id=%s err=%v", req.LeaseID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to initiate payment")
	}
}

// PaymentStatusHandler returns the most recent payment for a lease, optionally
// narrowed by payment type.
func (h *PaymentHandlers) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	leaseIDStr := r.URL.Query().Get("lease_id")
	leaseID, err := uuid.Parse(leaseIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid lease_id format")
		return
	}

	payment, err := h.service.PaymentStatus(r.Context(), leaseID, r.URL.Query().Get("type"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrLeaseNotFound):
			h.writeError(w, http.StatusNotFound, "Lease not found")
		case errors.Is(err, store.ErrPaymentNotFound):
			h.writeError(w, http.StatusNotFound, "No payment found for this lease")
		case errors.Is(err, app.ErrInvalidPaymentType):
			h.writeError(w, http.StatusBadRequest, "Invalid payment type")
		default:
			log.Printf("level=error component=api endpoint=payment_status outcome=failed lease_id=%s err=%v", leaseID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to fetch payment status")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// PaymentNotifyHandler handles the provider-originated webhook. It must return
// 200 for verified payloads including idempotent replays; any non-200 status
// causes the provider to redeliver.
func (h *PaymentHandlers) PaymentNotifyHandler(w http.ResponseWriter, r *http.Request) {
	var notification domain.PaymentNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		log.Printf("level=warn component=api endpoint=payment_notify outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.ProcessPaymentNotification(r.Context(), notification); err != nil {
		if errors.Is(err, app.ErrAuthenticityFailure) {
			log.Printf("level=warn component=api endpoint=payment_notify outcome=reject reason=authenticity reference=%s", notification.TransactionReference)
			h.writeError(w, http.StatusForbidden, "Notification verification failed")
			return
		}
		log.Printf("level=error component=api endpoint=payment_notify outcome=failed reference=%s err=%v", notification.TransactionReference, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to process notification")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PaymentHistoryHandler returns the read-side projection of a user's payments.
func (h *PaymentHandlers) PaymentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userIDStr := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user_id format")
		return
	}

	var filter domain.PaymentHistoryFilter
	if leaseIDStr := r.URL.Query().Get("lease_id"); leaseIDStr != "" {
		leaseID, err := uuid.Parse(leaseIDStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid lease_id format")
			return
		}
		filter.LeaseID = &leaseID
	}
	filter.PaymentType = r.URL.Query().Get("type")

	history := h.service.PaymentHistory(r.Context(), userID, r.URL.Query().Get("role"), filter)
	h.writeJSON(w, http.StatusOK, history)
}

// NotificationsHandler returns the caller's in-app notifications. Anonymous
// callers get the empty payload rather than an auth error; this endpoint is a
// best-effort read.
func (h *PaymentHandlers) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetSessionUserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusOK, notificationsResponse{
			Notifications: []domain.InAppNotification{},
			UnreadCount:   0,
		})
		return
	}

	items, unread := h.service.Notifications(r.Context(), userID)
	h.writeJSON(w, http.StatusOK, notificationsResponse{
		Notifications: items,
		UnreadCount:   unread,
	})
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
