/**
 * @description
 * This file defines the core domain models for the payments-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with financial data.
 * - Leases and properties are owned by the listing platform; this service only
 *   reads them to validate payment initiation and to apply move-in side effects.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recognized payment types.
const (
	PaymentTypeMoveIn  = "move_in"
	PaymentTypeRent    = "rent"
	PaymentTypeDeposit = "deposit"
	PaymentTypeOther   = "other"
)

// Payment statuses. A payment starts pending and reaches a terminal status at
// most once; terminal rows are never overwritten.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusComplete  = "complete"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// ValidPaymentType reports whether t is one of the recognized payment types.
func ValidPaymentType(t string) bool {
	switch t {
	case PaymentTypeMoveIn, PaymentTypeRent, PaymentTypeDeposit, PaymentTypeOther:
		return true
	}
	return false
}

// TerminalPaymentStatus reports whether s is a status from which no further
// transition is permitted.
func TerminalPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusComplete, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// PaymentTransaction is the central ledger record for a gateway payment.
// This struct maps directly to the `payments` table in the database.
type PaymentTransaction struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID *string    `json:"transaction_id,omitempty"` // provider-assigned once the webhook arrives
	LeaseID       uuid.UUID  `json:"lease_id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	LandlordID    uuid.UUID  `json:"landlord_id"`
	PaymentType   string     `json:"payment_type"`
	Amount        int64      `json:"amount"` // in cents
	Status        string     `json:"status"`
	Reference     string     `json:"reference"` // idempotency token binding the initiation to its webhook
	CreatedAt     time.Time  `json:"created_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// Lease is a read-only view of a lease owned by the listing platform. The
// payments-service only reads existence and ownership to validate initiation
// and derive amounts.
type Lease struct {
	ID              uuid.UUID `json:"id"`
	PropertyID      uuid.UUID `json:"property_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	LandlordID      uuid.UUID `json:"landlord_id"`
	RentAmount      int64     `json:"rent_amount"`      // in cents
	DepositAmount   int64     `json:"deposit_amount"`   // in cents
	UtilitiesAmount int64     `json:"utilities_amount"` // in cents
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// PropertyListing is a read-only view of a property listing. TownshipName is
// the join key against the township registry.
type PropertyListing struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	PropertyType string    `json:"property_type"`
	TownshipName string    `json:"township_name"`
	RentAmount   int64     `json:"rent_amount"` // in cents
	Bedrooms     int       `json:"bedrooms"`
	Bathrooms    int       `json:"bathrooms"`
	Address      string    `json:"address"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// InitiatePaymentRequest is the DTO for incoming payment initiation API requests.
type InitiatePaymentRequest struct {
	PaymentType string    `json:"payment_type"`
	LeaseID     uuid.UUID `json:"lease_id"`
	UserID      uuid.UUID `json:"user_id"`
	Amount      int64     `json:"amount,omitempty"` // in cents; derived from the lease when zero
}

// PaymentInitiation is returned to the caller after a payment row has been
// created; it carries everything needed to redirect to the hosted provider.
type PaymentInitiation struct {
	RedirectURL string `json:"redirect_url"`
	Reference   string `json:"reference"`
	PaymentID   string `json:"payment_id"`
	Amount      int64  `json:"amount"`
}

// PaymentNotification models the webhook payload posted by the hosted payment
// provider after the customer completes, cancels, or fails the payment.
type PaymentNotification struct {
	SiteCode             string `json:"SiteCode"`
	TransactionID        string `json:"TransactionId"`
	TransactionReference string `json:"TransactionReference"`
	Amount               string `json:"Amount"`
	Status               string `json:"Status"`
	StatusMessage        string `json:"StatusMessage,omitempty"`
	Hash                 string `json:"Hash"`
}

// PaymentHistorySummary aggregates a user's payment history. It is only
// attached to a history response when the underlying query succeeded in full.
type PaymentHistorySummary struct {
	TotalPaid     int64          `json:"total_paid"`    // in cents
	TotalPending  int64          `json:"total_pending"` // in cents
	CountByStatus map[string]int `json:"count_by_status"`
}

// PaymentHistory is the read-side projection of a user's payments.
type PaymentHistory struct {
	Payments []PaymentTransaction   `json:"payments"`
	Total    int                    `json:"total"`
	Summary  *PaymentHistorySummary `json:"summary,omitempty"`
}

// PaymentHistoryFilter narrows a history query.
type PaymentHistoryFilter struct {
	LeaseID     *uuid.UUID
	PaymentType string
}

// PaymentEvent is the payload published to RabbitMQ after a payment reaches a
// terminal status, consumed by the notification delivery pipeline.
type PaymentEvent struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	LeaseID     uuid.UUID `json:"lease_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	LandlordID  uuid.UUID `json:"landlord_id"`
	PaymentType string    `json:"payment_type"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// InAppNotification is a stored notification surfaced by the notifications
// read endpoint.
type InAppNotification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
