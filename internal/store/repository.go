/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payments-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/myyard/payments-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Lease and property read methods. Leases and properties are owned by the
	// listing platform; this service never creates or deletes them.
	FindLeaseByID(ctx context.Context, leaseID uuid.UUID) (*domain.Lease, error)
	FindPropertiesByTownshipNames(ctx context.Context, names []string) ([]domain.PropertyListing, error)

	// Payment methods
	CreatePayment(ctx context.Context, p *domain.PaymentTransaction) error
	FindPaymentByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error)
	FindLatestPaymentForLease(ctx context.Context, leaseID uuid.UUID, paymentType string) (*domain.PaymentTransaction, error)
	// ApplyPaymentTerminalStatus atomically transitions a pending payment to the
	// given terminal status, stamping verified_at and the provider transaction
	// id, and applies move-in side effects (lease activation, property
	// occupied) in the same database transaction. It returns false without
	// error when the payment was no longer pending, which is the idempotent
	// replay signal.
	ApplyPaymentTerminalStatus(ctx context.Context, paymentID uuid.UUID, providerTransactionID, status string, verifiedAt time.Time) (bool, error)
	ExpireStalePendingPayments(ctx context.Context, olderThan time.Duration) (int64, error)

	// Payment history methods
	FindPaymentsByTenant(ctx context.Context, tenantID uuid.UUID, filter domain.PaymentHistoryFilter, limit int) ([]domain.PaymentTransaction, error)
	FindPaymentsByLandlord(ctx context.Context, landlordID uuid.UUID, filter domain.PaymentHistoryFilter, limit int) ([]domain.PaymentTransaction, error)

	// In-app notification methods
	CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error
	ListInAppNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]domain.InAppNotification, error)
	CountUnreadInAppNotifications(ctx context.Context, userID uuid.UUID) (int, error)
}
