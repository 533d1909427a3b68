/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It uses the `pgx` driver and connection pool to execute SQL queries against the
 * database, handling all data persistence for the payments-service.
 *
 * Key features:
 * - Implements all data access methods defined in the Repository interface.
 * - The terminal payment transition is a compare-and-set guarded by the current
 *   `pending` status, executed with its move-in side effects inside a single
 *   database transaction so two concurrent webhook deliveries cannot both win.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver and connection pool.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/myyard/payments-service/internal/domain"
)

// Custom errors for the store layer, allowing the service layer to handle
// specific data-related failures gracefully.
var (
	ErrLeaseNotFound   = errors.New("lease not found")
	ErrPaymentNotFound = errors.New("payment not found")
)

// PostgresRepository is the pgx-backed implementation of the Repository interface.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindLeaseByID retrieves a lease by its primary key.
func (r *PostgresRepository) FindLeaseByID(ctx context.Context, leaseID uuid.UUID) (*domain.Lease, error) {
	query := `SELECT id, property_id, tenant_id, landlord_id, rent_amount, deposit_amount, utilities_amount, is_active, created_at
	          FROM leases WHERE id = $1`
	var lease domain.Lease
	err := r.db.QueryRow(ctx, query, leaseID).Scan(
		&lease.ID, &lease.PropertyID, &lease.TenantID, &lease.LandlordID,
		&lease.RentAmount, &lease.DepositAmount, &lease.UtilitiesAmount,
		&lease.IsActive, &lease.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeaseNotFound
		}
		return nil, err
	}
	return &lease, nil
}

// FindPropertiesByTownshipNames returns available property listings whose
// township name equals (case-insensitively) any of the given canonical names,
// newest first.
func (r *PostgresRepository) FindPropertiesByTownshipNames(ctx context.Context, names []string) ([]domain.PropertyListing, error) {
	if len(names) == 0 {
		return []domain.PropertyListing{}, nil
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}

	query := `SELECT id, title, property_type, township_name, rent_amount, bedrooms, bathrooms, address, status, created_at
	          FROM properties
	          WHERE LOWER(township_name) = ANY($1) AND status = 'available'
	          ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, lowered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var properties []domain.PropertyListing
	for rows.Next() {
		var p domain.PropertyListing
		if err := rows.Scan(
			&p.ID, &p.Title, &p.PropertyType, &p.TownshipName, &p.RentAmount,
			&p.Bedrooms, &p.Bathrooms, &p.Address, &p.Status, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// CreatePayment inserts a new payment row in pending state.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.PaymentTransaction) error {
	query := `INSERT INTO payments (id, lease_id, tenant_id, landlord_id, payment_type, amount, status, reference, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	          RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		p.ID, p.LeaseID, p.TenantID, p.LandlordID, p.PaymentType, p.Amount, p.Status, p.Reference,
	).Scan(&p.CreatedAt)
}

// FindPaymentByReference retrieves a payment by its idempotency reference.
func (r *PostgresRepository) FindPaymentByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error) {
	query := `SELECT id, transaction_id, lease_id, tenant_id, landlord_id, payment_type, amount, status, reference, created_at, verified_at
	          FROM payments WHERE reference = $1`
	return r.scanPayment(r.db.QueryRow(ctx, query, reference))
}

// FindLatestPaymentForLease returns the most recent payment for a lease,
// optionally narrowed to one payment type.
func (r *PostgresRepository) FindLatestPaymentForLease(ctx context.Context, leaseID uuid.UUID, paymentType string) (*domain.PaymentTransaction, error) {
	query := `SELECT id, transaction_id, lease_id, tenant_id, landlord_id, payment_type, amount, status, reference, created_at, verified_at
	          FROM payments WHERE lease_id = $1 AND ($2 = '' OR payment_type = $2)
	          ORDER BY created_at DESC LIMIT 1`
	return r.scanPayment(r.db.QueryRow(ctx, query, leaseID, paymentType))
}

// ApplyPaymentTerminalStatus performs the terminal transition as a
// compare-and-set on the current pending status. Move-in side effects run in
// the same transaction; a replay (payment no longer pending) returns
// (false, nil) with nothing written.
func (r *PostgresRepository) ApplyPaymentTerminalStatus(ctx context.Context, paymentID uuid.UUID, providerTransactionID, status string, verifiedAt time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var leaseID uuid.UUID
	var paymentType string
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status = $2, transaction_id = $3, verified_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING lease_id, payment_type`,
		paymentID, status, providerTransactionID, verifiedAt,
	).Scan(&leaseID, &paymentType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race or already terminal: the idempotency no-op.
			return false, nil
		}
		return false, err
	}

	// A completed move-in payment activates the lease and takes the property
	// off the market.
	if status == domain.PaymentStatusComplete && paymentType == domain.PaymentTypeMoveIn {
		if _, err := tx.Exec(ctx, `UPDATE leases SET is_active = TRUE WHERE id = $1`, leaseID); err != nil {
			return false, fmt.Errorf("failed to activate lease: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE properties SET status = 'occupied'
			WHERE id = (SELECT property_id FROM leases WHERE id = $1)`, leaseID); err != nil {
			return false, fmt.Errorf("failed to mark property occupied: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireStalePendingPayments fails pending payments older than the given
// window. A pending row with no provider-side counterpart must not linger
// indefinitely.
func (r *PostgresRepository) ExpireStalePendingPayments(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `UPDATE payments SET status = 'failed', verified_at = NOW()
	          WHERE status = 'pending' AND created_at < NOW() - $1::interval`
	tag, err := r.db.Exec(ctx, query, fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindPaymentsByTenant returns a tenant's payments, newest first.
func (r *PostgresRepository) FindPaymentsByTenant(ctx context.Context, tenantID uuid.UUID, filter domain.PaymentHistoryFilter, limit int) ([]domain.PaymentTransaction, error) {
	return r.findPayments(ctx, "tenant_id", tenantID, filter, limit)
}

// FindPaymentsByLandlord returns payments against a landlord's leases, newest first.
func (r *PostgresRepository) FindPaymentsByLandlord(ctx context.Context, landlordID uuid.UUID, filter domain.PaymentHistoryFilter, limit int) ([]domain.PaymentTransaction, error) {
	return r.findPayments(ctx, "landlord_id", landlordID, filter, limit)
}

func (r *PostgresRepository) findPayments(ctx context.Context, ownerColumn string, ownerID uuid.UUID, filter domain.PaymentHistoryFilter, limit int) ([]domain.PaymentTransaction, error) {
	query := `SELECT id, transaction_id, lease_id, tenant_id, landlord_id, payment_type, amount, status, reference, created_at, verified_at
	          FROM payments
	          WHERE ` + ownerColumn + ` = $1
	            AND ($2::uuid IS NULL OR lease_id = $2)
	            AND ($3 = '' OR payment_type = $3)
	          ORDER BY created_at DESC
	          LIMIT $4`
	rows, err := r.db.Query(ctx, query, ownerID, filter.LeaseID, filter.PaymentType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.PaymentTransaction
	for rows.Next() {
		var p domain.PaymentTransaction
		if err := rows.Scan(
			&p.ID, &p.TransactionID, &p.LeaseID, &p.TenantID, &p.LandlordID,
			&p.PaymentType, &p.Amount, &p.Status, &p.Reference, &p.CreatedAt, &p.VerifiedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CreateInAppNotification inserts a notification row for later delivery reads.
func (r *PostgresRepository) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error {
	query := `INSERT INTO in_app_notifications (id, user_id, category, title, body, read, created_at)
	          VALUES ($1, $2, $3, $4, $5, FALSE, NOW())`
	_, err := r.db.Exec(ctx, query, item.ID, item.UserID, item.Category, item.Title, item.Body)
	return err
}

// ListInAppNotifications returns a user's notifications, newest first.
func (r *PostgresRepository) ListInAppNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]domain.InAppNotification, error) {
	query := `SELECT id, user_id, category, title, body, read, created_at
	          FROM in_app_notifications WHERE user_id = $1
	          ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.InAppNotification
	for rows.Next() {
		var n domain.InAppNotification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// CountUnreadInAppNotifications returns the user's unread notification count.
func (r *PostgresRepository) CountUnreadInAppNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM in_app_notifications WHERE user_id = $1 AND read = FALSE`, userID,
	).Scan(&count)
	return count, err
}

func (r *PostgresRepository) scanPayment(row pgx.Row) (*domain.PaymentTransaction, error) {
	var p domain.PaymentTransaction
	err := row.Scan(
		&p.ID, &p.TransactionID, &p.LeaseID, &p.TenantID, &p.LandlordID,
		&p.PaymentType, &p.Amount, &p.Status, &p.Reference, &p.CreatedAt, &p.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}
