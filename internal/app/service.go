/**
 * @description
 * This file contains the core business logic for the payments-service. The `Service`
 * struct orchestrates payment initiation against the hosted gateway, webhook
 * verification and the payment state machine, township/property resolution, and
 * the read-side history and notification projections.
 *
 * Key features:
 * - Payment initiation is all-or-nothing: credentials, lease existence, payment
 *   type, and amount are validated in order before any row is written.
 * - Webhook processing is strictly ordered: authenticity check, lookup by
 *   reference, idempotency gate, then a compare-and-set terminal transition.
 *   Side effects (events, in-app notifications) fire only on the CAS win.
 * - History and notification reads degrade to empty results on store failure;
 *   the failure is logged, never surfaced to the caller.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For payment ids and idempotency references.
 * - internal/domain, internal/store, internal/township: Domain models, data
 *   access, and the township registry.
 * - pkg/ozow, pkg/rabbitmq: Gateway client and event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myyard/payments-service/internal/domain"
	"github.com/myyard/payments-service/internal/store"
	"github.com/myyard/payments-service/internal/township"
	"github.com/myyard/payments-service/pkg/ozow"
	"github.com/myyard/payments-service/pkg/rabbitmq"
)

// Custom errors for the service layer, matched by handlers via errors.Is.
var (
	ErrGatewayNotConfigured  = errors.New("payment gateway is not yet configured")
	ErrInvalidPaymentType    = errors.New("invalid payment type")
	ErrInvalidAmount         = errors.New("payment amount must be positive")
	ErrAuthenticityFailure   = errors.New("notification hash verification failed")
	ErrUnknownProviderStatus = errors.New("unknown provider status")
	ErrRateLimited           = errors.New("too many payment initiation attempts")
)

const (
	historyLimit      = 50
	notificationLimit = 50
)

// InitiationRateLimiter throttles payment initiation per user. Implementations
// may be distributed (Redis) or absent; a nil limiter disables throttling.
type InitiationRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for payments and township resolution.
type Service struct {
	repo          store.Repository
	registry      *township.Registry
	gateway       *ozow.Client
	eventProducer rabbitmq.Publisher

	rateLimiter          InitiationRateLimiter
	initiationRatePerMin int
	pendingExpiryWindow  time.Duration
}

// NewService creates a new payments service instance.
func NewService(repo store.Repository, registry *township.Registry, gateway *ozow.Client, producer rabbitmq.Publisher, pendingExpiryWindow time.Duration) *Service {
	if pendingExpiryWindow <= 0 {
		pendingExpiryWindow = 24 * time.Hour
	}
	return &Service{
		repo:                repo,
		registry:            registry,
		gateway:             gateway,
		eventProducer:       producer,
		pendingExpiryWindow: pendingExpiryWindow,
	}
}

// SetInitiationRateLimiter wires an optional per-user initiation rate limit.
func (s *Service) SetInitiationRateLimiter(limiter InitiationRateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.initiationRatePerMin = perMinute
}

// SearchTownships returns registry records matching the query, or the full
// registry in load order when the query is blank.
func (s *Service) SearchTownships(query string) []domain.TownshipRecord {
	return s.registry.Search(query)
}

// ResolvePropertiesByTownship resolves a free-text township name to canonical
// records and the union of properties listed in them. MatchedTownships is
// inclusive: records with zero matching properties are still returned.
func (s *Service) ResolvePropertiesByTownship(ctx context.Context, name string) (*domain.TownshipProperties, error) {
	matched := s.registry.Search(name)

	names := make([]string, 0, len(matched))
	for _, rec := range matched {
		names = append(names, rec.Name)
	}

	properties := []domain.PropertyListing{}
	if len(names) > 0 {
		found, err := s.repo.FindPropertiesByTownshipNames(ctx, names)
		if err != nil {
			return nil, fmt.Errorf("failed to query properties by township: %w", err)
		}
		// Union without duplicates: several matched records can carry the same
		// canonical name across cities.
		seen := make(map[uuid.UUID]bool, len(found))
		for _, p := range found {
			if !seen[p.ID] {
				seen[p.ID] = true
				properties = append(properties, p)
			}
		}
	}

	if matched == nil {
		matched = []domain.TownshipRecord{}
	}
	return &domain.TownshipProperties{
		Properties:       properties,
		Total:            len(properties),
		Township:         strings.TrimSpace(name),
		MatchedTownships: matched,
	}, nil
}

// InitiatePayment validates the request and creates a pending payment bound to
// a hosted-gateway redirect. Preconditions are checked in order: gateway
// configured, lease exists, payment type recognized, amount positive. Nothing
// is written unless every check passes.
func (s *Service) InitiatePayment(ctx context.Context, req domain.InitiatePaymentRequest) (*domain.PaymentInitiation, error) {
	if s.gateway == nil || !s.gateway.Config.Configured() {
		return nil, ErrGatewayNotConfigured
	}

	if s.rateLimiter != nil && s.initiationRatePerMin > 0 {
		count, _, err := s.rateLimiter.ConsumeRateLimit(ctx, "payment_initiation", req.UserID.String(), s.initiationRatePerMin, time.Minute)
		if err != nil {
			log.Printf("level=warn component=app op=initiate_payment msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > s.initiationRatePerMin {
			return nil, ErrRateLimited
		}
	}

	lease, err := s.repo.FindLeaseByID(ctx, req.LeaseID)
	if err != nil {
		return nil, err
	}

	if !domain.ValidPaymentType(req.PaymentType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentType, req.PaymentType)
	}

	amount := req.Amount
	if amount == 0 {
		amount = deriveAmount(lease, req.PaymentType)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	payment := &domain.PaymentTransaction{
		ID:          uuid.New(),
		LeaseID:     lease.ID,
		TenantID:    req.UserID,
		LandlordID:  lease.LandlordID,
		PaymentType: req.PaymentType,
		Amount:      amount,
		Status:      domain.PaymentStatusPending,
		Reference:   uuid.New().String(),
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	bankReference := fmt.Sprintf("%s-%s", bankReferencePrefix(req.PaymentType), payment.Reference[:8])
	gatewayReq := s.gateway.BuildPaymentRequest(payment.Reference, bankReference, req.UserID.String(), amount)

	log.Printf("level=info component=app op=initiate_payment outcome=accepted payment_id=%s lease_id=%s type=%s amount=%d",
		payment.ID, lease.ID, req.PaymentType, amount)

	return &domain.PaymentInitiation{
		RedirectURL: s.gateway.HostedPaymentURL(gatewayReq),
		Reference:   payment.Reference,
		PaymentID:   payment.ID.String(),
		Amount:      amount,
	}, nil
}

// PaymentStatus returns the most recent payment for a lease, optionally
// narrowed by payment type. The lease must exist.
func (s *Service) PaymentStatus(ctx context.Context, leaseID uuid.UUID, paymentType string) (*domain.PaymentTransaction, error) {
	if _, err := s.repo.FindLeaseByID(ctx, leaseID); err != nil {
		return nil, err
	}
	if paymentType != "" && !domain.ValidPaymentType(paymentType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentType, paymentType)
	}
	return s.repo.FindLatestPaymentForLease(ctx, leaseID, paymentType)
}

// ProcessPaymentNotification drives the payment state machine from a provider
// webhook. Steps are strictly ordered: authenticity check, lookup by
// reference, idempotency gate, terminal transition. Replays of terminal
// payments succeed without re-applying any effect.
func (s *Service) ProcessPaymentNotification(ctx context.Context, n domain.PaymentNotification) error {
	if !s.gateway.VerifyNotificationHash(n.SiteCode, n.TransactionID, n.TransactionReference, n.Amount, n.Status, n.Hash) {
		// Do not reveal which part of the signature mismatched.
		return ErrAuthenticityFailure
	}

	status, ok := mapProviderStatus(n.Status)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProviderStatus, n.Status)
	}

	payment, err := s.repo.FindPaymentByReference(ctx, n.TransactionReference)
	if err != nil {
		// A verified callback for an untracked reference is a server-side data
		// error; never fabricate a payment from webhook data alone.
		return fmt.Errorf("failed to locate payment for reference %q: %w", n.TransactionReference, err)
	}

	if domain.TerminalPaymentStatus(payment.Status) {
		log.Printf("level=info component=app op=process_notification outcome=replay payment_id=%s status=%s", payment.ID, payment.Status)
		return nil
	}

	applied, err := s.repo.ApplyPaymentTerminalStatus(ctx, payment.ID, n.TransactionID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to apply payment transition: %w", err)
	}
	if !applied {
		// A concurrent delivery won the compare-and-set; this one degenerates
		// to the idempotent no-op.
		log.Printf("level=info component=app op=process_notification outcome=replay payment_id=%s", payment.ID)
		return nil
	}

	log.Printf("level=info component=app op=process_notification outcome=applied payment_id=%s status=%s", payment.ID, status)
	s.emitPaymentSideEffects(ctx, payment, status)
	return nil
}

// ExpireStalePendingPayments fails pending payments older than the configured
// window. Invoked by the cron scheduler.
func (s *Service) ExpireStalePendingPayments(ctx context.Context) {
	expired, err := s.repo.ExpireStalePendingPayments(ctx, s.pendingExpiryWindow)
	if err != nil {
		log.Printf("level=error component=app op=expire_stale_payments msg=\"expiry sweep failed\" err=%v", err)
		return
	}
	if expired > 0 {
		log.Printf("level=info component=app op=expire_stale_payments expired=%d window=%s", expired, s.pendingExpiryWindow)
	}
}

// PaymentHistory returns the read-side projection of a user's payments.
// Tenants see their own payments; landlords see payments against their
// leases. A store failure degrades to an empty result with the failure
// logged; the summary is attached only when the query fully succeeded.
func (s *Service) PaymentHistory(ctx context.Context, userID uuid.UUID, role string, filter domain.PaymentHistoryFilter) domain.PaymentHistory {
	var payments []domain.PaymentTransaction
	var err error
	if role == "landlord" {
		payments, err = s.repo.FindPaymentsByLandlord(ctx, userID, filter, historyLimit)
	} else {
		payments, err = s.repo.FindPaymentsByTenant(ctx, userID, filter, historyLimit)
	}
	if err != nil {
		log.Printf("level=warn component=app op=payment_history msg=\"history query failed; degrading to empty\" user_id=%s role=%s err=%v", userID, role, err)
		return domain.PaymentHistory{Payments: []domain.PaymentTransaction{}, Total: 0}
	}
	if payments == nil {
		payments = []domain.PaymentTransaction{}
	}

	summary := &domain.PaymentHistorySummary{
		CountByStatus: map[string]int{},
	}
	for _, p := range payments {
		summary.CountByStatus[p.Status]++
		switch p.Status {
		case domain.PaymentStatusComplete:
			summary.TotalPaid += p.Amount
		case domain.PaymentStatusPending:
			summary.TotalPending += p.Amount
		}
	}

	return domain.PaymentHistory{Payments: payments, Total: len(payments), Summary: summary}
}

// Notifications returns a user's in-app notifications and unread count,
// degrading to an empty payload on store failure.
func (s *Service) Notifications(ctx context.Context, userID uuid.UUID) ([]domain.InAppNotification, int) {
	items, err := s.repo.ListInAppNotifications(ctx, userID, notificationLimit)
	if err != nil {
		log.Printf("level=warn component=app op=notifications msg=\"notification query failed; degrading to empty\" user_id=%s err=%v", userID, err)
		return []domain.InAppNotification{}, 0
	}
	if items == nil {
		items = []domain.InAppNotification{}
	}
	unread, err := s.repo.CountUnreadInAppNotifications(ctx, userID)
	if err != nil {
		log.Printf("level=warn component=app op=notifications msg=\"unread count failed; reporting zero\" user_id=%s err=%v", userID, err)
		unread = 0
	}
	return items, unread
}

// emitPaymentSideEffects publishes the terminal-status event and writes in-app
// notifications. Runs only on the CAS win, so effects fire at most once per
// payment; failures here are logged, not surfaced, since the transition has
// already committed.
func (s *Service) emitPaymentSideEffects(ctx context.Context, payment *domain.PaymentTransaction, status string) {
	if s.eventProducer != nil {
		event := domain.PaymentEvent{
			PaymentID:   payment.ID,
			LeaseID:     payment.LeaseID,
			TenantID:    payment.TenantID,
			LandlordID:  payment.LandlordID,
			PaymentType: payment.PaymentType,
			Amount:      payment.Amount,
			Status:      status,
			Timestamp:   time.Now().UTC(),
		}
		routingKey := "payment." + statusRoutingSuffix(status)
		if err := s.eventProducer.Publish(ctx, "myyard.events", routingKey, event); err != nil {
			log.Printf("level=warn component=app op=process_notification msg=\"event publish failed\" payment_id=%s routing_key=%s err=%v", payment.ID, routingKey, err)
		}
	}

	title, body := notificationContent(payment, status)
	for _, recipient := range []uuid.UUID{payment.TenantID, payment.LandlordID} {
		item := domain.InAppNotification{
			ID:       uuid.New(),
			UserID:   recipient,
			Category: "payment",
			Title:    title,
			Body:     body,
		}
		if err := s.repo.CreateInAppNotification(ctx, item); err != nil {
			log.Printf("level=warn component=app op=process_notification msg=\"in-app notification write failed\" payment_id=%s user_id=%s err=%v", payment.ID, recipient, err)
		}
	}
}

// deriveAmount computes the default charge for a payment type from the lease,
// in cents. Move-in bundles deposit, first rent, utilities, and the admin fee.
func deriveAmount(lease *domain.Lease, paymentType string) int64 {
	switch paymentType {
	case domain.PaymentTypeMoveIn:
		return lease.DepositAmount + lease.RentAmount + lease.UtilitiesAmount + ozow.CalculateAdminFee(lease.RentAmount)
	case domain.PaymentTypeRent:
		return lease.RentAmount + lease.UtilitiesAmount
	case domain.PaymentTypeDeposit:
		return lease.DepositAmount
	default:
		return 0
	}
}

func bankReferencePrefix(paymentType string) string {
	switch paymentType {
	case domain.PaymentTypeMoveIn:
		return "MOVEIN"
	case domain.PaymentTypeRent:
		return "RENT"
	case domain.PaymentTypeDeposit:
		return "DEPOSIT"
	default:
		return "PAYMENT"
	}
}

// mapProviderStatus maps the gateway's status string to the terminal payment
// status. Unknown statuses are rejected rather than guessed at.
func mapProviderStatus(providerStatus string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "complete":
		return domain.PaymentStatusComplete, true
	case "cancelled", "abandoned":
		return domain.PaymentStatusCancelled, true
	case "error", "failed":
		return domain.PaymentStatusFailed, true
	}
	return "", false
}

func statusRoutingSuffix(status string) string {
	switch status {
	case domain.PaymentStatusComplete:
		return "completed"
	case domain.PaymentStatusCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

func notificationContent(payment *domain.PaymentTransaction, status string) (string, string) {
	amountRand := float64(payment.Amount) / 100
	switch status {
	case domain.PaymentStatusComplete:
		return "Payment received", fmt.Sprintf("A %s payment of R%.2f was completed.", payment.PaymentType, amountRand)
	case domain.PaymentStatusCancelled:
		return "Payment cancelled", fmt.Sprintf("A %s payment of R%.2f was cancelled.", payment.PaymentType, amountRand)
	default:
		return "Payment failed", fmt.Sprintf("A %s payment of R%.2f failed.", payment.PaymentType, amountRand)
	}
}
