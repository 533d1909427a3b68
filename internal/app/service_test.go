package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/myyard/payments-service/internal/domain"
	"github.com/myyard/payments-service/internal/store"
	"github.com/myyard/payments-service/internal/township"
	"github.com/myyard/payments-service/pkg/ozow"
)

type serviceRepoStub struct {
	store.Repository

	lease   *domain.Lease
	payment *domain.PaymentTransaction

	leaseLookupCalled bool
	createdPayments   []*domain.PaymentTransaction

	applyCalled  bool
	applyStatus  string
	applyTxnID   string
	applyResult  bool
	applyErr     error
	historyErr   error
	historyRows  []domain.PaymentTransaction
	notifWrites  []domain.InAppNotification
	notifListErr error
}

func (s *serviceRepoStub) FindLeaseByID(ctx context.Context, leaseID uuid.UUID) (*domain.Lease, error) {
	s.leaseLookupCalled = true
	if s.lease == nil || s.lease.ID != leaseID {
		return nil, store.ErrLeaseNotFound
	}
	return s.lease, nil
}

func (s *serviceRepoStub) CreatePayment(ctx context.Context, p *domain.PaymentTransaction) error {
	p.CreatedAt = time.Now()
	s.createdPayments = append(s.createdPayments, p)
	return nil
}

func (s *serviceRepoStub) FindPaymentByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error) {
	if s.payment == nil || s.payment.Reference != reference {
		return nil, store.ErrPaymentNotFound
	}
	return s.payment, nil
}

func (s *serviceRepoStub) ApplyPaymentTerminalStatus(ctx context.Context, paymentID uuid.UUID, providerTransactionID, status string, verifiedAt time.Time) (bool, error) {
	s.applyCalled = true
	s.applyStatus = status
	s.applyTxnID = providerTransactionID
	return s.applyResult, s.applyErr
}

func (s *serviceRepoStub) FindPaymentsByTenant(ctx context.Context, tenantID uuid.UUID, filter domain.PaymentHistoryFilter, limit int) ([]domain.PaymentTransaction, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.historyRows, nil
}

func (s *serviceRepoStub) FindPaymentsByLandlord(ctx context.Context, landlordID uuid.UUID, filter domain.PaymentHistoryFilter, limit int) ([]domain.PaymentTransaction, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.historyRows, nil
}

func (s *serviceRepoStub) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error {
	s.notifWrites = append(s.notifWrites, item)
	return nil
}

func (s *serviceRepoStub) ListInAppNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]domain.InAppNotification, error) {
	if s.notifListErr != nil {
		return nil, s.notifListErr
	}
	return []domain.InAppNotification{}, nil
}

func (s *serviceRepoStub) CountUnreadInAppNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	return 0, nil
}

type stubPublisher struct {
	published []string // routing keys
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, routingKey)
	return nil
}

func (p *stubPublisher) Close() {}

func configuredGateway() *ozow.Client {
	return ozow.NewClient(ozow.Config{
		SiteCode:   "TSTSTE0001",
		PrivateKey: "215114531AFF7134A94C88CEEA48E",
		APIKey:     "EB5758F2C3B4DF3FF4F2669D5FF5B",
		RequestURL: "https://stagingapi.ozow.com/PostPaymentRequest",
		AppBaseURL: "http://localhost:3000",
		IsTest:     true,
	})
}

func newTestService(t *testing.T, repo *serviceRepoStub, gateway *ozow.Client, producer *stubPublisher) *Service {
	t.Helper()
	registry, err := township.NewRegistry()
	if err != nil {
		t.Fatalf("failed to load township registry: %v", err)
	}
	if producer != nil {
		return NewService(repo, registry, gateway, producer, 24*time.Hour)
	}
	return NewService(repo, registry, gateway, nil, 24*time.Hour)
}

func TestInitiatePayment_UnconfiguredGatewayCreatesNothing(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := newTestService(t, repo, ozow.NewClient(ozow.Config{}), nil)

	_, err := svc.InitiatePayment(context.Background(), domain.InitiatePaymentRequest{
		PaymentType: domain.PaymentTypeRent,
		LeaseID:     uuid.New(),
		UserID:      uuid.New(),
	})
	if !errors.Is(err, ErrGatewayNotConfigured) {
		t.Fatalf("expected ErrGatewayNotConfigured, got %v", err)
	}
	if repo.leaseLookupCalled {
		t.Fatal("expected no lease lookup before gateway configuration check")
	}
	if len(repo.createdPayments) != 0 {
		t.Fatal("expected no payment row for unconfigured gateway")
	}
}

func TestInitiatePayment_UnknownLeaseCreatesNothing(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := newTestService(t, repo, configuredGateway(), nil)

	_, err := svc.InitiatePayment(context.Background(), domain.InitiatePaymentRequest{
		PaymentType: domain.PaymentTypeRent,
		LeaseID:     uuid.New(),
		UserID:      uuid.New(),
	})
	if !errors.Is(err, store.ErrLeaseNotFound) {
		t.Fatalf("expected ErrLeaseNotFound, got %v", err)
	}
	if len(repo.createdPayments) != 0 {
		t.Fatal("expected no payment row for unknown lease")
	}
}

func TestInitiatePayment_InvalidTypeRejected(t *testing.T) {
	leaseID := uuid.New()
	repo := &serviceRepoStub{lease: &domain.Lease{ID: leaseID, RentAmount: 500000}}
	svc := newTestService(t, repo, configuredGateway(), nil)

	_, err := svc.InitiatePayment(context.Background(), domain.InitiatePaymentRequest{
		PaymentType: "bribe",
		LeaseID:     leaseID,
		UserID:      uuid.New(),
	})
	if !errors.Is(err, ErrInvalidPaymentType) {
		t.Fatalf("expected ErrInvalidPaymentType, got %v", err)
	}
	if len(repo.createdPayments) != 0 {
		t.Fatal("expected no payment row for invalid payment type")
	}
}

func TestInitiatePayment_DerivesMoveInAmount(t *testing.T) {
	leaseID := uuid.New()
	repo := &serviceRepoStub{lease: &domain.Lease{
		ID:              leaseID,
		LandlordID:      uuid.New(),
		RentAmount:      500000,
		DepositAmount:   500000,
		UtilitiesAmount: 50000,
	}}
	svc := newTestService(t, repo, configuredGateway(), nil)

	initiation, err := svc.InitiatePayment(context.Background(), domain.InitiatePaymentRequest{
		PaymentType: domain.PaymentTypeMoveIn,
		LeaseID:     leaseID,
		UserID:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("expected initiation to succeed, got %v", err)
	}

	// deposit + rent + utilities + capped admin fee (15% of R5000 exceeds R375)
	wantAmount := int64(500000 + 500000 + 50000 + 37500)
	if initiation.Amount != wantAmount {
		t.Fatalf("expected derived move-in amount %d, got %d", wantAmount, initiation.Amount)
	}
	if len(repo.createdPayments) != 1 {
		t.Fatalf("expected exactly one payment row, got %d", len(repo.createdPayments))
	}
	created := repo.createdPayments[0]
	if created.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %q", created.Status)
	}
	if created.Amount != wantAmount {
		t.Fatalf("expected stored amount %d, got %d", wantAmount, created.Amount)
	}
	if initiation.Reference != created.Reference {
		t.Fatal("expected initiation reference to match the stored payment reference")
	}
	if !strings.Contains(initiation.RedirectURL, "HashCheck=") {
		t.Fatal("expected redirect URL to carry the request signature")
	}
}

func TestInitiatePayment_RateLimitedBeforeLeaseLookup(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := newTestService(t, repo, configuredGateway(), nil)
	svc.SetInitiationRateLimiter(rateLimiterFunc(func(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
		return limit + 1, 30, nil
	}), 5)

	_, err := svc.InitiatePayment(context.Background(), domain.InitiatePaymentRequest{
		PaymentType: domain.PaymentTypeRent,
		LeaseID:     uuid.New(),
		UserID:      uuid.New(),
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if repo.leaseLookupCalled {
		t.Fatal("expected rate limit to reject before any lease lookup")
	}
}

type rateLimiterFunc func(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error)

func (f rateLimiterFunc) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return f(ctx, scope, subject, limit, window)
}

func validNotification(gateway *ozow.Client, reference, status string) domain.PaymentNotification {
	n := domain.PaymentNotification{
		SiteCode:             gateway.Config.SiteCode,
		TransactionID:        "ozow-txn-001",
		TransactionReference: reference,
		Amount:               "5500.00",
		Status:               status,
	}
	n.Hash = gateway.NotificationHash(n.SiteCode, n.TransactionID, n.TransactionReference, n.Amount, n.Status)
	return n
}

func TestProcessPaymentNotification_BadHashLeavesPaymentUntouched(t *testing.T) {
	gateway := configuredGateway()
	payment := &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: uuid.New().String(),
		Status:    domain.PaymentStatusPending,
	}
	repo := &serviceRepoStub{payment: payment}
	svc := newTestService(t, repo, gateway, nil)

	n := validNotification(gateway, payment.Reference, "Complete")
	n.Hash = strings.Repeat("0", 128)

	err := svc.ProcessPaymentNotification(context.Background(), n)
	if !errors.Is(err, ErrAuthenticityFailure) {
		t.Fatalf("expected ErrAuthenticityFailure, got %v", err)
	}
	if repo.applyCalled {
		t.Fatal("expected no state transition for unverified notification")
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected payment to stay pending, got %q", payment.Status)
	}
}

func TestProcessPaymentNotification_AppliesTerminalTransition(t *testing.T) {
	gateway := configuredGateway()
	payment := &domain.PaymentTransaction{
		ID:         uuid.New(),
		Reference:  uuid.New().String(),
		TenantID:   uuid.New(),
		LandlordID: uuid.New(),
		Status:     domain.PaymentStatusPending,
		Amount:     550000,
	}
	repo := &serviceRepoStub{payment: payment, applyResult: true}
	producer := &stubPublisher{}
	svc := newTestService(t, repo, gateway, producer)

	n := validNotification(gateway, payment.Reference, "Complete")
	if err := svc.ProcessPaymentNotification(context.Background(), n); err != nil {
		t.Fatalf("expected notification to apply, got %v", err)
	}
	if !repo.applyCalled {
		t.Fatal("expected terminal transition to be applied")
	}
	if repo.applyStatus != domain.PaymentStatusComplete {
		t.Fatalf("expected complete status, got %q", repo.applyStatus)
	}
	if repo.applyTxnID != "ozow-txn-001" {
		t.Fatalf("expected provider transaction id to be recorded, got %q", repo.applyTxnID)
	}
	if len(producer.published) != 1 || producer.published[0] != "payment.completed" {
		t.Fatalf("expected one payment.completed event, got %v", producer.published)
	}
	// Both tenant and landlord get an in-app notification.
	if len(repo.notifWrites) != 2 {
		t.Fatalf("expected 2 in-app notifications, got %d", len(repo.notifWrites))
	}
}

func TestProcessPaymentNotification_ReplayIsIdempotent(t *testing.T) {
	gateway := configuredGateway()
	payment := &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: uuid.New().String(),
		Status:    domain.PaymentStatusComplete,
	}
	repo := &serviceRepoStub{payment: payment}
	producer := &stubPublisher{}
	svc := newTestService(t, repo, gateway, producer)

	n := validNotification(gateway, payment.Reference, "Complete")
	if err := svc.ProcessPaymentNotification(context.Background(), n); err != nil {
		t.Fatalf("expected replay to succeed, got %v", err)
	}
	if repo.applyCalled {
		t.Fatal("expected no transition attempt for a terminal payment")
	}
	if len(producer.published) != 0 {
		t.Fatalf("expected no duplicate events on replay, got %v", producer.published)
	}
	if len(repo.notifWrites) != 0 {
		t.Fatalf("expected no duplicate notifications on replay, got %d", len(repo.notifWrites))
	}
}

func TestProcessPaymentNotification_LostRaceIsIdempotent(t *testing.T) {
	gateway := configuredGateway()
	payment := &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: uuid.New().String(),
		Status:    domain.PaymentStatusPending,
	}
	// applyResult false: a concurrent delivery already won the compare-and-set.
	repo := &serviceRepoStub{payment: payment, applyResult: false}
	producer := &stubPublisher{}
	svc := newTestService(t, repo, gateway, producer)

	n := validNotification(gateway, payment.Reference, "Complete")
	if err := svc.ProcessPaymentNotification(context.Background(), n); err != nil {
		t.Fatalf("expected lost race to degrade to success, got %v", err)
	}
	if len(producer.published) != 0 {
		t.Fatalf("expected no events from the losing delivery, got %v", producer.published)
	}
	if len(repo.notifWrites) != 0 {
		t.Fatalf("expected no notifications from the losing delivery, got %d", len(repo.notifWrites))
	}
}

func TestProcessPaymentNotification_UnknownReferenceFails(t *testing.T) {
	gateway := configuredGateway()
	repo := &serviceRepoStub{}
	svc := newTestService(t, repo, gateway, nil)

	n := validNotification(gateway, uuid.New().String(), "Complete")
	err := svc.ProcessPaymentNotification(context.Background(), n)
	if err == nil {
		t.Fatal("expected error for untracked reference")
	}
	if !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("expected wrapped ErrPaymentNotFound, got %v", err)
	}
}

func TestProcessPaymentNotification_UnknownStatusRejected(t *testing.T) {
	gateway := configuredGateway()
	payment := &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: uuid.New().String(),
		Status:    domain.PaymentStatusPending,
	}
	repo := &serviceRepoStub{payment: payment}
	svc := newTestService(t, repo, gateway, nil)

	n := validNotification(gateway, payment.Reference, "PendingInvestigation")
	err := svc.ProcessPaymentNotification(context.Background(), n)
	if !errors.Is(err, ErrUnknownProviderStatus) {
		t.Fatalf("expected ErrUnknownProviderStatus, got %v", err)
	}
	if repo.applyCalled {
		t.Fatal("expected no transition for an unknown provider status")
	}
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		ok       bool
	}{
		{"Complete", domain.PaymentStatusComplete, true},
		{"complete", domain.PaymentStatusComplete, true},
		{"Cancelled", domain.PaymentStatusCancelled, true},
		{"Abandoned", domain.PaymentStatusCancelled, true},
		{"Error", domain.PaymentStatusFailed, true},
		{"Failed", domain.PaymentStatusFailed, true},
		{" complete ", domain.PaymentStatusComplete, true},
		{"Mystery", "", false},
	}
	for _, tt := range tests {
		got, ok := mapProviderStatus(tt.provider)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("mapProviderStatus(%q) = (%q, %v), want (%q, %v)", tt.provider, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPaymentHistory_DegradesToEmptyOnStoreFailure(t *testing.T) {
	repo := &serviceRepoStub{historyErr: errors.New("connection refused")}
	svc := newTestService(t, repo, configuredGateway(), nil)

	history := svc.PaymentHistory(context.Background(), uuid.New(), "tenant", domain.PaymentHistoryFilter{})
	if history.Total != 0 || len(history.Payments) != 0 {
		t.Fatalf("expected empty degraded history, got total=%d", history.Total)
	}
	if history.Summary != nil {
		t.Fatal("expected no summary when the underlying query failed")
	}
}

func TestPaymentHistory_SummarizesByStatus(t *testing.T) {
	repo := &serviceRepoStub{historyRows: []domain.PaymentTransaction{
		{Status: domain.PaymentStatusComplete, Amount: 550000},
		{Status: domain.PaymentStatusComplete, Amount: 550000},
		{Status: domain.PaymentStatusPending, Amount: 500000},
		{Status: domain.PaymentStatusFailed, Amount: 550000},
	}}
	svc := newTestService(t, repo, configuredGateway(), nil)

	history := svc.PaymentHistory(context.Background(), uuid.New(), "tenant", domain.PaymentHistoryFilter{})
	if history.Total != 4 {
		t.Fatalf("expected 4 payments, got %d", history.Total)
	}
	if history.Summary == nil {
		t.Fatal("expected summary for a successful query")
	}
	if history.Summary.TotalPaid != 1100000 {
		t.Fatalf("expected total paid 1100000, got %d", history.Summary.TotalPaid)
	}
	if history.Summary.TotalPending != 500000 {
		t.Fatalf("expected total pending 500000, got %d", history.Summary.TotalPending)
	}
	if history.Summary.CountByStatus[domain.PaymentStatusComplete] != 2 {
		t.Fatalf("expected 2 complete payments, got %d", history.Summary.CountByStatus[domain.PaymentStatusComplete])
	}
}

func TestNotifications_DegradesToEmptyOnStoreFailure(t *testing.T) {
	repo := &serviceRepoStub{notifListErr: errors.New("connection refused")}
	svc := newTestService(t, repo, configuredGateway(), nil)

	items, unread := svc.Notifications(context.Background(), uuid.New())
	if len(items) != 0 || unread != 0 {
		t.Fatalf("expected empty degraded notifications, got %d items unread=%d", len(items), unread)
	}
}
