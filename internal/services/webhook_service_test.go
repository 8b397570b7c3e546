package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/payments"
	"github.com/fleamart/api/internal/repositories"
)

func newTestWebhookService(t *testing.T, deps WebhookServiceDeps) WebhookService {
	t.Helper()
	if deps.Gateway == nil {
		deps.Gateway = &stubGateway{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.WebhookEvents == nil {
		deps.WebhookEvents = &stubWebhookEventRepository{}
	}
	if deps.Ledger == nil {
		deps.Ledger = &stubLedgerService{}
	}
	if deps.Clock == nil {
		now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
		deps.Clock = func() time.Time { return now }
	}
	service, err := NewWebhookService(deps)
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}
	return service
}

func verifiedEvent(event payments.WebhookEvent) *stubGateway {
	return &stubGateway{
		verifyWebhookFunc: func([]byte, string) (payments.WebhookEvent, error) {
			return event, nil
		},
	}
}

func TestProcessWebhookInvalidSignature(t *testing.T) {
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: &stubGateway{
			verifyWebhookFunc: func([]byte, string) (payments.WebhookEvent, error) {
				return payments.WebhookEvent{}, payments.ErrInvalidSignature
			},
		},
	})

	err := service.ProcessWebhook(context.Background(), []byte("{}"), "bad-sig")
	if !errors.Is(err, ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature, got %v", err)
	}
}

func TestProcessWebhookPaymentSucceeded(t *testing.T) {
	order := baseOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	orders := &stubOrderRepository{
		findByPaymentIntentFunc: func(_ context.Context, intentID string) (domain.Order, error) {
			if intentID != "pi_1" {
				t.Fatalf("unexpected intent lookup %s", intentID)
			}
			return order, nil
		},
	}
	var savedPayment *domain.Order
	orders.updateFunc = func(_ context.Context, updated domain.Order, expect repositories.OrderPrecondition) error {
		savedPayment = &updated
		if expect.PaymentStatus == nil || *expect.PaymentStatus != domain.PaymentStatusPending {
			t.Fatalf("expected update pinned to pending payment, got %#v", expect)
		}
		return nil
	}

	var recordedFee int64
	ledger := &stubLedgerService{
		recordPaymentFunc: func(_ context.Context, o domain.Order, gatewayRef string, gatewayFeeCents int64) (domain.Transaction, error) {
			recordedFee = gatewayFeeCents
			if gatewayRef != "pi_1" {
				t.Fatalf("expected gateway ref pi_1, got %s", gatewayRef)
			}
			return domain.Transaction{ID: "txn_pay"}, nil
		},
	}

	publisher := &capturingPublisher{}
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{
			ID:              "evt_1",
			Type:            payments.EventPaymentSucceeded,
			IntentID:        "pi_1",
			AmountCents:     5599,
			GatewayFeeCents: 192,
		}),
		Orders: orders,
		Ledger: ledger,
		Events: publisher,
	})

	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if savedPayment == nil || savedPayment.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected payment marked paid, got %#v", savedPayment)
	}
	if recordedFee != 192 {
		t.Fatalf("expected gateway fee 192 recorded, got %d", recordedFee)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.payment.succeeded" {
		t.Fatalf("expected payment succeeded event, got %#v", publisher.events)
	}
	if publisher.events[0].ActorRole != string(domain.RoleSystem) {
		t.Fatalf("webhook events must be attributed to the system, got %s", publisher.events[0].ActorRole)
	}
}

func TestProcessWebhookDuplicateAckedOnce(t *testing.T) {
	marks := 0
	webhookEvents := &stubWebhookEventRepository{
		markFunc: func(context.Context, domain.ProcessedWebhookEvent) error {
			marks++
			if marks > 1 {
				return errRepoConflict
			}
			return nil
		},
	}
	ledgerCalls := 0
	ledger := &stubLedgerService{
		recordPaymentFunc: func(context.Context, domain.Order, string, int64) (domain.Transaction, error) {
			ledgerCalls++
			return domain.Transaction{}, nil
		},
	}
	orders := &stubOrderRepository{
		findByPaymentIntentFunc: func(context.Context, string) (domain.Order, error) {
			return baseOrder(domain.OrderStatusPending, domain.PaymentStatusPending), nil
		},
	}
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{
			ID:       "evt_dup",
			Type:     payments.EventPaymentSucceeded,
			IntentID: "pi_1",
		}),
		Orders:        orders,
		WebhookEvents: webhookEvents,
		Ledger:        ledger,
	})

	for i := 0; i < 3; i++ {
		if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
			t.Fatalf("redelivery %d must be acked, got %v", i, err)
		}
	}
	if ledgerCalls != 1 {
		t.Fatalf("expected exactly one ledger row across redeliveries, got %d", ledgerCalls)
	}
}

func TestProcessWebhookReappliesAfterFailedAttempt(t *testing.T) {
	marked := false
	unmarks := 0
	webhookEvents := &stubWebhookEventRepository{
		markFunc: func(context.Context, domain.ProcessedWebhookEvent) error {
			if marked {
				return errRepoConflict
			}
			marked = true
			return nil
		},
		unmarkFunc: func(context.Context, string) error {
			marked = false
			unmarks++
			return nil
		},
	}
	attempts := 0
	recorded := 0
	ledger := &stubLedgerService{
		recordPaymentFunc: func(context.Context, domain.Order, string, int64) (domain.Transaction, error) {
			attempts++
			if attempts == 1 {
				return domain.Transaction{}, errRepoUnavailable
			}
			recorded++
			return domain.Transaction{ID: "txn_pay"}, nil
		},
	}
	orders := &stubOrderRepository{
		findByPaymentIntentFunc: func(context.Context, string) (domain.Order, error) {
			return baseOrder(domain.OrderStatusPending, domain.PaymentStatusPaid), nil
		},
	}
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{
			ID:       "evt_retry",
			Type:     payments.EventPaymentSucceeded,
			IntentID: "pi_1",
		}),
		Orders:        orders,
		WebhookEvents: webhookEvents,
		Ledger:        ledger,
	})

	// The first delivery fails past the idempotency mark; the event id must be
	// released so the redelivery is applied rather than acked as a duplicate.
	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err == nil {
		t.Fatal("expected the ledger failure to surface")
	}
	if marked || unmarks != 1 {
		t.Fatalf("expected the event id released after the failure, marked=%v unmarks=%d", marked, unmarks)
	}

	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("redelivery must be applied, got %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected exactly one payment row after the redelivery, got %d", recorded)
	}

	// A further redelivery of the now-applied event is acked without re-applying.
	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("duplicate must be acked, got %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected no further ledger rows, got %d", recorded)
	}
}

func TestProcessWebhookOrphanAcked(t *testing.T) {
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{
			ID:       "evt_orphan",
			Type:     payments.EventPaymentSucceeded,
			IntentID: "pi_unknown",
		}),
		Orders: &stubOrderRepository{},
	})

	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("orphan events must be acked, got %v", err)
	}
}

func TestProcessWebhookUnhandledAcked(t *testing.T) {
	markCalled := false
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{ID: "evt_other", Type: payments.EventUnhandled}),
		WebhookEvents: &stubWebhookEventRepository{
			markFunc: func(context.Context, domain.ProcessedWebhookEvent) error {
				markCalled = true
				return nil
			},
		},
	})

	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if markCalled {
		t.Fatal("unhandled events must not be recorded")
	}
}

func TestProcessWebhookPaymentFailed(t *testing.T) {
	order := baseOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	orders := &stubOrderRepository{
		findByPaymentIntentFunc: func(context.Context, string) (domain.Order, error) {
			return order, nil
		},
	}
	var saved *domain.Order
	orders.updateFunc = func(_ context.Context, updated domain.Order, _ repositories.OrderPrecondition) error {
		saved = &updated
		return nil
	}
	var failureCode string
	ledger := &stubLedgerService{
		recordFailedPaymentFunc: func(_ context.Context, _ domain.Order, _ string, code, _ string) (domain.Transaction, error) {
			failureCode = code
			return domain.Transaction{}, nil
		},
	}
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{
			ID:          "evt_fail",
			Type:        payments.EventPaymentFailed,
			IntentID:    "pi_1",
			FailureCode: "card_declined",
		}),
		Orders: orders,
		Ledger: ledger,
	})

	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil || saved.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("expected payment failed, got %#v", saved)
	}
	if failureCode != "card_declined" {
		t.Fatalf("expected failure code recorded, got %q", failureCode)
	}
}

func TestProcessWebhookRefundCompleted(t *testing.T) {
	order := baseOrder(domain.OrderStatusCancelled, domain.PaymentStatusPaid)
	order.Refund = &domain.Refund{
		AmountCents: 5599,
		Status:      domain.RefundStatusPending,
		RequestedAt: order.CreatedAt,
	}
	orders := &stubOrderRepository{
		findByPaymentIntentFunc: func(context.Context, string) (domain.Order, error) {
			return order, nil
		},
	}
	var saved *domain.Order
	orders.updateFunc = func(_ context.Context, updated domain.Order, _ repositories.OrderPrecondition) error {
		saved = &updated
		return nil
	}
	settled := false
	ledger := &stubLedgerService{
		settleRefundFunc: func(_ context.Context, orderID, gatewayRef string) (domain.Transaction, error) {
			settled = true
			if orderID != "ord_1" || gatewayRef != "re_1" {
				t.Fatalf("unexpected settle args %s %s", orderID, gatewayRef)
			}
			return domain.Transaction{ID: "txn_ref", Status: domain.TransactionStatusCompleted}, nil
		},
	}
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{
			ID:          "evt_ref",
			Type:        payments.EventRefundCompleted,
			IntentID:    "pi_1",
			AmountCents: 5599,
			RefundID:    "re_1",
		}),
		Orders: orders,
		Ledger: ledger,
	})

	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil || saved.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("expected fully refunded payment status, got %#v", saved)
	}
	if saved.Refund == nil || saved.Refund.Status != domain.RefundStatusCompleted || saved.Refund.ProcessedAt == nil {
		t.Fatalf("expected completed refund record, got %#v", saved.Refund)
	}
	if !settled {
		t.Fatal("expected ledger settle")
	}
}

func TestProcessWebhookGatewayOriginatedRefund(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	orders := &stubOrderRepository{
		findByPaymentIntentFunc: func(context.Context, string) (domain.Order, error) {
			return order, nil
		},
	}
	settleCalls := 0
	recorded := false
	ledger := &stubLedgerService{
		settleRefundFunc: func(context.Context, string, string) (domain.Transaction, error) {
			settleCalls++
			if settleCalls == 1 {
				return domain.Transaction{}, ErrTransactionNotFound
			}
			return domain.Transaction{ID: "txn_ref"}, nil
		},
		recordRefundFunc: func(_ context.Context, _ domain.Order, amountCents int64, _ string) (domain.Transaction, error) {
			recorded = true
			if amountCents != 2000 {
				t.Fatalf("expected partial refund 2000, got %d", amountCents)
			}
			return domain.Transaction{ID: "txn_ref"}, nil
		},
	}
	service := newTestWebhookService(t, WebhookServiceDeps{
		Gateway: verifiedEvent(payments.WebhookEvent{
			ID:          "evt_gw_ref",
			Type:        payments.EventRefundCompleted,
			IntentID:    "pi_1",
			AmountCents: 2000,
			RefundID:    "re_gw",
		}),
		Orders: orders,
		Ledger: ledger,
	})

	if err := service.ProcessWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded || settleCalls != 2 {
		t.Fatalf("expected record-then-settle fallback, recorded=%v settles=%d", recorded, settleCalls)
	}
}
