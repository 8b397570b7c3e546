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

func baseOrder(status domain.OrderStatus, paymentStatus domain.PaymentStatus) domain.Order {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:              "ord_1",
		OrderNumber:     "FM-20250301-ABC123",
		BuyerID:         "buyer-1",
		SellerID:        "seller-1",
		Totals:          domain.OrderTotals{SubtotalCents: 5000, ShippingCents: 599, ServiceFeeCents: 500, TotalCents: 5599},
		Currency:        "USD",
		PaymentIntentID: "pi_1",
		PaymentStatus:   paymentStatus,
		Status:          status,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Ledger == nil {
		deps.Ledger = &stubLedgerService{}
	}
	if deps.Gateway == nil {
		deps.Gateway = &stubGateway{}
	}
	if deps.Clock == nil {
		now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
		deps.Clock = func() time.Time { return now }
	}
	service, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}
	return service
}

func orderRepoReturning(order domain.Order) *stubOrderRepository {
	return &stubOrderRepository{
		findByIDFunc: func(context.Context, string) (domain.Order, error) {
			return order, nil
		},
	}
}

func TestOrderConfirmBySeller(t *testing.T) {
	order := baseOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	repo := orderRepoReturning(order)
	var pinned repositories.OrderPrecondition
	repo.updateFunc = func(_ context.Context, updated domain.Order, expect repositories.OrderPrecondition) error {
		pinned = expect
		if updated.Status != domain.OrderStatusConfirmed {
			t.Fatalf("expected confirmed, got %s", updated.Status)
		}
		if updated.ConfirmedAt == nil {
			t.Fatal("expected confirmedAt set")
		}
		return nil
	}
	publisher := &capturingPublisher{}
	service := newTestOrderService(t, OrderServiceDeps{Orders: repo, Events: publisher})

	updated, err := service.Confirm(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	if pinned.Status == nil || *pinned.Status != domain.OrderStatusPending {
		t.Fatalf("expected update pinned to pending, got %#v", pinned)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.status.changed" {
		t.Fatalf("expected status changed event, got %#v", publisher.events)
	}
	if publisher.events[0].PreviousStatus != "pending" || publisher.events[0].CurrentStatus != "confirmed" {
		t.Fatalf("unexpected event statuses %#v", publisher.events[0])
	}
}

func TestOrderConfirmRoleCheckedBeforeState(t *testing.T) {
	// A buyer poking at a shipped order must get a permission error, not a
	// state error that would leak the order's position in the lifecycle.
	order := baseOrder(domain.OrderStatusShipped, domain.PaymentStatusPaid)
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	_, err := service.Confirm(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if errors.Is(err, ErrInvalidTransition) {
		t.Fatal("must not surface the transition error to a forbidden caller")
	}
}

func TestOrderShipRequiresSettledPayment(t *testing.T) {
	order := baseOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPending)
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	_, err := service.Ship(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", ShipInput{
		Carrier:        "UPS",
		TrackingNumber: "1Z999",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unpaid order, got %v", err)
	}
}

func TestOrderShipRecordsTracking(t *testing.T) {
	order := baseOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPaid)
	repo := orderRepoReturning(order)
	var pinned repositories.OrderPrecondition
	repo.updateFunc = func(_ context.Context, updated domain.Order, expect repositories.OrderPrecondition) error {
		pinned = expect
		return nil
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	url := "https://track.example/1Z999"
	updated, err := service.Ship(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", ShipInput{
		Carrier:        " UPS ",
		TrackingNumber: " 1Z999 ",
		TrackingURL:    &url,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", updated.Status)
	}
	if updated.Tracking == nil || updated.Tracking.Carrier != "UPS" || updated.Tracking.TrackingNumber != "1Z999" {
		t.Fatalf("unexpected tracking %#v", updated.Tracking)
	}
	if pinned.PaymentStatus == nil || *pinned.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected update pinned to paid payment status, got %#v", pinned)
	}
}

func TestOrderShipDerivesTrackingURL(t *testing.T) {
	order := baseOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPaid)
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	updated, err := service.Ship(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", ShipInput{
		Carrier:        "USPS",
		TrackingNumber: "9400-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Tracking == nil || updated.Tracking.TrackingURL == nil {
		t.Fatalf("expected derived tracking url, got %#v", updated.Tracking)
	}
	if *updated.Tracking.TrackingURL != "https://tools.usps.com/go/TrackConfirmAction?tLabels=9400-1" {
		t.Fatalf("unexpected tracking url %q", *updated.Tracking.TrackingURL)
	}

	unknown, err := service.Ship(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", ShipInput{
		Carrier:        "pigeon post",
		TrackingNumber: "coo-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unknown.Tracking == nil || unknown.Tracking.TrackingURL != nil {
		t.Fatalf("unknown carriers must not get a url, got %#v", unknown.Tracking)
	}
}

func TestOrderShipMissingTracking(t *testing.T) {
	order := baseOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPaid)
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	_, err := service.Ship(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", ShipInput{Carrier: "UPS"})
	if !errors.Is(err, ErrMissingTracking) {
		t.Fatalf("expected ErrMissingTracking, got %v", err)
	}
}

func TestOrderDeliverIsSystemOnly(t *testing.T) {
	order := baseOrder(domain.OrderStatusShipped, domain.PaymentStatusPaid)
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	for _, actor := range []domain.Actor{
		{ID: "buyer-1", Role: domain.RoleBuyer},
		{ID: "seller-1", Role: domain.RoleSeller},
	} {
		if _, err := service.Deliver(context.Background(), actor, "ord_1"); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden for %s, got %v", actor.Role, err)
		}
	}

	updated, err := service.Deliver(context.Background(), domain.Actor{ID: "carrier-hook", Role: domain.RoleSystem}, "ord_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusDelivered || updated.DeliveredAt == nil {
		t.Fatalf("expected delivered with timestamp, got %#v", updated)
	}
}

func TestOrderCompleteCreatesPayout(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	var payoutOrder *domain.Order
	ledger := &stubLedgerService{
		createPayoutFunc: func(_ context.Context, o domain.Order) (domain.Transaction, error) {
			payoutOrder = &o
			return domain.Transaction{ID: "txn_payout", Type: domain.TransactionTypePayout}, nil
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order), Ledger: ledger})

	updated, err := service.Complete(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if payoutOrder == nil {
		t.Fatal("expected payout creation")
	}
	if payoutOrder.Status != domain.OrderStatusCompleted {
		t.Fatalf("payout must see the completed order, got %s", payoutOrder.Status)
	}
}

func TestOrderCompleteBlockedWhileDisputed(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	order.IsDisputed = true
	payoutCalled := false
	ledger := &stubLedgerService{
		createPayoutFunc: func(context.Context, domain.Order) (domain.Transaction, error) {
			payoutCalled = true
			return domain.Transaction{}, nil
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order), Ledger: ledger})

	_, err := service.Complete(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if payoutCalled {
		t.Fatal("disputed order must hold the payout")
	}
}

func TestOrderCompletePayoutFailureDoesNotRollBack(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	ledger := &stubLedgerService{
		createPayoutFunc: func(context.Context, domain.Order) (domain.Transaction, error) {
			return domain.Transaction{}, errRepoUnavailable
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order), Ledger: ledger})

	updated, err := service.Complete(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1")
	if err != nil {
		t.Fatalf("completion must survive a payout failure, got %v", err)
	}
	if updated.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}

func TestOrderCompleteReplayRecoversPayout(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	payoutAttempts := 0
	ledger := &stubLedgerService{
		createPayoutFunc: func(context.Context, domain.Order) (domain.Transaction, error) {
			payoutAttempts++
			if payoutAttempts == 1 {
				return domain.Transaction{}, errRepoUnavailable
			}
			return domain.Transaction{ID: "txn_payout", Type: domain.TransactionTypePayout}, nil
		},
	}
	repo := orderRepoReturning(order)
	updates := 0
	repo.updateFunc = func(_ context.Context, updated domain.Order, _ repositories.OrderPrecondition) error {
		updates++
		repo.findByIDFunc = func(context.Context, string) (domain.Order, error) {
			return updated, nil
		}
		return nil
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: repo, Ledger: ledger})
	buyer := domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}

	completed, err := service.Complete(context.Background(), buyer, "ord_1")
	if err != nil {
		t.Fatalf("completion must survive a payout failure, got %v", err)
	}
	if completed.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	// Calling Complete again re-attempts the payout without another transition.
	replayed, err := service.Complete(context.Background(), buyer, "ord_1")
	if err != nil {
		t.Fatalf("replay must recover the payout, got %v", err)
	}
	if replayed.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", replayed.Status)
	}
	if payoutAttempts != 2 {
		t.Fatalf("expected a second payout attempt, got %d", payoutAttempts)
	}
	if updates != 1 {
		t.Fatalf("replay must not rewrite the order, got %d updates", updates)
	}
}

func TestOrderCompleteReplaySurfacesPayoutFailure(t *testing.T) {
	order := baseOrder(domain.OrderStatusCompleted, domain.PaymentStatusPaid)
	ledger := &stubLedgerService{
		createPayoutFunc: func(context.Context, domain.Order) (domain.Transaction, error) {
			return domain.Transaction{}, errRepoUnavailable
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order), Ledger: ledger})

	if _, err := service.Complete(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1"); err == nil {
		t.Fatal("expected the payout failure to surface on replay")
	}
}

func TestOrderCancelAfterShipmentRejected(t *testing.T) {
	order := baseOrder(domain.OrderStatusShipped, domain.PaymentStatusPaid)
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	_, err := service.Cancel(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1", CancelInput{Reason: "changed my mind"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestOrderCancelPaidOrderIssuesFullRefund(t *testing.T) {
	order := baseOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPaid)
	var refundReq payments.RefundRequest
	gateway := &stubGateway{
		refundFunc: func(_ context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
			refundReq = req
			return payments.RefundResult{RefundID: "re_1", Status: "pending"}, nil
		},
	}
	var recordedAmount int64
	ledger := &stubLedgerService{
		recordRefundFunc: func(_ context.Context, _ domain.Order, amountCents int64, gatewayRef string) (domain.Transaction, error) {
			recordedAmount = amountCents
			if gatewayRef != "re_1" {
				t.Fatalf("expected gateway ref re_1, got %s", gatewayRef)
			}
			return domain.Transaction{ID: "txn_refund"}, nil
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order), Gateway: gateway, Ledger: ledger})

	updated, err := service.Cancel(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1", CancelInput{Reason: "damaged box"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if updated.Refund == nil || updated.Refund.AmountCents != 5599 || updated.Refund.Status != domain.RefundStatusPending {
		t.Fatalf("expected pending full refund embedded, got %#v", updated.Refund)
	}
	if refundReq.AmountCents != 5599 || refundReq.IntentID != "pi_1" {
		t.Fatalf("unexpected refund request %#v", refundReq)
	}
	if refundReq.IdempotencyKey != "refund-ord_1" {
		t.Fatalf("unexpected refund idempotency key %s", refundReq.IdempotencyKey)
	}
	if recordedAmount != 5599 {
		t.Fatalf("expected ledger refund of 5599, got %d", recordedAmount)
	}
}

func TestOrderCancelUnpaidOrderSkipsRefund(t *testing.T) {
	order := baseOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	refundCalled := false
	gateway := &stubGateway{
		refundFunc: func(context.Context, payments.RefundRequest) (payments.RefundResult, error) {
			refundCalled = true
			return payments.RefundResult{}, nil
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order), Gateway: gateway})

	updated, err := service.Cancel(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", CancelInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refundCalled {
		t.Fatal("unpaid order must not trigger a refund")
	}
	if updated.Refund != nil {
		t.Fatalf("expected no refund record, got %#v", updated.Refund)
	}
}

func TestOrderDisputeKeepsStatus(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	repo := orderRepoReturning(order)
	var saved domain.Order
	repo.updateFunc = func(_ context.Context, updated domain.Order, _ repositories.OrderPrecondition) error {
		saved = updated
		return nil
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	updated, err := service.Dispute(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1", DisputeInput{Reason: "item not as described"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.IsDisputed {
		t.Fatal("expected dispute flag set")
	}
	if updated.Status != domain.OrderStatusDelivered || saved.Status != domain.OrderStatusDelivered {
		t.Fatalf("dispute must not change the lifecycle status, got %s", updated.Status)
	}
	if updated.DisputeReason == nil || *updated.DisputeReason != "item not as described" {
		t.Fatalf("unexpected dispute reason %#v", updated.DisputeReason)
	}
}

func TestOrderDisputeAllowedBeforeShipment(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		order := baseOrder(status, domain.PaymentStatusPaid)
		service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

		updated, err := service.Dispute(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1", DisputeInput{Reason: "never arrived"})
		if err != nil {
			t.Fatalf("dispute on %s order: unexpected error %v", status, err)
		}
		if !updated.IsDisputed || updated.Status != status {
			t.Fatalf("dispute on %s order: expected flag set and status kept, got %#v", status, updated)
		}
	}
}

func TestOrderDisputeOnClosedOrderRejected(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderStatusCompleted, domain.OrderStatusCancelled} {
		order := baseOrder(status, domain.PaymentStatusPaid)
		service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

		_, err := service.Dispute(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1", DisputeInput{Reason: "too late"})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("dispute on %s order: expected ErrInvalidTransition, got %v", status, err)
		}
	}
}

func TestOrderDisputeAlreadyDisputed(t *testing.T) {
	order := baseOrder(domain.OrderStatusShipped, domain.PaymentStatusPaid)
	order.IsDisputed = true
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	_, err := service.Dispute(context.Background(), domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}, "ord_1", DisputeInput{Reason: "still waiting"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestResolveDisputeReleaseClearsFlag(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	order.IsDisputed = true
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	updated, err := service.ResolveDispute(context.Background(), domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}, "ord_1", ResolveDisputeInput{
		Outcome: domain.DisputeOutcomeRelease,
		Note:    "buyer confirmed receipt",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.IsDisputed {
		t.Fatal("expected dispute flag cleared")
	}
	if updated.Status != domain.OrderStatusDelivered {
		t.Fatalf("release must keep the status, got %s", updated.Status)
	}
	if updated.Resolution == nil || updated.Resolution.Outcome != domain.DisputeOutcomeRelease || updated.Resolution.ResolvedBy != "admin-1" {
		t.Fatalf("unexpected resolution %#v", updated.Resolution)
	}
}

func TestResolveDisputeRefundCancelsAndRefunds(t *testing.T) {
	order := baseOrder(domain.OrderStatusShipped, domain.PaymentStatusPaid)
	order.IsDisputed = true
	refunded := false
	gateway := &stubGateway{
		refundFunc: func(_ context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
			refunded = true
			if req.AmountCents != 5599 {
				t.Fatalf("expected full refund 5599, got %d", req.AmountCents)
			}
			return payments.RefundResult{RefundID: "re_2"}, nil
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order), Gateway: gateway})

	updated, err := service.ResolveDispute(context.Background(), domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}, "ord_1", ResolveDisputeInput{
		Outcome: domain.DisputeOutcomeRefund,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if !refunded {
		t.Fatal("expected gateway refund")
	}
	if updated.Refund == nil || updated.Refund.ProcessedBy == nil || *updated.Refund.ProcessedBy != "admin-1" {
		t.Fatalf("expected refund attributed to the admin, got %#v", updated.Refund)
	}
}

func TestResolveDisputeAdminOnly(t *testing.T) {
	order := baseOrder(domain.OrderStatusDelivered, domain.PaymentStatusPaid)
	order.IsDisputed = true
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	_, err := service.ResolveDispute(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", ResolveDisputeInput{Outcome: domain.DisputeOutcomeRelease})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAddNoteSanitisesBody(t *testing.T) {
	order := baseOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPaid)
	service := newTestOrderService(t, OrderServiceDeps{Orders: orderRepoReturning(order)})

	updated, err := service.AddNote(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1", AddNoteInput{
		Body: "shipping tomorrow <script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Notes) != 1 {
		t.Fatalf("expected one note, got %d", len(updated.Notes))
	}
	if updated.Notes[0].Body != "shipping tomorrow" {
		t.Fatalf("expected markup stripped, got %q", updated.Notes[0].Body)
	}
}

func TestOrderUpdateConflictRetriedOnce(t *testing.T) {
	order := baseOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	repo := orderRepoReturning(order)
	attempts := 0
	repo.updateFunc = func(context.Context, domain.Order, repositories.OrderPrecondition) error {
		attempts++
		if attempts == 1 {
			return errRepoConflict
		}
		return nil
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	updated, err := service.Confirm(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1")
	if err != nil {
		t.Fatalf("expected the retry to absorb a single conflict, got %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry after the conflict, got %d attempts", attempts)
	}
}

func TestOrderUpdateConflictSurfacesAfterRetry(t *testing.T) {
	order := baseOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	repo := orderRepoReturning(order)
	attempts := 0
	repo.updateFunc = func(context.Context, domain.Order, repositories.OrderPrecondition) error {
		attempts++
		return errRepoConflict
	}
	service := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	_, err := service.Confirm(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly one retry before surfacing, got %d attempts", attempts)
	}
}

func TestOrderNotFound(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}})

	_, err := service.Confirm(context.Background(), domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, "ord_missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
