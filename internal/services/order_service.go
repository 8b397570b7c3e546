package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/payments"
	"github.com/fleamart/api/internal/repositories"
)

const (
	orderEventStatusChanged   = "order.status.changed"
	orderEventDisputeOpened   = "order.dispute.opened"
	orderEventDisputeResolved = "order.dispute.resolved"
	orderEventNoteAdded       = "order.note.added"

	maxReasonLength = 500
)

// orderStateTransitions lists the forward edges of the fulfilment state machine.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered: {domain.OrderStatusCompleted},
}

var cancellableStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:   true,
	domain.OrderStatusConfirmed: true,
}

// terminalOrderStatuses lists lifecycle states that permit no further change.
var terminalOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusCompleted: true,
	domain.OrderStatusCancelled: true,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Ledger      LedgerService
	Gateway     payments.Gateway
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	ledger     LedgerService
	gateway    payments.Gateway
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order service: ledger service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	return &orderService{
		orders:     deps.Orders,
		ledger:     deps.Ledger,
		gateway:    deps.Gateway,
		unitOfWork: unit,
		clock:      defaultClock(deps.Clock),
		newID:      defaultIDGenerator(deps.IDGenerator),
		events:     deps.Events,
		logger:     defaultLogger(deps.Logger),
	}, nil
}

// Confirm moves a pending order to confirmed. Seller-side operation.
func (s *orderService) Confirm(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.confirm(ctx, actor, orderID) })
}

func (s *orderService) confirm(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireSeller(actor, order); err != nil {
		return domain.Order{}, err
	}
	if err := requireTransition(order, domain.OrderStatusConfirmed); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	previous := order.Status
	order.Status = domain.OrderStatusConfirmed
	order.ConfirmedAt = &now
	order.UpdatedAt = now

	if err := s.update(ctx, order, pinStatus(previous)); err != nil {
		return domain.Order{}, err
	}
	s.publishStatusChange(ctx, order, previous, actor, now)
	return order, nil
}

// Ship moves a confirmed and paid order to shipped, recording tracking.
// Shipping an unpaid order is rejected as an invalid transition.
func (s *orderService) Ship(ctx context.Context, actor domain.Actor, orderID string, input ShipInput) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.ship(ctx, actor, orderID, input) })
}

func (s *orderService) ship(ctx context.Context, actor domain.Actor, orderID string, input ShipInput) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireSeller(actor, order); err != nil {
		return domain.Order{}, err
	}
	if err := requireTransition(order, domain.OrderStatusShipped); err != nil {
		return domain.Order{}, err
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return domain.Order{}, fmt.Errorf("%w: payment not settled", ErrInvalidTransition)
	}
	if strings.TrimSpace(input.Carrier) == "" || strings.TrimSpace(input.TrackingNumber) == "" {
		return domain.Order{}, fmt.Errorf("%w: carrier and tracking number are required", ErrMissingTracking)
	}

	now := s.clock()
	previous := order.Status
	carrier := strings.TrimSpace(input.Carrier)
	trackingNumber := strings.TrimSpace(input.TrackingNumber)
	order.Status = domain.OrderStatusShipped
	order.ShippedAt = &now
	order.UpdatedAt = now
	order.Tracking = &domain.Tracking{
		Carrier:           carrier,
		TrackingNumber:    trackingNumber,
		TrackingURL:       input.TrackingURL,
		ShippedAt:         &now,
		EstimatedDelivery: input.EstimatedDelivery,
	}
	if order.Tracking.TrackingURL == nil {
		if url := trackingURLFor(carrier, trackingNumber); url != "" {
			order.Tracking.TrackingURL = &url
		}
	}

	paid := domain.PaymentStatusPaid
	if err := s.update(ctx, order, repositories.OrderPrecondition{Status: &previous, PaymentStatus: &paid}); err != nil {
		return domain.Order{}, err
	}
	s.publishStatusChange(ctx, order, previous, actor, now)
	return order, nil
}

// Deliver marks a shipped order as delivered. Invoked by the carrier callback
// or platform staff, never directly by buyer or seller.
func (s *orderService) Deliver(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.deliver(ctx, actor, orderID) })
}

func (s *orderService) deliver(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role != domain.RoleSystem && actor.Role != domain.RoleAdmin {
		return domain.Order{}, fmt.Errorf("%w: delivery confirmation is system-only", ErrForbidden)
	}
	if err := requireTransition(order, domain.OrderStatusDelivered); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	previous := order.Status
	order.Status = domain.OrderStatusDelivered
	order.DeliveredAt = &now
	order.UpdatedAt = now
	if order.Tracking != nil {
		tracking := *order.Tracking
		tracking.DeliveredAt = &now
		order.Tracking = &tracking
	}

	if err := s.update(ctx, order, pinStatus(previous)); err != nil {
		return domain.Order{}, err
	}
	s.publishStatusChange(ctx, order, previous, actor, now)
	return order, nil
}

// Complete records the buyer's receipt confirmation and releases the seller
// payout. A disputed order holds funds until the dispute is resolved.
// Completing an already-completed order re-attempts the payout, so a payout
// that failed after the transition committed can be recovered by calling
// Complete again.
func (s *orderService) Complete(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.complete(ctx, actor, orderID) })
}

func (s *orderService) complete(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireBuyer(actor, order); err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusCompleted {
		// CreatePayout returns the existing row when the payout already landed.
		if _, err := s.ledger.CreatePayout(ctx, order); err != nil {
			return domain.Order{}, err
		}
		return order, nil
	}
	if err := requireTransition(order, domain.OrderStatusCompleted); err != nil {
		return domain.Order{}, err
	}
	if order.IsDisputed {
		return domain.Order{}, fmt.Errorf("%w: order is disputed", ErrInvalidTransition)
	}

	now := s.clock()
	previous := order.Status
	order.Status = domain.OrderStatusCompleted
	order.CompletedAt = &now
	order.UpdatedAt = now

	if err := s.update(ctx, order, pinStatus(previous)); err != nil {
		return domain.Order{}, err
	}

	if _, err := s.ledger.CreatePayout(ctx, order); err != nil {
		// The transition already committed; re-invoking Complete retries the payout.
		s.logger(ctx, "order.payout.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}

	s.publishStatusChange(ctx, order, previous, actor, now)
	return order, nil
}

// Cancel withdraws an order before shipment. A paid order is refunded in full.
func (s *orderService) Cancel(ctx context.Context, actor domain.Actor, orderID string, input CancelInput) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.cancel(ctx, actor, orderID, input) })
}

func (s *orderService) cancel(ctx context.Context, actor domain.Actor, orderID string, input CancelInput) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireParty(actor, order); err != nil {
		return domain.Order{}, err
	}
	if !cancellableStatuses[order.Status] {
		return domain.Order{}, fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, order.Status)
	}

	now := s.clock()
	previous := order.Status
	reason := sanitizeText(input.Reason, maxReasonLength)
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	if reason != "" {
		order.CancellationReason = &reason
	}

	wasPaid := order.PaymentStatus == domain.PaymentStatusPaid
	if wasPaid {
		order.Refund = &domain.Refund{
			AmountCents: order.Totals.TotalCents,
			Reason:      reason,
			Status:      domain.RefundStatusPending,
			RequestedAt: now,
		}
	}

	if err := s.update(ctx, order, pinStatus(previous)); err != nil {
		return domain.Order{}, err
	}

	if wasPaid {
		if err := s.issueRefund(ctx, order, order.Totals.TotalCents, reason); err != nil {
			s.logger(ctx, "order.refund.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	s.publishStatusChange(ctx, order, previous, actor, now)
	return order, nil
}

// Dispute flags an active order without changing its lifecycle state. Any
// order short of completed or cancelled can be disputed; the flag holds the
// payout until an admin resolves it.
func (s *orderService) Dispute(ctx context.Context, actor domain.Actor, orderID string, input DisputeInput) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.dispute(ctx, actor, orderID, input) })
}

func (s *orderService) dispute(ctx context.Context, actor domain.Actor, orderID string, input DisputeInput) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireBuyer(actor, order); err != nil {
		return domain.Order{}, err
	}
	if terminalOrderStatuses[order.Status] {
		return domain.Order{}, fmt.Errorf("%w: cannot dispute a %s order", ErrInvalidTransition, order.Status)
	}
	if order.IsDisputed {
		return domain.Order{}, fmt.Errorf("%w: order already disputed", ErrConflict)
	}
	reason := sanitizeText(input.Reason, maxReasonLength)
	if reason == "" {
		return domain.Order{}, fmt.Errorf("%w: dispute reason is required", ErrInvalidInput)
	}

	now := s.clock()
	order.IsDisputed = true
	order.DisputeReason = &reason
	order.DisputedAt = &now
	order.UpdatedAt = now

	if err := s.update(ctx, order, pinStatus(order.Status)); err != nil {
		return domain.Order{}, err
	}

	s.publish(ctx, OrderEvent{
		Type:           orderEventDisputeOpened,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(order.Status),
		ActorID:        actor.ID,
		ActorRole:      string(actor.Role),
		OccurredAt:     now,
	})
	return order, nil
}

// ResolveDispute closes a dispute. Releasing clears the flag and lets the
// order proceed; refunding cancels the order and returns the full charge.
func (s *orderService) ResolveDispute(ctx context.Context, actor domain.Actor, orderID string, input ResolveDisputeInput) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.resolveDispute(ctx, actor, orderID, input) })
}

func (s *orderService) resolveDispute(ctx context.Context, actor domain.Actor, orderID string, input ResolveDisputeInput) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Order{}, fmt.Errorf("%w: dispute resolution is admin-only", ErrForbidden)
	}
	if !order.IsDisputed {
		return domain.Order{}, fmt.Errorf("%w: order is not disputed", ErrInvalidTransition)
	}
	if input.Outcome != domain.DisputeOutcomeRelease && input.Outcome != domain.DisputeOutcomeRefund {
		return domain.Order{}, fmt.Errorf("%w: unknown dispute outcome %q", ErrInvalidInput, input.Outcome)
	}

	now := s.clock()
	previous := order.Status
	note := sanitizeText(input.Note, maxReasonLength)

	order.IsDisputed = false
	order.Resolution = &domain.DisputeResolution{
		Outcome:    input.Outcome,
		ResolvedBy: actor.ID,
		ResolvedAt: now,
		Note:       note,
	}
	order.UpdatedAt = now

	refunding := input.Outcome == domain.DisputeOutcomeRefund
	if refunding {
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		reason := "dispute resolved in buyer's favour"
		order.CancellationReason = &reason
		if order.PaymentStatus == domain.PaymentStatusPaid {
			order.Refund = &domain.Refund{
				AmountCents: order.Totals.TotalCents,
				Reason:      reason,
				Status:      domain.RefundStatusPending,
				RequestedAt: now,
				ProcessedBy: &actor.ID,
			}
		}
	}

	if err := s.update(ctx, order, pinStatus(previous)); err != nil {
		return domain.Order{}, err
	}

	if refunding && order.Refund != nil {
		if err := s.issueRefund(ctx, order, order.Totals.TotalCents, order.Refund.Reason); err != nil {
			s.logger(ctx, "order.refund.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	s.publish(ctx, OrderEvent{
		Type:           orderEventDisputeResolved,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actor.ID,
		ActorRole:      string(actor.Role),
		OccurredAt:     now,
	})
	return order, nil
}

// AddNote appends a timestamped annotation visible to both parties.
func (s *orderService) AddNote(ctx context.Context, actor domain.Actor, orderID string, input AddNoteInput) (domain.Order, error) {
	return s.retryOnConflict(func() (domain.Order, error) { return s.addNote(ctx, actor, orderID, input) })
}

func (s *orderService) addNote(ctx context.Context, actor domain.Actor, orderID string, input AddNoteInput) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireParty(actor, order); err != nil {
		return domain.Order{}, err
	}
	body := sanitizeText(input.Body, maxNoteLength)
	if body == "" {
		return domain.Order{}, fmt.Errorf("%w: note body is required", ErrInvalidInput)
	}

	now := s.clock()
	order.Notes = append(order.Notes, domain.OrderNote{
		AuthorID:  actor.ID,
		Body:      body,
		CreatedAt: now,
	})
	order.UpdatedAt = now

	if err := s.update(ctx, order, pinStatus(order.Status)); err != nil {
		return domain.Order{}, err
	}

	s.publish(ctx, OrderEvent{
		Type:          orderEventNoteAdded,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		CurrentStatus: string(order.Status),
		ActorID:       actor.ID,
		ActorRole:     string(actor.Role),
		OccurredAt:    now,
	})
	return order, nil
}

// issueRefund asks the gateway for a full refund and opens the pending ledger
// row. Settlement lands via the refund webhook.
func (s *orderService) issueRefund(ctx context.Context, order domain.Order, amountCents int64, reason string) error {
	result, err := s.gateway.Refund(ctx, payments.RefundRequest{
		IntentID:       order.PaymentIntentID,
		AmountCents:    amountCents,
		Reason:         reason,
		IdempotencyKey: "refund-" + order.ID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	if _, err := s.ledger.RecordRefund(ctx, order, amountCents, result.RefundID); err != nil {
		return err
	}
	return nil
}

// retryOnConflict re-runs a transition once after a concurrent writer wins
// the race. The closure re-reads the order, so the second attempt applies
// against fresh state; a second conflict is surfaced to the caller.
func (s *orderService) retryOnConflict(fn func() (domain.Order, error)) (domain.Order, error) {
	order, err := fn()
	if !errors.Is(err, ErrConflict) {
		return order, err
	}
	return fn()
}

func (s *orderService) load(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return order, nil
}

func (s *orderService) update(ctx context.Context, order domain.Order, expect repositories.OrderPrecondition) error {
	if err := s.orders.Update(ctx, order, expect); err != nil {
		return mapRepositoryError(err, ErrOrderNotFound)
	}
	return nil
}

func (s *orderService) publishStatusChange(ctx context.Context, order domain.Order, previous domain.OrderStatus, actor domain.Actor, at time.Time) {
	s.publish(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actor.ID,
		ActorRole:      string(actor.Role),
		OccurredAt:     at,
	})
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
		"actor":   actor.ID,
	})
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"event":   event.Type,
			"error":   err.Error(),
		})
	}
}

// trackingURLFor derives the public tracking page for carriers we recognise.
// Unknown carriers ship without a link; the seller can supply one explicitly.
func trackingURLFor(carrier, trackingNumber string) string {
	switch strings.ToLower(carrier) {
	case "usps":
		return "https://tools.usps.com/go/TrackConfirmAction?tLabels=" + trackingNumber
	case "ups":
		return "https://www.ups.com/track?tracknum=" + trackingNumber
	case "fedex":
		return "https://www.fedex.com/fedextrack/?trknbr=" + trackingNumber
	}
	return ""
}

func pinStatus(status domain.OrderStatus) repositories.OrderPrecondition {
	pinned := status
	return repositories.OrderPrecondition{Status: &pinned}
}

// requireTransition checks the state machine edge from the order's current
// status to the target. Role checks run before this, so unauthorised callers
// never learn the order's state.
func requireTransition(order domain.Order, target domain.OrderStatus) error {
	for _, allowed := range orderStateTransitions[order.Status] {
		if allowed == target {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
}

func requireBuyer(actor domain.Actor, order domain.Order) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if actor.Role == domain.RoleBuyer && actor.ID == order.BuyerID {
		return nil
	}
	return fmt.Errorf("%w: buyer-side operation", ErrForbidden)
}

func requireSeller(actor domain.Actor, order domain.Order) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if actor.Role == domain.RoleSeller && actor.ID == order.SellerID {
		return nil
	}
	return fmt.Errorf("%w: seller-side operation", ErrForbidden)
}

func requireParty(actor domain.Actor, order domain.Order) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if actor.ID == order.BuyerID || actor.ID == order.SellerID {
		return nil
	}
	return fmt.Errorf("%w: not a party to this order", ErrForbidden)
}
