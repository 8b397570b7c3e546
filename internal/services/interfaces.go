package services

import (
	"context"
	"time"

	domain "github.com/fleamart/api/internal/domain"
)

// CreateOrderInput carries the checkout request for one seller's listings.
type CreateOrderInput struct {
	ItemIDs         []string
	ShippingAddress domain.Address
	Note            string
}

// CheckoutResult couples the created order with the gateway client secret the
// buyer needs to complete payment.
type CheckoutResult struct {
	Order        domain.Order
	ClientSecret string
}

// ShipInput records the carrier handoff details supplied by the seller.
type ShipInput struct {
	Carrier           string
	TrackingNumber    string
	TrackingURL       *string
	EstimatedDelivery *time.Time
}

// CancelInput carries the cancellation reason.
type CancelInput struct {
	Reason string
}

// DisputeInput carries the buyer's dispute reason.
type DisputeInput struct {
	Reason string
}

// ResolveDisputeInput carries the admin decision closing a dispute.
type ResolveDisputeInput struct {
	Outcome domain.DisputeOutcome
	Note    string
}

// AddNoteInput carries a free-text annotation appended to the order.
type AddNoteInput struct {
	Body string
}

// ListOrdersInput scopes order listings. BuyerID and SellerID are only
// honoured for admin callers; other roles are pinned to their own orders.
type ListOrdersInput struct {
	BuyerID   string
	SellerID  string
	Status    []domain.OrderStatus
	Disputed  *bool
	From      *time.Time
	To        *time.Time
	PageSize  int
	PageToken string
}

// RevenueInput bounds the revenue aggregation window.
type RevenueInput struct {
	From *time.Time
	To   *time.Time
}

// RevenueReport aggregates platform earnings over a window. Payments with a
// settled refund are excluded from gross and fee sums.
type RevenueReport struct {
	Currency         string
	GrossSalesCents  int64
	ServiceFeeCents  int64
	GatewayFeeCents  int64
	RefundedCents    int64
	NetRevenueCents  int64
	PaymentCount     int
	RefundedPayments int
	From             *time.Time
	To               *time.Time
	GeneratedAt      time.Time
}

// CheckoutService creates orders from active listings and opens the payment intent.
type CheckoutService interface {
	CreateOrder(ctx context.Context, actor domain.Actor, input CreateOrderInput) (CheckoutResult, error)
}

// OrderService drives the fulfilment state machine. Every transition checks
// the caller's role before the order's state, so an unauthorised caller always
// sees a permission error rather than a state error.
type OrderService interface {
	Confirm(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	Ship(ctx context.Context, actor domain.Actor, orderID string, input ShipInput) (domain.Order, error)
	Deliver(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	Complete(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	Cancel(ctx context.Context, actor domain.Actor, orderID string, input CancelInput) (domain.Order, error)
	Dispute(ctx context.Context, actor domain.Actor, orderID string, input DisputeInput) (domain.Order, error)
	ResolveDispute(ctx context.Context, actor domain.Actor, orderID string, input ResolveDisputeInput) (domain.Order, error)
	AddNote(ctx context.Context, actor domain.Actor, orderID string, input AddNoteInput) (domain.Order, error)
}

// OrderQueryService serves the read side of orders with per-role scoping.
type OrderQueryService interface {
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, actor domain.Actor, input ListOrdersInput) (domain.CursorPage[domain.Order], error)
}

// LedgerService owns the append-only transactions ledger.
type LedgerService interface {
	RecordPayment(ctx context.Context, order domain.Order, gatewayRef string, gatewayFeeCents int64) (domain.Transaction, error)
	RecordFailedPayment(ctx context.Context, order domain.Order, gatewayRef, failureCode, failureMessage string) (domain.Transaction, error)
	CreatePayout(ctx context.Context, order domain.Order) (domain.Transaction, error)
	RecordRefund(ctx context.Context, order domain.Order, amountCents int64, gatewayRef string) (domain.Transaction, error)
	SettleRefund(ctx context.Context, orderID, gatewayRef string) (domain.Transaction, error)
	ListOrderTransactions(ctx context.Context, actor domain.Actor, orderID string) ([]domain.Transaction, error)
	Revenue(ctx context.Context, actor domain.Actor, input RevenueInput) (RevenueReport, error)
}

// WebhookService verifies and applies gateway notifications exactly once.
type WebhookService interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) error
}

// OrderEvent captures metadata for emitted order lifecycle events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	BuyerID        string
	SellerID       string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	ActorRole      string
	OccurredAt     time.Time
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}
