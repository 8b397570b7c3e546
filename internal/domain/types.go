package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role identifies the kind of actor invoking an order operation.
type Role string

const (
	// RoleBuyer is the purchasing side of an order.
	RoleBuyer Role = "buyer"
	// RoleSeller is the selling side of an order.
	RoleSeller Role = "seller"
	// RoleAdmin is platform staff with override privileges.
	RoleAdmin Role = "admin"
	// RoleSystem is used by internal callers such as carrier callbacks.
	RoleSystem Role = "system"
)

// Actor couples a user identifier with the role it acts under.
type Actor struct {
	ID   string
	Role Role
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits seller confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the seller has accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped indicates the order is in transit.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCompleted indicates the buyer confirmed receipt; payout follows.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before shipment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks the buyer-side charge independently of fulfilment.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the payment intent has not settled yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway confirmed the charge.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the gateway reported a terminal failure.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the charge was fully returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ItemCondition grades a listed item.
type ItemCondition string

const (
	// ConditionNew is an unused item.
	ConditionNew ItemCondition = "new"
	// ConditionLikeNew shows no visible wear.
	ConditionLikeNew ItemCondition = "like_new"
	// ConditionGood shows light wear.
	ConditionGood ItemCondition = "good"
	// ConditionFair shows noticeable wear.
	ConditionFair ItemCondition = "fair"
)

// ItemStatus enumerates catalog listing states relevant to checkout.
type ItemStatus string

const (
	// ItemStatusActive means the listing is purchasable.
	ItemStatusActive ItemStatus = "active"
	// ItemStatusSold means the listing was bought.
	ItemStatusSold ItemStatus = "sold"
	// ItemStatusRemoved means the listing was withdrawn or moderated away.
	ItemStatusRemoved ItemStatus = "removed"
)

// ItemCategory is the closed set of category variants carried on snapshots.
type ItemCategory string

const (
	// CategoryApparel covers clothing and accessories.
	CategoryApparel ItemCategory = "apparel"
	// CategoryElectronics covers devices and parts.
	CategoryElectronics ItemCategory = "electronics"
	// CategoryMedia covers books, records, and games.
	CategoryMedia ItemCategory = "media"
	// CategoryOther is the fallback for categories added after this build.
	CategoryOther ItemCategory = "other"
)

// ApparelAttributes carries the typed attribute set for apparel listings.
type ApparelAttributes struct {
	Size     string
	Color    string
	Material string
}

// ElectronicsAttributes carries the typed attribute set for electronics listings.
type ElectronicsAttributes struct {
	Model        string
	StorageGB    int
	BatteryCycle int
}

// MediaAttributes carries the typed attribute set for media listings.
type MediaAttributes struct {
	Format   string
	Edition  string
	Language string
}

// CategoryAttributes is a tagged union over the closed category set. Exactly
// one variant pointer is populated for known categories; Unknown holds raw
// key/values for categories this build does not model yet.
type CategoryAttributes struct {
	Category    ItemCategory
	Apparel     *ApparelAttributes
	Electronics *ElectronicsAttributes
	Media       *MediaAttributes
	Unknown     map[string]string
}

// Item is the catalog listing as read at the checkout boundary. The catalog
// service owns its full shape; checkout only needs these fields.
type Item struct {
	ID            string
	SellerID      string
	Title         string
	Brand         string
	PriceCents    int64
	ShippingCents int64
	Condition     ItemCondition
	ImageURL      string
	Status        ItemStatus
	Approved      bool
	Attributes    CategoryAttributes
	UpdatedAt     time.Time
}

// OrderItem is a line item frozen at purchase time, immune to later catalog
// edits or deletion.
type OrderItem struct {
	ItemID        string
	Title         string
	Brand         string
	PriceCents    int64
	ShippingCents int64
	Condition     ItemCondition
	ImageURL      string
	Quantity      int
	Attributes    CategoryAttributes
}

// OrderTotals holds the monetary breakdown in integer cents. ServiceFeeCents
// is subtracted from the seller payout, never added to the buyer total.
type OrderTotals struct {
	SubtotalCents   int64
	ShippingCents   int64
	TaxCents        int64
	ServiceFeeCents int64
	TotalCents      int64
}

// Address represents the shipping destination captured at checkout.
type Address struct {
	FullName   string
	Street1    string
	Street2    *string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      *string
}

// Tracking stores carrier handoff details recorded at shipment.
type Tracking struct {
	Carrier           string
	TrackingNumber    string
	TrackingURL       *string
	ShippedAt         *time.Time
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
}

// RefundStatus mirrors TransactionStatus for the order-embedded refund record.
type RefundStatus string

const (
	// RefundStatusPending means the refund was requested but not settled.
	RefundStatusPending RefundStatus = "pending"
	// RefundStatusCompleted means the gateway confirmed the refund.
	RefundStatusCompleted RefundStatus = "completed"
	// RefundStatusFailed means the gateway rejected the refund.
	RefundStatusFailed RefundStatus = "failed"
)

// Refund summarises the buyer-facing refund state embedded on the order. The
// authoritative money movement lives in the transactions ledger.
type Refund struct {
	AmountCents int64
	Reason      string
	Status      RefundStatus
	RequestedAt time.Time
	ProcessedAt *time.Time
	ProcessedBy *string
}

// DisputeOutcome enumerates admin decisions when resolving a dispute.
type DisputeOutcome string

const (
	// DisputeOutcomeRelease clears the dispute and lets the order proceed.
	DisputeOutcomeRelease DisputeOutcome = "release"
	// DisputeOutcomeRefund cancels the order and refunds the buyer.
	DisputeOutcomeRefund DisputeOutcome = "refund"
)

// DisputeResolution records how and by whom a dispute was closed.
type DisputeResolution struct {
	Outcome    DisputeOutcome
	ResolvedBy string
	ResolvedAt time.Time
	Note       string
}

// Order captures a buyer's purchase tracked through the fulfilment state
// machine. Orders are created at checkout and never deleted.
type Order struct {
	ID              string
	OrderNumber     string
	BuyerID         string
	SellerID        string
	Items           []OrderItem
	Totals          OrderTotals
	Currency        string
	PaymentIntentID string
	PaymentStatus   PaymentStatus
	ShippingAddress Address
	Tracking        *Tracking
	Status          OrderStatus

	ConfirmedAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CancellationReason *string

	IsDisputed    bool
	DisputeReason *string
	DisputedAt    *time.Time
	Resolution    *DisputeResolution

	Refund *Refund
	Notes  []OrderNote

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderNote is a timestamped free-text annotation on an order.
type OrderNote struct {
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// TransactionType enumerates the kinds of money movement the ledger records.
type TransactionType string

const (
	// TransactionTypePayment records the buyer's charge settling.
	TransactionTypePayment TransactionType = "payment"
	// TransactionTypeRefund records money returned to the buyer.
	TransactionTypeRefund TransactionType = "refund"
	// TransactionTypePayout records the seller disbursement.
	TransactionTypePayout TransactionType = "payout"
	// TransactionTypeFee records a standalone fee row.
	TransactionTypeFee TransactionType = "fee"
	// TransactionTypeAdjustment records a manual compensating correction.
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// TransactionStatus tracks the settlement state of a ledger row.
type TransactionStatus string

const (
	// TransactionStatusPending means the movement was initiated.
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusProcessing means the gateway accepted the movement.
	TransactionStatusProcessing TransactionStatus = "processing"
	// TransactionStatusCompleted is terminal success; the row becomes immutable.
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusFailed is terminal failure.
	TransactionStatusFailed TransactionStatus = "failed"
	// TransactionStatusCancelled is terminal cancellation before settlement.
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is an immutable ledger row recording one money movement tied to
// an order. NetAmountCents is computed once at creation and never recomputed;
// corrections are compensating new rows, not edits.
type Transaction struct {
	ID               string
	OrderID          string
	BuyerID          string
	SellerID         string
	Type             TransactionType
	AmountCents      int64
	PlatformFeeCents int64
	GatewayFeeCents  int64
	NetAmountCents   int64
	Currency         string
	Status           TransactionStatus
	GatewayRef       string
	FailureCode      string
	FailureMessage   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// IsTerminal reports whether the transaction status permits no further change.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// ProcessedWebhookEvent marks a gateway event id as applied. Its existence is
// the idempotency guard for webhook redelivery.
type ProcessedWebhookEvent struct {
	EventID     string
	IntentID    string
	ProcessedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
