package repositories

import (
	"context"
	"time"

	domain "github.com/fleamart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Transactions() TransactionRepository
	Items() ItemRepository
	WebhookEvents() WebhookEventRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderPrecondition pins the state an order must still be in for an update to
// apply. A mismatch at commit time surfaces as a conflict, never a silent
// overwrite.
type OrderPrecondition struct {
	Status        *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
}

// OrderRepository persists order documents. Update re-reads the document
// inside a transaction and applies the precondition before writing.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, expect OrderPrecondition) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// TransactionRepository persists append-only ledger rows. Rows are never
// deleted; terminal rows only accept terminal-metadata updates.
type TransactionRepository interface {
	Insert(ctx context.Context, txn domain.Transaction) error
	UpdateStatus(ctx context.Context, txnID string, status domain.TransactionStatus, update TransactionStatusUpdate) (domain.Transaction, error)
	FindByID(ctx context.Context, txnID string) (domain.Transaction, error)
	FindPayoutForOrder(ctx context.Context, orderID string) (domain.Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error)
	ListByTypeAndStatus(ctx context.Context, txnType domain.TransactionType, status domain.TransactionStatus, dateRange domain.RangeQuery[time.Time]) ([]domain.Transaction, error)
}

// TransactionStatusUpdate carries optional terminal metadata set during a status transition.
type TransactionStatusUpdate struct {
	GatewayRef     string
	FailureCode    string
	FailureMessage string
	CompletedAt    *time.Time
}

// ItemRepository reads catalog listings at the checkout boundary and flips
// them to sold inside the order-creation transaction.
type ItemRepository interface {
	FindByID(ctx context.Context, itemID string) (domain.Item, error)
	MarkSold(ctx context.Context, itemID string, orderID string, soldAt time.Time) error
}

// WebhookEventRepository tracks processed gateway event ids. Mark returns a
// conflict error when the event id was already recorded; Unmark releases the
// id so a redelivered event is applied again after a failed attempt.
type WebhookEventRepository interface {
	Mark(ctx context.Context, event domain.ProcessedWebhookEvent) error
	Unmark(ctx context.Context, eventID string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter scopes order listings for the read side.
type OrderListFilter struct {
	BuyerID    string
	SellerID   string
	Status     []domain.OrderStatus
	Disputed   *bool
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
