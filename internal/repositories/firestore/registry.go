package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/fleamart/api/internal/platform/firestore"
	"github.com/fleamart/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider

	orders        *OrderRepository
	transactions  *TransactionRepository
	items         *ItemRepository
	webhookEvents *WebhookEventRepository
	health        *HealthRepository
}

// NewRegistry constructs the repository registry on top of the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	transactions, err := NewTransactionRepository(provider)
	if err != nil {
		return nil, err
	}
	items, err := NewItemRepository(provider)
	if err != nil {
		return nil, err
	}
	webhookEvents, err := NewWebhookEventRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := NewHealthRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		orders:        orders,
		transactions:  transactions,
		items:         items,
		webhookEvents: webhookEvents,
		health:        health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Transactions returns the ledger repository.
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }

// Items returns the item repository.
func (r *Registry) Items() repositories.ItemRepository { return r.items }

// WebhookEvents returns the webhook event repository.
func (r *Registry) WebhookEvents() repositories.WebhookEventRepository { return r.webhookEvents }

// Health returns the health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn as one unit. Every repository mutation already runs in
// its own Firestore transaction with document-level preconditions, so the
// registry does not open an outer transaction here; fn is responsible for
// ordering mutations so earlier failures prevent later writes.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
