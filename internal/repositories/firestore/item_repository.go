package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fleamart/api/internal/domain"
	pfirestore "github.com/fleamart/api/internal/platform/firestore"
	"github.com/fleamart/api/internal/repositories"
)

const itemCollection = "items"

// ItemRepository reads catalog listings and flips them to sold at checkout.
type ItemRepository struct {
	base     *pfirestore.BaseRepository[itemDocument]
	provider *pfirestore.Provider
}

// NewItemRepository constructs a Firestore-backed item repository.
func NewItemRepository(provider *pfirestore.Provider) (*ItemRepository, error) {
	if provider == nil {
		return nil, errors.New("item repository requires firestore provider")
	}
	return &ItemRepository{
		base:     pfirestore.NewBaseRepository[itemDocument](provider, itemCollection, nil),
		provider: provider,
	}, nil
}

// FindByID loads the catalog listing with the given identifier.
func (r *ItemRepository) FindByID(ctx context.Context, itemID string) (domain.Item, error) {
	if r == nil || r.base == nil {
		return domain.Item{}, errors.New("item repository not initialised")
	}
	doc, err := r.base.Get(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	return decodeItem(doc.ID, doc.Data), nil
}

// MarkSold transitions the listing to sold inside a transaction. Only active
// listings can be sold; a second buyer racing on the same listing conflicts.
func (r *ItemRepository) MarkSold(ctx context.Context, itemID string, orderID string, soldAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("item repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return errors.New("item repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, itemID)
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("items.markSold", err)
		}
		current, err := r.base.Decode(ctx, snap)
		if err != nil {
			return fmt.Errorf("items.markSold: decode %s: %w", itemID, err)
		}

		if current.Data.Status != string(domain.ItemStatusActive) {
			return pfirestore.NewConflictError("items.markSold",
				fmt.Errorf("listing is %q, not active", current.Data.Status))
		}

		sold := soldAt.UTC()
		return pfirestore.WrapError("items.markSold", tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.ItemStatusSold)},
			{Path: "orderId", Value: orderID},
			{Path: "soldAt", Value: sold},
			{Path: "updatedAt", Value: sold},
		}))
	})
}

func decodeItem(id string, doc itemDocument) domain.Item {
	return domain.Item{
		ID:            id,
		SellerID:      doc.SellerID,
		Title:         doc.Title,
		Brand:         doc.Brand,
		PriceCents:    doc.PriceCents,
		ShippingCents: doc.ShippingCents,
		Condition:     domain.ItemCondition(doc.Condition),
		ImageURL:      doc.ImageURL,
		Status:        domain.ItemStatus(doc.Status),
		Approved:      doc.Approved,
		Attributes:    decodeAttributes(doc.Attributes),
		UpdatedAt:     doc.UpdatedAt,
	}
}

type itemDocument struct {
	SellerID      string                     `firestore:"sellerId"`
	Title         string                     `firestore:"title"`
	Brand         string                     `firestore:"brand,omitempty"`
	PriceCents    int64                      `firestore:"priceCents"`
	ShippingCents int64                      `firestore:"shippingCents"`
	Condition     string                     `firestore:"condition"`
	ImageURL      string                     `firestore:"imageUrl,omitempty"`
	Status        string                     `firestore:"status"`
	Approved      bool                       `firestore:"approved"`
	Attributes    categoryAttributesDocument `firestore:"attributes"`
	OrderID       string                     `firestore:"orderId,omitempty"`
	SoldAt        *time.Time                 `firestore:"soldAt,omitempty"`
	UpdatedAt     time.Time                  `firestore:"updatedAt"`
}

var _ repositories.ItemRepository = (*ItemRepository)(nil)
