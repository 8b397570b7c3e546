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
	"github.com/fleamart/api/internal/platform/pagination"
	"github.com/fleamart/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order documents within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil),
		provider: provider,
	}, nil
}

// Insert creates the order document, failing with a conflict when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Create(ctx, order.ID, encodeOrder(order))
	return err
}

// Update rewrites the order document inside a transaction. The document is
// re-read and the precondition checked against the stored state before the
// write applies, so two racing writers cannot both succeed.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expect repositories.OrderPrecondition) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		current, err := r.base.Decode(ctx, snap)
		if err != nil {
			return fmt.Errorf("orders.update: decode %s: %w", order.ID, err)
		}

		if expect.Status != nil && current.Data.Status != string(*expect.Status) {
			return pfirestore.NewConflictError("orders.update",
				fmt.Errorf("status changed to %q since read", current.Data.Status))
		}
		if expect.PaymentStatus != nil && current.Data.PaymentStatus != string(*expect.PaymentStatus) {
			return pfirestore.NewConflictError("orders.update",
				fmt.Errorf("payment status changed to %q since read", current.Data.PaymentStatus))
		}

		return pfirestore.WrapError("orders.update", tx.Set(ref, encodeOrder(order)))
	})
}

// FindByID loads the order with the given identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByOrderNumber loads the order with the given human-facing order number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.findOne(ctx, "orderNumber", strings.TrimSpace(orderNumber))
}

// FindByPaymentIntent loads the order tied to the given payment intent id.
func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	return r.findOne(ctx, "paymentIntentId", strings.TrimSpace(intentID))
}

func (r *OrderRepository) findOne(ctx context.Context, field, value string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if value == "" {
		return domain.Order{}, fmt.Errorf("order repository: %s is required", field)
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NewNotFoundError("orders.query",
			fmt.Errorf("no order with %s %q", field, value))
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

// List returns orders matching the filter, newest first, with cursor paging.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.MaxPageSize {
		pageSize = pagination.MaxPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	startAfter, err := orderCursorValues(cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if buyer := strings.TrimSpace(filter.BuyerID); buyer != "" {
			q = q.Where("buyerId", "==", buyer)
		}
		if seller := strings.TrimSpace(filter.SellerID); seller != "" {
			q = q.Where("sellerId", "==", seller)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.Disputed != nil {
			q = q.Where("isDisputed", "==", *filter.Disputed)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func orderCursorValues(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok || id == "" {
		return nil, pagination.ErrInvalidPageToken
	}
	return []any{createdAt, id}, nil
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:        order.OrderNumber,
		BuyerID:            order.BuyerID,
		SellerID:           order.SellerID,
		Totals:             encodeTotals(order.Totals),
		Currency:           strings.ToUpper(strings.TrimSpace(order.Currency)),
		PaymentIntentID:    order.PaymentIntentID,
		PaymentStatus:      string(order.PaymentStatus),
		ShippingAddress:    encodeAddress(order.ShippingAddress),
		Status:             string(order.Status),
		ConfirmedAt:        order.ConfirmedAt,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CompletedAt:        order.CompletedAt,
		CancelledAt:        order.CancelledAt,
		CancellationReason: order.CancellationReason,
		IsDisputed:         order.IsDisputed,
		DisputeReason:      order.DisputeReason,
		DisputedAt:         order.DisputedAt,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
	}

	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ItemID:        item.ItemID,
			Title:         item.Title,
			Brand:         item.Brand,
			PriceCents:    item.PriceCents,
			ShippingCents: item.ShippingCents,
			Condition:     string(item.Condition),
			ImageURL:      item.ImageURL,
			Quantity:      item.Quantity,
			Attributes:    encodeAttributes(item.Attributes),
		})
	}

	if order.Tracking != nil {
		doc.Tracking = &trackingDocument{
			Carrier:           order.Tracking.Carrier,
			TrackingNumber:    order.Tracking.TrackingNumber,
			TrackingURL:       order.Tracking.TrackingURL,
			ShippedAt:         order.Tracking.ShippedAt,
			EstimatedDelivery: order.Tracking.EstimatedDelivery,
			DeliveredAt:       order.Tracking.DeliveredAt,
		}
	}
	if order.Resolution != nil {
		doc.Resolution = &disputeResolutionDocument{
			Outcome:    string(order.Resolution.Outcome),
			ResolvedBy: order.Resolution.ResolvedBy,
			ResolvedAt: order.Resolution.ResolvedAt.UTC(),
			Note:       order.Resolution.Note,
		}
	}
	if order.Refund != nil {
		doc.Refund = &refundDocument{
			AmountCents: order.Refund.AmountCents,
			Reason:      order.Refund.Reason,
			Status:      string(order.Refund.Status),
			RequestedAt: order.Refund.RequestedAt.UTC(),
			ProcessedAt: order.Refund.ProcessedAt,
			ProcessedBy: order.Refund.ProcessedBy,
		}
	}
	for _, note := range order.Notes {
		doc.Notes = append(doc.Notes, orderNoteDocument{
			AuthorID:  note.AuthorID,
			Body:      note.Body,
			CreatedAt: note.CreatedAt.UTC(),
		})
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                 id,
		OrderNumber:        doc.OrderNumber,
		BuyerID:            doc.BuyerID,
		SellerID:           doc.SellerID,
		Totals:             decodeTotals(doc.Totals),
		Currency:           doc.Currency,
		PaymentIntentID:    doc.PaymentIntentID,
		PaymentStatus:      domain.PaymentStatus(doc.PaymentStatus),
		ShippingAddress:    decodeAddress(doc.ShippingAddress),
		Status:             domain.OrderStatus(doc.Status),
		ConfirmedAt:        doc.ConfirmedAt,
		ShippedAt:          doc.ShippedAt,
		DeliveredAt:        doc.DeliveredAt,
		CompletedAt:        doc.CompletedAt,
		CancelledAt:        doc.CancelledAt,
		CancellationReason: doc.CancellationReason,
		IsDisputed:         doc.IsDisputed,
		DisputeReason:      doc.DisputeReason,
		DisputedAt:         doc.DisputedAt,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}

	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ItemID:        item.ItemID,
			Title:         item.Title,
			Brand:         item.Brand,
			PriceCents:    item.PriceCents,
			ShippingCents: item.ShippingCents,
			Condition:     domain.ItemCondition(item.Condition),
			ImageURL:      item.ImageURL,
			Quantity:      item.Quantity,
			Attributes:    decodeAttributes(item.Attributes),
		})
	}

	if doc.Tracking != nil {
		order.Tracking = &domain.Tracking{
			Carrier:           doc.Tracking.Carrier,
			TrackingNumber:    doc.Tracking.TrackingNumber,
			TrackingURL:       doc.Tracking.TrackingURL,
			ShippedAt:         doc.Tracking.ShippedAt,
			EstimatedDelivery: doc.Tracking.EstimatedDelivery,
			DeliveredAt:       doc.Tracking.DeliveredAt,
		}
	}
	if doc.Resolution != nil {
		order.Resolution = &domain.DisputeResolution{
			Outcome:    domain.DisputeOutcome(doc.Resolution.Outcome),
			ResolvedBy: doc.Resolution.ResolvedBy,
			ResolvedAt: doc.Resolution.ResolvedAt,
			Note:       doc.Resolution.Note,
		}
	}
	if doc.Refund != nil {
		order.Refund = &domain.Refund{
			AmountCents: doc.Refund.AmountCents,
			Reason:      doc.Refund.Reason,
			Status:      domain.RefundStatus(doc.Refund.Status),
			RequestedAt: doc.Refund.RequestedAt,
			ProcessedAt: doc.Refund.ProcessedAt,
			ProcessedBy: doc.Refund.ProcessedBy,
		}
	}
	for _, note := range doc.Notes {
		order.Notes = append(order.Notes, domain.OrderNote{
			AuthorID:  note.AuthorID,
			Body:      note.Body,
			CreatedAt: note.CreatedAt,
		})
	}
	return order
}

func encodeTotals(totals domain.OrderTotals) orderTotalsDocument {
	return orderTotalsDocument{
		SubtotalCents:   totals.SubtotalCents,
		ShippingCents:   totals.ShippingCents,
		TaxCents:        totals.TaxCents,
		ServiceFeeCents: totals.ServiceFeeCents,
		TotalCents:      totals.TotalCents,
	}
}

func decodeTotals(doc orderTotalsDocument) domain.OrderTotals {
	return domain.OrderTotals{
		SubtotalCents:   doc.SubtotalCents,
		ShippingCents:   doc.ShippingCents,
		TaxCents:        doc.TaxCents,
		ServiceFeeCents: doc.ServiceFeeCents,
		TotalCents:      doc.TotalCents,
	}
}

func encodeAddress(addr domain.Address) addressDocument {
	return addressDocument{
		FullName:   addr.FullName,
		Street1:    addr.Street1,
		Street2:    addr.Street2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func decodeAddress(doc addressDocument) domain.Address {
	return domain.Address{
		FullName:   doc.FullName,
		Street1:    doc.Street1,
		Street2:    doc.Street2,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
	}
}

func encodeAttributes(attrs domain.CategoryAttributes) categoryAttributesDocument {
	doc := categoryAttributesDocument{Category: string(attrs.Category)}
	if attrs.Apparel != nil {
		doc.Apparel = &apparelAttributesDocument{
			Size:     attrs.Apparel.Size,
			Color:    attrs.Apparel.Color,
			Material: attrs.Apparel.Material,
		}
	}
	if attrs.Electronics != nil {
		doc.Electronics = &electronicsAttributesDocument{
			Model:        attrs.Electronics.Model,
			StorageGB:    attrs.Electronics.StorageGB,
			BatteryCycle: attrs.Electronics.BatteryCycle,
		}
	}
	if attrs.Media != nil {
		doc.Media = &mediaAttributesDocument{
			Format:   attrs.Media.Format,
			Edition:  attrs.Media.Edition,
			Language: attrs.Media.Language,
		}
	}
	if len(attrs.Unknown) > 0 {
		doc.Unknown = make(map[string]string, len(attrs.Unknown))
		for k, v := range attrs.Unknown {
			doc.Unknown[k] = v
		}
	}
	return doc
}

func decodeAttributes(doc categoryAttributesDocument) domain.CategoryAttributes {
	attrs := domain.CategoryAttributes{Category: domain.ItemCategory(doc.Category)}
	if doc.Apparel != nil {
		attrs.Apparel = &domain.ApparelAttributes{
			Size:     doc.Apparel.Size,
			Color:    doc.Apparel.Color,
			Material: doc.Apparel.Material,
		}
	}
	if doc.Electronics != nil {
		attrs.Electronics = &domain.ElectronicsAttributes{
			Model:        doc.Electronics.Model,
			StorageGB:    doc.Electronics.StorageGB,
			BatteryCycle: doc.Electronics.BatteryCycle,
		}
	}
	if doc.Media != nil {
		attrs.Media = &domain.MediaAttributes{
			Format:   doc.Media.Format,
			Edition:  doc.Media.Edition,
			Language: doc.Media.Language,
		}
	}
	if len(doc.Unknown) > 0 {
		attrs.Unknown = make(map[string]string, len(doc.Unknown))
		for k, v := range doc.Unknown {
			attrs.Unknown[k] = v
		}
	}
	return attrs
}

type orderDocument struct {
	OrderNumber        string                     `firestore:"orderNumber"`
	BuyerID            string                     `firestore:"buyerId"`
	SellerID           string                     `firestore:"sellerId"`
	Items              []orderItemDocument        `firestore:"items"`
	Totals             orderTotalsDocument        `firestore:"totals"`
	Currency           string                     `firestore:"currency"`
	PaymentIntentID    string                     `firestore:"paymentIntentId,omitempty"`
	PaymentStatus      string                     `firestore:"paymentStatus"`
	ShippingAddress    addressDocument            `firestore:"shippingAddress"`
	Tracking           *trackingDocument          `firestore:"tracking,omitempty"`
	Status             string                     `firestore:"status"`
	ConfirmedAt        *time.Time                 `firestore:"confirmedAt,omitempty"`
	ShippedAt          *time.Time                 `firestore:"shippedAt,omitempty"`
	DeliveredAt        *time.Time                 `firestore:"deliveredAt,omitempty"`
	CompletedAt        *time.Time                 `firestore:"completedAt,omitempty"`
	CancelledAt        *time.Time                 `firestore:"cancelledAt,omitempty"`
	CancellationReason *string                    `firestore:"cancellationReason,omitempty"`
	IsDisputed         bool                       `firestore:"isDisputed"`
	DisputeReason      *string                    `firestore:"disputeReason,omitempty"`
	DisputedAt         *time.Time                 `firestore:"disputedAt,omitempty"`
	Resolution         *disputeResolutionDocument `firestore:"resolution,omitempty"`
	Refund             *refundDocument            `firestore:"refund,omitempty"`
	Notes              []orderNoteDocument        `firestore:"notes,omitempty"`
	CreatedAt          time.Time                  `firestore:"createdAt"`
	UpdatedAt          time.Time                  `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ItemID        string                     `firestore:"itemId"`
	Title         string                     `firestore:"title"`
	Brand         string                     `firestore:"brand,omitempty"`
	PriceCents    int64                      `firestore:"priceCents"`
	ShippingCents int64                      `firestore:"shippingCents"`
	Condition     string                     `firestore:"condition"`
	ImageURL      string                     `firestore:"imageUrl,omitempty"`
	Quantity      int                        `firestore:"quantity"`
	Attributes    categoryAttributesDocument `firestore:"attributes"`
}

type orderTotalsDocument struct {
	SubtotalCents   int64 `firestore:"subtotalCents"`
	ShippingCents   int64 `firestore:"shippingCents"`
	TaxCents        int64 `firestore:"taxCents"`
	ServiceFeeCents int64 `firestore:"serviceFeeCents"`
	TotalCents      int64 `firestore:"totalCents"`
}

type addressDocument struct {
	FullName   string  `firestore:"fullName"`
	Street1    string  `firestore:"street1"`
	Street2    *string `firestore:"street2,omitempty"`
	City       string  `firestore:"city"`
	State      string  `firestore:"state"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type trackingDocument struct {
	Carrier           string     `firestore:"carrier"`
	TrackingNumber    string     `firestore:"trackingNumber"`
	TrackingURL       *string    `firestore:"trackingUrl,omitempty"`
	ShippedAt         *time.Time `firestore:"shippedAt,omitempty"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time `firestore:"deliveredAt,omitempty"`
}

type disputeResolutionDocument struct {
	Outcome    string    `firestore:"outcome"`
	ResolvedBy string    `firestore:"resolvedBy"`
	ResolvedAt time.Time `firestore:"resolvedAt"`
	Note       string    `firestore:"note,omitempty"`
}

type refundDocument struct {
	AmountCents int64      `firestore:"amountCents"`
	Reason      string     `firestore:"reason,omitempty"`
	Status      string     `firestore:"status"`
	RequestedAt time.Time  `firestore:"requestedAt"`
	ProcessedAt *time.Time `firestore:"processedAt,omitempty"`
	ProcessedBy *string    `firestore:"processedBy,omitempty"`
}

type orderNoteDocument struct {
	AuthorID  string    `firestore:"authorId"`
	Body      string    `firestore:"body"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type apparelAttributesDocument struct {
	Size     string `firestore:"size,omitempty"`
	Color    string `firestore:"color,omitempty"`
	Material string `firestore:"material,omitempty"`
}

type electronicsAttributesDocument struct {
	Model        string `firestore:"model,omitempty"`
	StorageGB    int    `firestore:"storageGb,omitempty"`
	BatteryCycle int    `firestore:"batteryCycle,omitempty"`
}

type mediaAttributesDocument struct {
	Format   string `firestore:"format,omitempty"`
	Edition  string `firestore:"edition,omitempty"`
	Language string `firestore:"language,omitempty"`
}

type categoryAttributesDocument struct {
	Category    string                         `firestore:"category"`
	Apparel     *apparelAttributesDocument     `firestore:"apparel,omitempty"`
	Electronics *electronicsAttributesDocument `firestore:"electronics,omitempty"`
	Media       *mediaAttributesDocument       `firestore:"media,omitempty"`
	Unknown     map[string]string              `firestore:"unknown,omitempty"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
