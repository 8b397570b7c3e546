package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/payments"
	"github.com/fleamart/api/internal/repositories"
)

const (
	orderEventCreated = "order.created"

	maxCheckoutItems      = 20
	maxNoteLength         = 1000
	orderNumberAttempts   = 3
	orderNumberSuffixLen  = 6
	orderNumberAlphabet   = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	defaultOrderNumPrefix = "FM"
)

// CheckoutConfig carries the pricing knobs applied when an order is created.
type CheckoutConfig struct {
	ServiceFeeRate    float64
	TaxRate           float64
	Currency          string
	OrderNumberPrefix string
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Orders      repositories.OrderRepository
	Items       repositories.ItemRepository
	UnitOfWork  repositories.UnitOfWork
	Gateway     payments.Gateway
	Config      CheckoutConfig
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders     repositories.OrderRepository
	items      repositories.ItemRepository
	unitOfWork repositories.UnitOfWork
	gateway    payments.Gateway
	cfg        CheckoutConfig
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("checkout service: item repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	if deps.Config.ServiceFeeRate < 0 || deps.Config.ServiceFeeRate >= 1 {
		return nil, errors.New("checkout service: service fee rate out of range")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	cfg := deps.Config
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "USD"
	}
	if strings.TrimSpace(cfg.OrderNumberPrefix) == "" {
		cfg.OrderNumberPrefix = defaultOrderNumPrefix
	}

	return &checkoutService{
		orders:     deps.Orders,
		items:      deps.Items,
		unitOfWork: unit,
		gateway:    deps.Gateway,
		cfg:        cfg,
		clock:      defaultClock(deps.Clock),
		newID:      defaultIDGenerator(deps.IDGenerator),
		events:     deps.Events,
		logger:     defaultLogger(deps.Logger),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// CreateOrder snapshots the requested listings, opens the payment intent, and
// persists the order in pending state. The intent is created before the order
// is written, so a gateway failure leaves nothing behind.
func (s *checkoutService) CreateOrder(ctx context.Context, actor domain.Actor, input CreateOrderInput) (CheckoutResult, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if actor.Role != domain.RoleBuyer {
		return CheckoutResult{}, fmt.Errorf("%w: only buyers can create orders", ErrForbidden)
	}

	itemIDs, err := normaliseItemIDs(input.ItemIDs)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := validateAddress(input.ShippingAddress); err != nil {
		return CheckoutResult{}, err
	}

	items := make([]domain.Item, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		item, err := s.items.FindByID(ctx, itemID)
		if err != nil {
			if isRepoNotFound(err) {
				return CheckoutResult{}, fmt.Errorf("%w: %s", ErrItemUnavailable, itemID)
			}
			return CheckoutResult{}, err
		}
		if item.Status != domain.ItemStatusActive || !item.Approved {
			return CheckoutResult{}, fmt.Errorf("%w: %s", ErrItemUnavailable, itemID)
		}
		if item.SellerID == actor.ID {
			return CheckoutResult{}, fmt.Errorf("%w: cannot purchase own listing", ErrInvalidInput)
		}
		items = append(items, item)
	}

	sellerID := items[0].SellerID
	for _, item := range items[1:] {
		if item.SellerID != sellerID {
			return CheckoutResult{}, fmt.Errorf("%w: all items must belong to one seller", ErrInvalidInput)
		}
	}

	now := s.clock()
	totals := s.computeTotals(items)
	orderID := orderIDPrefix + s.newID()

	orderNumber, err := s.reserveOrderNumber(ctx, now)
	if err != nil {
		return CheckoutResult{}, err
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentRequest{
		OrderID:        orderID,
		AmountCents:    totals.TotalCents,
		Currency:       s.cfg.Currency,
		IdempotencyKey: orderID,
		Metadata:       map[string]string{"orderNumber": orderNumber},
	})
	if err != nil {
		s.logger(ctx, "checkout.intent.failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	order := domain.Order{
		ID:              orderID,
		OrderNumber:     orderNumber,
		BuyerID:         actor.ID,
		SellerID:        sellerID,
		Items:           snapshotItems(items),
		Totals:          totals,
		Currency:        s.cfg.Currency,
		PaymentIntentID: intent.ID,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: input.ShippingAddress,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if note := sanitizeText(input.Note, maxNoteLength); note != "" {
		order.Notes = []domain.OrderNote{{AuthorID: actor.ID, Body: note, CreatedAt: now}}
	}

	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Insert(ctx, order); err != nil {
			return mapRepositoryError(err, ErrConflict)
		}
		for _, item := range items {
			if err := s.items.MarkSold(ctx, item.ID, orderID, now); err != nil {
				s.abandonOrder(ctx, order, item.ID)
				if isRepoConflict(err) {
					return fmt.Errorf("%w: %s", ErrItemUnavailable, item.ID)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	s.publish(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		CurrentStatus: string(order.Status),
		ActorID:       actor.ID,
		ActorRole:     string(actor.Role),
		OccurredAt:    now,
	})
	s.logger(ctx, "checkout.order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.Totals.TotalCents,
		"items":       len(order.Items),
	})

	return CheckoutResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// abandonOrder cancels the freshly inserted order after a listing raced to
// sold under us. Best effort; the order was never payable.
func (s *checkoutService) abandonOrder(ctx context.Context, order domain.Order, itemID string) {
	now := s.clock()
	reason := fmt.Sprintf("listing %s became unavailable during checkout", itemID)
	cancelled := order
	cancelled.Status = domain.OrderStatusCancelled
	cancelled.CancelledAt = &now
	cancelled.CancellationReason = &reason
	cancelled.UpdatedAt = now

	pending := domain.OrderStatusPending
	if err := s.orders.Update(ctx, cancelled, repositories.OrderPrecondition{Status: &pending}); err != nil {
		s.logger(ctx, "checkout.order.abandon_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) computeTotals(items []domain.Item) domain.OrderTotals {
	var subtotal, shipping int64
	for _, item := range items {
		subtotal += item.PriceCents
		shipping += item.ShippingCents
	}
	tax := roundedFee(subtotal, s.cfg.TaxRate)
	serviceFee := roundedFee(subtotal, s.cfg.ServiceFeeRate)
	return domain.OrderTotals{
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		TaxCents:        tax,
		ServiceFeeCents: serviceFee,
		TotalCents:      subtotal + shipping + tax,
	}
}

// reserveOrderNumber draws random order numbers until one is unused, bounded
// to a few attempts. The keyspace is large enough that exhausting the
// attempts indicates something systematically wrong.
func (s *checkoutService) reserveOrderNumber(ctx context.Context, now time.Time) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%s-%s", s.cfg.OrderNumberPrefix, now.Format("20060102"), s.randomSuffix())
		_, err := s.orders.FindByOrderNumber(ctx, candidate)
		if isRepoNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: could not allocate order number", ErrConflict)
}

func (s *checkoutService) randomSuffix() string {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	buf := make([]byte, orderNumberSuffixLen)
	for i := range buf {
		buf[i] = orderNumberAlphabet[s.rand.Intn(len(orderNumberAlphabet))]
	}
	return string(buf)
}

func (s *checkoutService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"event":   event.Type,
			"error":   err.Error(),
		})
	}
}

func normaliseItemIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	if len(out) > maxCheckoutItems {
		return nil, fmt.Errorf("%w: too many items", ErrInvalidInput)
	}
	return out, nil
}

func validateAddress(addr domain.Address) error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(addr.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(addr.Street1) == "" {
		missing = append(missing, "street1")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if strings.TrimSpace(addr.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: shipping address missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

func snapshotItems(items []domain.Item) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.OrderItem{
			ItemID:        item.ID,
			Title:         item.Title,
			Brand:         item.Brand,
			PriceCents:    item.PriceCents,
			ShippingCents: item.ShippingCents,
			Condition:     item.Condition,
			ImageURL:      item.ImageURL,
			Quantity:      1,
			Attributes:    item.Attributes,
		})
	}
	return out
}
