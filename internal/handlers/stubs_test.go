package handlers

import (
	"context"
	"errors"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/services"
)

type stubCheckoutService struct {
	createFn func(context.Context, domain.Actor, services.CreateOrderInput) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, actor domain.Actor, input services.CreateOrderInput) (services.CheckoutResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, actor, input)
	}
	return services.CheckoutResult{}, errors.New("not implemented")
}

type stubOrderService struct {
	confirmFn  func(context.Context, domain.Actor, string) (domain.Order, error)
	shipFn     func(context.Context, domain.Actor, string, services.ShipInput) (domain.Order, error)
	deliverFn  func(context.Context, domain.Actor, string) (domain.Order, error)
	completeFn func(context.Context, domain.Actor, string) (domain.Order, error)
	cancelFn   func(context.Context, domain.Actor, string, services.CancelInput) (domain.Order, error)
	disputeFn  func(context.Context, domain.Actor, string, services.DisputeInput) (domain.Order, error)
	resolveFn  func(context.Context, domain.Actor, string, services.ResolveDisputeInput) (domain.Order, error)
	addNoteFn  func(context.Context, domain.Actor, string, services.AddNoteInput) (domain.Order, error)
}

func (s *stubOrderService) Confirm(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, actor, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Ship(ctx context.Context, actor domain.Actor, orderID string, input services.ShipInput) (domain.Order, error) {
	if s.shipFn != nil {
		return s.shipFn(ctx, actor, orderID, input)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Deliver(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if s.deliverFn != nil {
		return s.deliverFn(ctx, actor, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Complete(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, actor, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, actor domain.Actor, orderID string, input services.CancelInput) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, actor, orderID, input)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Dispute(ctx context.Context, actor domain.Actor, orderID string, input services.DisputeInput) (domain.Order, error) {
	if s.disputeFn != nil {
		return s.disputeFn(ctx, actor, orderID, input)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ResolveDispute(ctx context.Context, actor domain.Actor, orderID string, input services.ResolveDisputeInput) (domain.Order, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, actor, orderID, input)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) AddNote(ctx context.Context, actor domain.Actor, orderID string, input services.AddNoteInput) (domain.Order, error) {
	if s.addNoteFn != nil {
		return s.addNoteFn(ctx, actor, orderID, input)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubOrderQueryService struct {
	getFn  func(context.Context, domain.Actor, string) (domain.Order, error)
	listFn func(context.Context, domain.Actor, services.ListOrdersInput) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderQueryService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderQueryService) ListOrders(ctx context.Context, actor domain.Actor, input services.ListOrdersInput) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, input)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubLedgerService struct {
	listFn    func(context.Context, domain.Actor, string) ([]domain.Transaction, error)
	revenueFn func(context.Context, domain.Actor, services.RevenueInput) (services.RevenueReport, error)
}

func (s *stubLedgerService) RecordPayment(context.Context, domain.Order, string, int64) (domain.Transaction, error) {
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) RecordFailedPayment(context.Context, domain.Order, string, string, string) (domain.Transaction, error) {
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) CreatePayout(context.Context, domain.Order) (domain.Transaction, error) {
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) RecordRefund(context.Context, domain.Order, int64, string) (domain.Transaction, error) {
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) SettleRefund(context.Context, string, string) (domain.Transaction, error) {
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) ListOrderTransactions(ctx context.Context, actor domain.Actor, orderID string) ([]domain.Transaction, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, orderID)
	}
	return nil, nil
}

func (s *stubLedgerService) Revenue(ctx context.Context, actor domain.Actor, input services.RevenueInput) (services.RevenueReport, error) {
	if s.revenueFn != nil {
		return s.revenueFn(ctx, actor, input)
	}
	return services.RevenueReport{}, nil
}

type stubWebhookService struct {
	processFn func(context.Context, []byte, string) error
}

func (s *stubWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.processFn != nil {
		return s.processFn(ctx, payload, signature)
	}
	return nil
}

func sampleOrder() domain.Order {
	created := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_123",
		OrderNumber: "FM-20250305-A1B2C3",
		BuyerID:     "buyer-1",
		SellerID:    "seller-1",
		Items: []domain.OrderItem{
			{
				ItemID:     "item-1",
				Title:      "Vintage Denim Jacket",
				PriceCents: 5000,
				Condition:  domain.ConditionGood,
				Quantity:   1,
				Attributes: domain.CategoryAttributes{
					Category: domain.CategoryApparel,
					Apparel:  &domain.ApparelAttributes{Size: "M", Color: "indigo"},
				},
			},
		},
		Totals: domain.OrderTotals{
			SubtotalCents:   5000,
			ShippingCents:   599,
			ServiceFeeCents: 500,
			TotalCents:      5599,
		},
		Currency:      "usd",
		PaymentStatus: domain.PaymentStatusPending,
		ShippingAddress: domain.Address{
			FullName:   "Jordan Doe",
			Street1:    "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		Status:    domain.OrderStatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
