package services

import (
	"context"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/payments"
	"github.com/fleamart/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "stub: not found"
	case e.conflict:
		return "stub: conflict"
	default:
		return "stub: unavailable"
	}
}

func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errRepoNotFound    = &stubRepoError{notFound: true}
	errRepoConflict    = &stubRepoError{conflict: true}
	errRepoUnavailable = &stubRepoError{unavailable: true}
)

type stubOrderRepository struct {
	insertFunc              func(ctx context.Context, order domain.Order) error
	updateFunc              func(ctx context.Context, order domain.Order, expect repositories.OrderPrecondition) error
	findByIDFunc            func(ctx context.Context, orderID string) (domain.Order, error)
	findByOrderNumberFunc   func(ctx context.Context, orderNumber string) (domain.Order, error)
	findByPaymentIntentFunc func(ctx context.Context, intentID string) (domain.Order, error)
	listFunc                func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFunc == nil {
		return nil
	}
	return s.insertFunc(ctx, order)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order, expect repositories.OrderPrecondition) error {
	if s.updateFunc == nil {
		return nil
	}
	return s.updateFunc(ctx, order, expect)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.findByIDFunc(ctx, orderID)
}

func (s *stubOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findByOrderNumberFunc == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.findByOrderNumberFunc(ctx, orderNumber)
}

func (s *stubOrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	if s.findByPaymentIntentFunc == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.findByPaymentIntentFunc(ctx, intentID)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFunc(ctx, filter)
}

type stubTransactionRepository struct {
	insertFunc              func(ctx context.Context, txn domain.Transaction) error
	updateStatusFunc        func(ctx context.Context, txnID string, status domain.TransactionStatus, update repositories.TransactionStatusUpdate) (domain.Transaction, error)
	findByIDFunc            func(ctx context.Context, txnID string) (domain.Transaction, error)
	findPayoutForOrderFunc  func(ctx context.Context, orderID string) (domain.Transaction, error)
	listByOrderFunc         func(ctx context.Context, orderID string) ([]domain.Transaction, error)
	listByTypeAndStatusFunc func(ctx context.Context, txnType domain.TransactionType, status domain.TransactionStatus, dateRange domain.RangeQuery[time.Time]) ([]domain.Transaction, error)
}

func (s *stubTransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	if s.insertFunc == nil {
		return nil
	}
	return s.insertFunc(ctx, txn)
}

func (s *stubTransactionRepository) UpdateStatus(ctx context.Context, txnID string, status domain.TransactionStatus, update repositories.TransactionStatusUpdate) (domain.Transaction, error) {
	if s.updateStatusFunc == nil {
		return domain.Transaction{}, errRepoNotFound
	}
	return s.updateStatusFunc(ctx, txnID, status, update)
}

func (s *stubTransactionRepository) FindByID(ctx context.Context, txnID string) (domain.Transaction, error) {
	if s.findByIDFunc == nil {
		return domain.Transaction{}, errRepoNotFound
	}
	return s.findByIDFunc(ctx, txnID)
}

func (s *stubTransactionRepository) FindPayoutForOrder(ctx context.Context, orderID string) (domain.Transaction, error) {
	if s.findPayoutForOrderFunc == nil {
		return domain.Transaction{}, errRepoNotFound
	}
	return s.findPayoutForOrderFunc(ctx, orderID)
}

func (s *stubTransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error) {
	if s.listByOrderFunc == nil {
		return nil, nil
	}
	return s.listByOrderFunc(ctx, orderID)
}

func (s *stubTransactionRepository) ListByTypeAndStatus(ctx context.Context, txnType domain.TransactionType, status domain.TransactionStatus, dateRange domain.RangeQuery[time.Time]) ([]domain.Transaction, error) {
	if s.listByTypeAndStatusFunc == nil {
		return nil, nil
	}
	return s.listByTypeAndStatusFunc(ctx, txnType, status, dateRange)
}

type stubItemRepository struct {
	findByIDFunc func(ctx context.Context, itemID string) (domain.Item, error)
	markSoldFunc func(ctx context.Context, itemID string, orderID string, soldAt time.Time) error
}

func (s *stubItemRepository) FindByID(ctx context.Context, itemID string) (domain.Item, error) {
	if s.findByIDFunc == nil {
		return domain.Item{}, errRepoNotFound
	}
	return s.findByIDFunc(ctx, itemID)
}

func (s *stubItemRepository) MarkSold(ctx context.Context, itemID string, orderID string, soldAt time.Time) error {
	if s.markSoldFunc == nil {
		return nil
	}
	return s.markSoldFunc(ctx, itemID, orderID, soldAt)
}

type stubWebhookEventRepository struct {
	markFunc   func(ctx context.Context, event domain.ProcessedWebhookEvent) error
	unmarkFunc func(ctx context.Context, eventID string) error
}

func (s *stubWebhookEventRepository) Mark(ctx context.Context, event domain.ProcessedWebhookEvent) error {
	if s.markFunc == nil {
		return nil
	}
	return s.markFunc(ctx, event)
}

func (s *stubWebhookEventRepository) Unmark(ctx context.Context, eventID string) error {
	if s.unmarkFunc == nil {
		return nil
	}
	return s.unmarkFunc(ctx, eventID)
}

type stubGateway struct {
	createIntentFunc  func(ctx context.Context, req payments.CreateIntentRequest) (payments.PaymentIntent, error)
	verifyWebhookFunc func(payload []byte, signature string) (payments.WebhookEvent, error)
	refundFunc        func(ctx context.Context, req payments.RefundRequest) (payments.RefundResult, error)
}

func (s *stubGateway) CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (payments.PaymentIntent, error) {
	if s.createIntentFunc == nil {
		return payments.PaymentIntent{ID: "pi_stub", ClientSecret: "secret_stub", Status: payments.IntentStatusPending}, nil
	}
	return s.createIntentFunc(ctx, req)
}

func (s *stubGateway) VerifyWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	if s.verifyWebhookFunc == nil {
		return payments.WebhookEvent{}, payments.ErrInvalidSignature
	}
	return s.verifyWebhookFunc(payload, signature)
}

func (s *stubGateway) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
	if s.refundFunc == nil {
		return payments.RefundResult{RefundID: "re_stub", Status: "pending"}, nil
	}
	return s.refundFunc(ctx, req)
}

type capturingPublisher struct {
	events []OrderEvent
	err    error
}

func (p *capturingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type stubLedgerService struct {
	recordPaymentFunc       func(ctx context.Context, order domain.Order, gatewayRef string, gatewayFeeCents int64) (domain.Transaction, error)
	recordFailedPaymentFunc func(ctx context.Context, order domain.Order, gatewayRef, failureCode, failureMessage string) (domain.Transaction, error)
	createPayoutFunc        func(ctx context.Context, order domain.Order) (domain.Transaction, error)
	recordRefundFunc        func(ctx context.Context, order domain.Order, amountCents int64, gatewayRef string) (domain.Transaction, error)
	settleRefundFunc        func(ctx context.Context, orderID, gatewayRef string) (domain.Transaction, error)
}

func (s *stubLedgerService) RecordPayment(ctx context.Context, order domain.Order, gatewayRef string, gatewayFeeCents int64) (domain.Transaction, error) {
	if s.recordPaymentFunc == nil {
		return domain.Transaction{}, nil
	}
	return s.recordPaymentFunc(ctx, order, gatewayRef, gatewayFeeCents)
}

func (s *stubLedgerService) RecordFailedPayment(ctx context.Context, order domain.Order, gatewayRef, failureCode, failureMessage string) (domain.Transaction, error) {
	if s.recordFailedPaymentFunc == nil {
		return domain.Transaction{}, nil
	}
	return s.recordFailedPaymentFunc(ctx, order, gatewayRef, failureCode, failureMessage)
}

func (s *stubLedgerService) CreatePayout(ctx context.Context, order domain.Order) (domain.Transaction, error) {
	if s.createPayoutFunc == nil {
		return domain.Transaction{}, nil
	}
	return s.createPayoutFunc(ctx, order)
}

func (s *stubLedgerService) RecordRefund(ctx context.Context, order domain.Order, amountCents int64, gatewayRef string) (domain.Transaction, error) {
	if s.recordRefundFunc == nil {
		return domain.Transaction{}, nil
	}
	return s.recordRefundFunc(ctx, order, amountCents, gatewayRef)
}

func (s *stubLedgerService) SettleRefund(ctx context.Context, orderID, gatewayRef string) (domain.Transaction, error) {
	if s.settleRefundFunc == nil {
		return domain.Transaction{}, nil
	}
	return s.settleRefundFunc(ctx, orderID, gatewayRef)
}

func (s *stubLedgerService) ListOrderTransactions(context.Context, domain.Actor, string) ([]domain.Transaction, error) {
	return nil, nil
}

func (s *stubLedgerService) Revenue(context.Context, domain.Actor, RevenueInput) (RevenueReport, error) {
	return RevenueReport{}, nil
}
