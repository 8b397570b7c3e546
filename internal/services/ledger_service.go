package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/repositories"
)

// LedgerServiceDeps bundles collaborators required to construct the ledger service.
type LedgerServiceDeps struct {
	Transactions repositories.TransactionRepository
	Orders       repositories.OrderRepository
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type ledgerService struct {
	transactions repositories.TransactionRepository
	orders       repositories.OrderRepository
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewLedgerService wires dependencies into a concrete LedgerService implementation.
func NewLedgerService(deps LedgerServiceDeps) (LedgerService, error) {
	if deps.Transactions == nil {
		return nil, errors.New("ledger service: transaction repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("ledger service: order repository is required")
	}
	return &ledgerService{
		transactions: deps.Transactions,
		orders:       deps.Orders,
		clock:        defaultClock(deps.Clock),
		newID:        defaultIDGenerator(deps.IDGenerator),
		logger:       defaultLogger(deps.Logger),
	}, nil
}

// RecordPayment writes the settled charge into the ledger. The net amount is
// computed once here: charge minus platform fee minus gateway fee. A second
// call for the same order returns the existing row unchanged.
func (s *ledgerService) RecordPayment(ctx context.Context, order domain.Order, gatewayRef string, gatewayFeeCents int64) (domain.Transaction, error) {
	if existing, found, err := s.findByType(ctx, order.ID, domain.TransactionTypePayment); err != nil {
		return domain.Transaction{}, err
	} else if found {
		return existing, nil
	}

	now := s.clock()
	amount := order.Totals.TotalCents
	platformFee := order.Totals.ServiceFeeCents
	txn := domain.Transaction{
		ID:               transactionIDPrefix + s.newID(),
		OrderID:          order.ID,
		BuyerID:          order.BuyerID,
		SellerID:         order.SellerID,
		Type:             domain.TransactionTypePayment,
		AmountCents:      amount,
		PlatformFeeCents: platformFee,
		GatewayFeeCents:  gatewayFeeCents,
		NetAmountCents:   amount - platformFee - gatewayFeeCents,
		Currency:         order.Currency,
		Status:           domain.TransactionStatusCompleted,
		GatewayRef:       gatewayRef,
		CreatedAt:        now,
		UpdatedAt:        now,
		CompletedAt:      &now,
	}

	if err := s.insert(ctx, txn); err != nil {
		return domain.Transaction{}, err
	}
	s.logger(ctx, "ledger.payment.recorded", map[string]any{
		"orderId":       order.ID,
		"transactionId": txn.ID,
		"amount":        txn.AmountCents,
		"net":           txn.NetAmountCents,
	})
	return txn, nil
}

// RecordFailedPayment writes a terminal failed charge row for audit.
func (s *ledgerService) RecordFailedPayment(ctx context.Context, order domain.Order, gatewayRef, failureCode, failureMessage string) (domain.Transaction, error) {
	now := s.clock()
	txn := domain.Transaction{
		ID:             transactionIDPrefix + s.newID(),
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		Type:           domain.TransactionTypePayment,
		AmountCents:    order.Totals.TotalCents,
		NetAmountCents: 0,
		Currency:       order.Currency,
		Status:         domain.TransactionStatusFailed,
		GatewayRef:     gatewayRef,
		FailureCode:    failureCode,
		FailureMessage: failureMessage,
		CreatedAt:      now,
		UpdatedAt:      now,
		CompletedAt:    &now,
	}
	if err := s.insert(ctx, txn); err != nil {
		return domain.Transaction{}, err
	}
	return txn, nil
}

// CreatePayout opens the seller disbursement for a completed order. The
// payout amount is the buyer total minus the platform service fee, fixed at
// order creation. Exactly one payout row ever exists per order: when one is
// already present it is returned as-is, whatever its settlement state.
func (s *ledgerService) CreatePayout(ctx context.Context, order domain.Order) (domain.Transaction, error) {
	existing, err := s.transactions.FindPayoutForOrder(ctx, order.ID)
	if err == nil {
		return existing, nil
	}
	if !isRepoNotFound(err) {
		return domain.Transaction{}, err
	}

	now := s.clock()
	amount := order.Totals.TotalCents - order.Totals.ServiceFeeCents
	txn := domain.Transaction{
		ID:             transactionIDPrefix + s.newID(),
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		Type:           domain.TransactionTypePayout,
		AmountCents:    amount,
		NetAmountCents: amount,
		Currency:       order.Currency,
		Status:         domain.TransactionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.insert(ctx, txn); err != nil {
		// A concurrent completion may have won the insert race.
		if errors.Is(err, ErrConflict) {
			if existing, err := s.transactions.FindPayoutForOrder(ctx, order.ID); err == nil {
				return existing, nil
			}
		}
		return domain.Transaction{}, err
	}
	s.logger(ctx, "ledger.payout.created", map[string]any{
		"orderId":       order.ID,
		"transactionId": txn.ID,
		"amount":        txn.AmountCents,
	})
	return txn, nil
}

// RecordRefund opens a pending refund row. The refund is capped at the
// captured charge minus anything already refunded or in flight.
func (s *ledgerService) RecordRefund(ctx context.Context, order domain.Order, amountCents int64, gatewayRef string) (domain.Transaction, error) {
	if amountCents <= 0 {
		return domain.Transaction{}, fmt.Errorf("%w: refund amount must be positive", ErrInvalidInput)
	}

	rows, err := s.transactions.ListByOrder(ctx, order.ID)
	if err != nil {
		return domain.Transaction{}, err
	}

	var captured, refunded int64
	for _, row := range rows {
		switch row.Type {
		case domain.TransactionTypePayment:
			if row.Status == domain.TransactionStatusCompleted {
				captured += row.AmountCents
			}
		case domain.TransactionTypeRefund:
			if row.Status != domain.TransactionStatusFailed && row.Status != domain.TransactionStatusCancelled {
				refunded += row.AmountCents
			}
		}
	}
	if amountCents+refunded > captured {
		return domain.Transaction{}, fmt.Errorf("%w: %d over %d captured", ErrRefundExceedsCharge, amountCents+refunded, captured)
	}

	now := s.clock()
	txn := domain.Transaction{
		ID:             transactionIDPrefix + s.newID(),
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		Type:           domain.TransactionTypeRefund,
		AmountCents:    amountCents,
		NetAmountCents: amountCents,
		Currency:       order.Currency,
		Status:         domain.TransactionStatusPending,
		GatewayRef:     gatewayRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.insert(ctx, txn); err != nil {
		return domain.Transaction{}, err
	}
	s.logger(ctx, "ledger.refund.recorded", map[string]any{
		"orderId":       order.ID,
		"transactionId": txn.ID,
		"amount":        amountCents,
	})
	return txn, nil
}

// SettleRefund completes the pending refund row once the gateway confirms it.
func (s *ledgerService) SettleRefund(ctx context.Context, orderID, gatewayRef string) (domain.Transaction, error) {
	rows, err := s.transactions.ListByOrder(ctx, orderID)
	if err != nil {
		return domain.Transaction{}, err
	}
	for _, row := range rows {
		if row.Type != domain.TransactionTypeRefund || row.Status.IsTerminal() {
			continue
		}
		now := s.clock()
		updated, err := s.transactions.UpdateStatus(ctx, row.ID, domain.TransactionStatusCompleted, repositories.TransactionStatusUpdate{
			GatewayRef:  gatewayRef,
			CompletedAt: &now,
		})
		if err != nil {
			return domain.Transaction{}, mapRepositoryError(err, ErrTransactionNotFound)
		}
		return updated, nil
	}
	return domain.Transaction{}, fmt.Errorf("%w: no pending refund for order %s", ErrTransactionNotFound, orderID)
}

// ListOrderTransactions returns the ledger rows for an order the caller is a
// party to. Admins can read any order's ledger.
func (s *ledgerService) ListOrderTransactions(ctx context.Context, actor domain.Actor, orderID string) ([]domain.Transaction, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrOrderNotFound)
	}
	if err := requireParty(actor, order); err != nil {
		return nil, err
	}
	return s.transactions.ListByOrder(ctx, orderID)
}

// Revenue aggregates platform earnings over the window. Payments whose order
// has a settled refund are excluded entirely rather than netted.
func (s *ledgerService) Revenue(ctx context.Context, actor domain.Actor, input RevenueInput) (RevenueReport, error) {
	if actor.Role != domain.RoleAdmin {
		return RevenueReport{}, fmt.Errorf("%w: revenue reporting is admin-only", ErrForbidden)
	}

	dateRange := domain.RangeQuery[time.Time]{From: input.From, To: input.To}
	payments, err := s.transactions.ListByTypeAndStatus(ctx, domain.TransactionTypePayment, domain.TransactionStatusCompleted, dateRange)
	if err != nil {
		return RevenueReport{}, err
	}
	refunds, err := s.transactions.ListByTypeAndStatus(ctx, domain.TransactionTypeRefund, domain.TransactionStatusCompleted, domain.RangeQuery[time.Time]{})
	if err != nil {
		return RevenueReport{}, err
	}

	refundedOrders := make(map[string]int64, len(refunds))
	for _, refund := range refunds {
		refundedOrders[refund.OrderID] += refund.AmountCents
	}

	report := RevenueReport{
		From:        input.From,
		To:          input.To,
		GeneratedAt: s.clock(),
	}
	for _, payment := range payments {
		if report.Currency == "" {
			report.Currency = payment.Currency
		}
		if refunded, ok := refundedOrders[payment.OrderID]; ok {
			report.RefundedPayments++
			report.RefundedCents += refunded
			continue
		}
		report.PaymentCount++
		report.GrossSalesCents += payment.AmountCents
		report.ServiceFeeCents += payment.PlatformFeeCents
		report.GatewayFeeCents += payment.GatewayFeeCents
	}
	report.NetRevenueCents = report.ServiceFeeCents - report.GatewayFeeCents
	return report, nil
}

func (s *ledgerService) findByType(ctx context.Context, orderID string, txnType domain.TransactionType) (domain.Transaction, bool, error) {
	rows, err := s.transactions.ListByOrder(ctx, orderID)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	for _, row := range rows {
		if row.Type == txnType && row.Status == domain.TransactionStatusCompleted {
			return row, true, nil
		}
	}
	return domain.Transaction{}, false, nil
}

func (s *ledgerService) insert(ctx context.Context, txn domain.Transaction) error {
	if err := s.transactions.Insert(ctx, txn); err != nil {
		return mapRepositoryError(err, ErrTransactionNotFound)
	}
	return nil
}
