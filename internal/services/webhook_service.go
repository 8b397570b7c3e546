package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/payments"
	"github.com/fleamart/api/internal/repositories"
)

const (
	orderEventPaymentSucceeded = "order.payment.succeeded"
	orderEventPaymentFailed    = "order.payment.failed"
	orderEventRefundCompleted  = "order.refund.completed"
)

// WebhookServiceDeps bundles collaborators required to construct the webhook service.
type WebhookServiceDeps struct {
	Gateway       payments.Gateway
	Orders        repositories.OrderRepository
	WebhookEvents repositories.WebhookEventRepository
	Ledger        LedgerService
	Clock         func() time.Time
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type webhookService struct {
	gateway       payments.Gateway
	orders        repositories.OrderRepository
	webhookEvents repositories.WebhookEventRepository
	ledger        LedgerService
	clock         func() time.Time
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewWebhookService wires dependencies into a concrete WebhookService implementation.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("webhook service: payment gateway is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("webhook service: order repository is required")
	}
	if deps.WebhookEvents == nil {
		return nil, errors.New("webhook service: webhook event repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("webhook service: ledger service is required")
	}
	return &webhookService{
		gateway:       deps.Gateway,
		orders:        deps.Orders,
		webhookEvents: deps.WebhookEvents,
		ledger:        deps.Ledger,
		clock:         defaultClock(deps.Clock),
		events:        deps.Events,
		logger:        defaultLogger(deps.Logger),
	}, nil
}

// ProcessWebhook verifies the gateway signature and applies the event at most
// once. Redelivered events are acknowledged without re-applying, so one
// webhook produces exactly one ledger row no matter how often it arrives. A
// failed apply releases the event id again, so the gateway's redelivery gets
// a fresh attempt instead of being swallowed as a duplicate.
func (s *webhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
		}
		return err
	}

	if event.Type == payments.EventUnhandled {
		s.logger(ctx, "webhook.ignored", map[string]any{"eventId": event.ID})
		return nil
	}

	err = s.webhookEvents.Mark(ctx, domain.ProcessedWebhookEvent{
		EventID:     event.ID,
		IntentID:    event.IntentID,
		ProcessedAt: s.clock(),
	})
	if err != nil {
		if isRepoConflict(err) {
			s.logger(ctx, "webhook.duplicate", map[string]any{"eventId": event.ID})
			return nil
		}
		return err
	}

	if err := s.apply(ctx, event); err != nil {
		if unmarkErr := s.webhookEvents.Unmark(ctx, event.ID); unmarkErr != nil {
			s.logger(ctx, "webhook.unmark_failed", map[string]any{
				"eventId": event.ID,
				"error":   unmarkErr.Error(),
			})
		}
		return err
	}
	return nil
}

func (s *webhookService) apply(ctx context.Context, event payments.WebhookEvent) error {
	order, err := s.orders.FindByPaymentIntent(ctx, event.IntentID)
	if err != nil {
		if isRepoNotFound(err) {
			// Not an order of ours; acknowledge so the gateway stops retrying.
			s.logger(ctx, "webhook.orphan", map[string]any{
				"eventId":  event.ID,
				"intentId": event.IntentID,
			})
			return nil
		}
		return err
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, order, event)
	case payments.EventPaymentFailed:
		return s.applyPaymentFailed(ctx, order, event)
	case payments.EventRefundCompleted:
		return s.applyRefundCompleted(ctx, order, event)
	}
	return nil
}

func (s *webhookService) applyPaymentSucceeded(ctx context.Context, order domain.Order, event payments.WebhookEvent) error {
	if order.PaymentStatus != domain.PaymentStatusPaid {
		now := s.clock()
		previous := order.PaymentStatus
		order.PaymentStatus = domain.PaymentStatusPaid
		order.UpdatedAt = now
		err := s.orders.Update(ctx, order, repositories.OrderPrecondition{PaymentStatus: &previous})
		if err != nil && !isRepoConflict(err) {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
	}

	if _, err := s.ledger.RecordPayment(ctx, order, event.IntentID, event.GatewayFeeCents); err != nil {
		return err
	}

	s.publish(ctx, order, orderEventPaymentSucceeded, event.OccurredAt)
	return nil
}

func (s *webhookService) applyPaymentFailed(ctx context.Context, order domain.Order, event payments.WebhookEvent) error {
	if order.PaymentStatus == domain.PaymentStatusPending {
		now := s.clock()
		previous := order.PaymentStatus
		order.PaymentStatus = domain.PaymentStatusFailed
		order.UpdatedAt = now
		err := s.orders.Update(ctx, order, repositories.OrderPrecondition{PaymentStatus: &previous})
		if err != nil && !isRepoConflict(err) {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
	}

	if _, err := s.ledger.RecordFailedPayment(ctx, order, event.IntentID, event.FailureCode, event.FailureMessage); err != nil {
		return err
	}

	s.publish(ctx, order, orderEventPaymentFailed, event.OccurredAt)
	return nil
}

func (s *webhookService) applyRefundCompleted(ctx context.Context, order domain.Order, event payments.WebhookEvent) error {
	now := s.clock()

	fullyRefunded := event.AmountCents >= order.Totals.TotalCents
	changed := false
	if fullyRefunded && order.PaymentStatus == domain.PaymentStatusPaid {
		order.PaymentStatus = domain.PaymentStatusRefunded
		changed = true
	}
	if order.Refund != nil && order.Refund.Status == domain.RefundStatusPending {
		refund := *order.Refund
		refund.Status = domain.RefundStatusCompleted
		refund.ProcessedAt = &now
		order.Refund = &refund
		changed = true
	}
	if changed {
		order.UpdatedAt = now
		status := order.Status
		err := s.orders.Update(ctx, order, repositories.OrderPrecondition{Status: &status})
		if err != nil && !isRepoConflict(err) {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
	}

	if _, err := s.ledger.SettleRefund(ctx, order.ID, event.RefundID); err != nil {
		if !errors.Is(err, ErrTransactionNotFound) {
			return err
		}
		// No pending row means the refund originated at the gateway; record
		// it so the ledger still reflects the movement.
		if _, err := s.ledger.RecordRefund(ctx, order, event.AmountCents, event.RefundID); err != nil {
			return err
		}
		if _, err := s.ledger.SettleRefund(ctx, order.ID, event.RefundID); err != nil {
			return err
		}
	}

	s.publish(ctx, order, orderEventRefundCompleted, event.OccurredAt)
	return nil
}

func (s *webhookService) publish(ctx context.Context, order domain.Order, eventType string, occurredAt time.Time) {
	if s.events == nil {
		return
	}
	if occurredAt.IsZero() {
		occurredAt = s.clock()
	}
	err := s.events.PublishOrderEvent(ctx, OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		CurrentStatus: string(order.Status),
		ActorRole:     string(domain.RoleSystem),
		OccurredAt:    occurredAt,
	})
	if err != nil {
		s.logger(ctx, "webhook.event.publish_failed", map[string]any{
			"orderId": order.ID,
			"event":   eventType,
			"error":   err.Error(),
		})
	}
}
