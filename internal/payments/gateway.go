package payments

import (
	"context"
	"errors"
	"time"
)

// Errors returned by gateway implementations.
var (
	// ErrInvalidSignature indicates the webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrIntentNotFound indicates the gateway does not know the referenced intent.
	ErrIntentNotFound = errors.New("payments: payment intent not found")
	// ErrGatewayUnavailable indicates a transient gateway outage after retries were exhausted.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

// IntentStatus is the gateway-side settlement state of a payment intent.
type IntentStatus string

const (
	// IntentStatusPending means the intent awaits buyer action or settlement.
	IntentStatusPending IntentStatus = "pending"
	// IntentStatusSucceeded means the charge settled.
	IntentStatusSucceeded IntentStatus = "succeeded"
	// IntentStatusFailed means the charge terminally failed.
	IntentStatusFailed IntentStatus = "failed"
)

// EventType classifies webhook events into the cases the order flow handles.
type EventType string

const (
	// EventPaymentSucceeded signals the buyer's charge settled.
	EventPaymentSucceeded EventType = "payment_succeeded"
	// EventPaymentFailed signals the buyer's charge terminally failed.
	EventPaymentFailed EventType = "payment_failed"
	// EventRefundCompleted signals a refund settled.
	EventRefundCompleted EventType = "refund_completed"
	// EventUnhandled covers event types the order flow ignores.
	EventUnhandled EventType = "unhandled"
)

// CreateIntentRequest asks the gateway to open a charge for an order total.
type CreateIntentRequest struct {
	OrderID        string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentIntent is the gateway handle returned at checkout.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountCents  int64
	Currency     string
}

// WebhookEvent is a verified, classified gateway notification.
type WebhookEvent struct {
	ID              string
	Type            EventType
	IntentID        string
	AmountCents     int64
	GatewayFeeCents int64
	Currency        string
	FailureCode     string
	FailureMessage  string
	RefundID        string
	OccurredAt      time.Time
}

// RefundRequest asks the gateway to return money to the buyer.
type RefundRequest struct {
	IntentID       string
	AmountCents    int64
	Reason         string
	IdempotencyKey string
}

// RefundResult reports the refund handle issued by the gateway.
type RefundResult struct {
	RefundID    string
	Status      IntentStatus
	AmountCents int64
}

// Gateway abstracts the payment service provider used for charges, webhook
// verification, and refunds.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, error)
	VerifyWebhook(payload []byte, signature string) (WebhookEvent, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)
