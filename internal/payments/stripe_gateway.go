package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const (
	createIntentAttempts = 3
	retryBaseDelay       = 200 * time.Millisecond
)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripeIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        Logger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeGateway implements Gateway using Stripe APIs.
type StripeGateway struct {
	api           stripeClients
	webhookSecret string
	clock         func() time.Time
	logger        Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewStripeGateway constructs a Stripe-backed Gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

// CreateIntent opens a Stripe Payment Intent for the order total. Transient
// gateway failures are retried a bounded number of times before surfacing
// ErrGatewayUnavailable.
func (g *StripeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, error) {
	if g == nil {
		return PaymentIntent{}, errors.New("stripe: gateway is nil")
	}
	if req.AmountCents <= 0 {
		return PaymentIntent{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	params.Metadata = map[string]string{"orderId": req.OrderID}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	var intent *stripe.PaymentIntent
	var err error
	for attempt := 1; attempt <= createIntentAttempts; attempt++ {
		intent, err = g.api.intents.New(params)
		if err == nil {
			break
		}
		if !isTransientStripeError(err) || attempt == createIntentAttempts {
			break
		}
		g.logger(ctx, "payments.stripe.intent.retry", map[string]any{
			"orderId": req.OrderID,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if sleepErr := g.sleep(ctx, retryBaseDelay<<(attempt-1)); sleepErr != nil {
			return PaymentIntent{}, sleepErr
		}
	}
	if err != nil {
		if isTransientStripeError(err) {
			return PaymentIntent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return PaymentIntent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
		"amount":        intent.Amount,
	})

	return PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       mapIntentStatus(intent.Status),
		AmountCents:  intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
	}, nil
}

// VerifyWebhook checks the Stripe signature and classifies the event for the
// order flow. Payloads failing verification return ErrInvalidSignature.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if g == nil {
		return WebhookEvent{}, errors.New("stripe: gateway is nil")
	}

	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := WebhookEvent{
		ID:         event.ID,
		Type:       EventUnhandled,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode payment intent event %s: %w", event.ID, err)
		}
		out.IntentID = intent.ID
		out.AmountCents = intent.Amount
		out.Currency = strings.ToUpper(string(intent.Currency))
		if event.Type == "payment_intent.succeeded" {
			out.Type = EventPaymentSucceeded
			out.GatewayFeeCents = extractGatewayFee(&intent)
		} else {
			out.Type = EventPaymentFailed
			if intent.LastPaymentError != nil {
				out.FailureCode = string(intent.LastPaymentError.Code)
				out.FailureMessage = intent.LastPaymentError.Msg
			}
		}
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode charge event %s: %w", event.ID, err)
		}
		out.Type = EventRefundCompleted
		out.AmountCents = charge.AmountRefunded
		out.Currency = strings.ToUpper(string(charge.Currency))
		if charge.PaymentIntent != nil {
			out.IntentID = charge.PaymentIntent.ID
		}
		if len(charge.Refunds.Data) > 0 {
			out.RefundID = charge.Refunds.Data[0].ID
		}
	}

	return out, nil
}

// Refund returns money to the buyer against the original payment intent.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if g == nil {
		return RefundResult{}, errors.New("stripe: gateway is nil")
	}
	if strings.TrimSpace(req.IntentID) == "" {
		return RefundResult{}, errors.New("stripe: intent id is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.AmountCents > 0 {
		params.Amount = stripe.Int64(req.AmountCents)
	}
	if reason := mapRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return RefundResult{}, fmt.Errorf("%w: %s", ErrIntentNotFound, req.IntentID)
		}
		if isTransientStripeError(err) {
			return RefundResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return RefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": req.IntentID,
		"refund":        refund.ID,
		"amount":        refund.Amount,
	})

	status := IntentStatusPending
	switch refund.Status {
	case stripe.RefundStatusSucceeded:
		status = IntentStatusSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		status = IntentStatusFailed
	}

	return RefundResult{
		RefundID:    refund.ID,
		Status:      status,
		AmountCents: refund.Amount,
	}, nil
}

func mapIntentStatus(status stripe.PaymentIntentStatus) IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentStatusFailed
	default:
		return IntentStatusPending
	}
}

// extractGatewayFee reads the processing fee from the expanded balance
// transaction when the webhook payload carries one. Events without the
// expansion report zero and the fee is reconciled later.
func extractGatewayFee(intent *stripe.PaymentIntent) int64 {
	if intent == nil || intent.LatestCharge == nil {
		return 0
	}
	if bt := intent.LatestCharge.BalanceTransaction; bt != nil {
		return bt.Fee
	}
	return 0
}

func mapRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func isTransientStripeError(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 {
			return true
		}
		return stripeErr.Type == stripe.ErrorTypeAPI
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Gateway = (*StripeGateway)(nil)
