package services

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/fleamart/api/internal/repositories"
)

const (
	orderIDPrefix       = "ord_"
	transactionIDPrefix = "txn_"
	eventIDPrefix       = "evt_"
)

var (
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("orders: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("orders: not found")
	// ErrForbidden indicates the caller's role may never perform the operation.
	ErrForbidden = errors.New("orders: forbidden")
	// ErrInvalidTransition indicates the order's current state rejects the operation.
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	// ErrMissingTracking indicates a shipment without carrier or tracking number.
	ErrMissingTracking = errors.New("orders: missing tracking info")
	// ErrConflict indicates a concurrent update won the race or a duplicate write.
	ErrConflict = errors.New("orders: conflict")
	// ErrItemUnavailable indicates a listing is no longer purchasable.
	ErrItemUnavailable = errors.New("checkout: item unavailable")
	// ErrPaymentGateway indicates the payment gateway rejected or could not serve the request.
	ErrPaymentGateway = errors.New("checkout: payment gateway failure")
	// ErrTransactionNotFound indicates the ledger row could not be located.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrRefundExceedsCharge indicates a refund larger than the captured amount.
	ErrRefundExceedsCharge = errors.New("ledger: refund exceeds captured amount")
	// ErrWebhookSignature indicates the webhook payload failed verification.
	ErrWebhookSignature = errors.New("webhook: invalid signature")
)

var textPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup from caller-provided free text and bounds its length.
func sanitizeText(value string, limit int) string {
	value = strings.TrimSpace(textPolicy.Sanitize(value))
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}

// roundedFee applies a fractional rate to an amount in cents, rounding half up.
func roundedFee(amountCents int64, rate float64) int64 {
	if amountCents <= 0 || rate <= 0 {
		return 0
	}
	return int64(math.Round(float64(amountCents) * rate))
}

func defaultClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC()
	}
}

func defaultIDGenerator(gen func() string) func() string {
	if gen != nil {
		return gen
	}
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return func() string {
		return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
	}
}

func defaultLogger(logger func(context.Context, string, map[string]any)) func(context.Context, string, map[string]any) {
	if logger != nil {
		return logger
	}
	return func(context.Context, string, map[string]any) {}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// mapRepositoryError translates repository error categories into service sentinels.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return notFound
			}
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrConflict
		}
	}
	return err
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
