package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/fleamart/api/internal/domain"
	pfirestore "github.com/fleamart/api/internal/platform/firestore"
	"github.com/fleamart/api/internal/repositories"
)

const webhookEventCollection = "webhook_events"

// WebhookEventRepository records processed gateway event ids. The event id is
// the document id, so a redelivered event fails its create with a conflict.
type WebhookEventRepository struct {
	base *pfirestore.BaseRepository[webhookEventDocument]
}

// NewWebhookEventRepository constructs a Firestore-backed webhook event repository.
func NewWebhookEventRepository(provider *pfirestore.Provider) (*WebhookEventRepository, error) {
	if provider == nil {
		return nil, errors.New("webhook event repository requires firestore provider")
	}
	return &WebhookEventRepository{
		base: pfirestore.NewBaseRepository[webhookEventDocument](provider, webhookEventCollection, nil),
	}, nil
}

// Mark records the event id as processed, conflicting on redelivery.
func (r *WebhookEventRepository) Mark(ctx context.Context, event domain.ProcessedWebhookEvent) error {
	if r == nil || r.base == nil {
		return errors.New("webhook event repository not initialised")
	}
	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		return errors.New("webhook event repository: event id is required")
	}

	processedAt := event.ProcessedAt.UTC()
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	_, err := r.base.Create(ctx, eventID, webhookEventDocument{
		IntentID:    strings.TrimSpace(event.IntentID),
		ProcessedAt: processedAt,
	})
	return err
}

// Unmark releases a recorded event id so a redelivery is applied again.
func (r *WebhookEventRepository) Unmark(ctx context.Context, eventID string) error {
	if r == nil || r.base == nil {
		return errors.New("webhook event repository not initialised")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return errors.New("webhook event repository: event id is required")
	}
	return r.base.Delete(ctx, eventID)
}

type webhookEventDocument struct {
	IntentID    string    `firestore:"intentId,omitempty"`
	ProcessedAt time.Time `firestore:"processedAt"`
}

var _ repositories.WebhookEventRepository = (*WebhookEventRepository)(nil)
