package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleamart/api/internal/platform/httpx"
	"github.com/fleamart/api/internal/services"
)

// Stripe signs at most 64KB of payload; anything larger is not a real event.
const maxWebhookBodyBytes = 64 << 10

// WebhookHandler terminates payment gateway callbacks.
type WebhookHandler struct {
	webhooks services.WebhookService
}

// NewWebhookHandler constructs the webhook handler.
func NewWebhookHandler(webhooks services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Routes registers the gateway callback endpoints on the provided router.
func (h *WebhookHandler) Routes(r chi.Router) {
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandler) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_argument", "unable to read webhook payload", http.StatusBadRequest))
		return
	}

	if err := h.webhooks.ProcessWebhook(ctx, payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]string{"received": "true"})
}
