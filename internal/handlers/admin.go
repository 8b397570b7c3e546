package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/services"
)

// AdminHandler exposes platform-staff operations: dispute resolution and
// revenue reporting. The router mounts it behind the admin middleware.
type AdminHandler struct {
	orders services.OrderService
	ledger services.LedgerService
}

// NewAdminHandler constructs the admin handler.
func NewAdminHandler(orders services.OrderService, ledger services.LedgerService) *AdminHandler {
	return &AdminHandler{orders: orders, ledger: ledger}
}

// Routes registers the admin endpoints on the provided router.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Post("/orders/{orderID}:resolve-dispute", h.resolveDispute)
	r.Get("/revenue", h.revenue)
}

type resolveDisputePayload struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

func (h *AdminHandler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload resolveDisputePayload
	if !decodeBody(w, r, maxOrderBodyBytes, &payload) {
		return
	}

	order, err := h.orders.ResolveDispute(ctx, actor, chi.URLParam(r, "orderID"), services.ResolveDisputeInput{
		Outcome: domain.DisputeOutcome(payload.Outcome),
		Note:    payload.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newOrderView(order))
}

func (h *AdminHandler) revenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	values := r.URL.Query()
	from, err := parseTimeParam(values.Get("from"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	to, err := parseTimeParam(values.Get("to"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	report, err := h.ledger.Revenue(ctx, actor, services.RevenueInput{From: from, To: to})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newRevenueView(report))
}
