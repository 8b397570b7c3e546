package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/platform/auth"
	"github.com/fleamart/api/internal/platform/httpx"
	"github.com/fleamart/api/internal/platform/pagination"
	"github.com/fleamart/api/internal/services"
)

const maxOrderBodyBytes = 1 << 20

// OrderHandler exposes checkout, the fulfilment state machine, and order reads.
type OrderHandler struct {
	checkout services.CheckoutService
	orders   services.OrderService
	queries  services.OrderQueryService
	ledger   services.LedgerService
}

// NewOrderHandler constructs the order handler.
func NewOrderHandler(checkout services.CheckoutService, orders services.OrderService, queries services.OrderQueryService, ledger services.LedgerService) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders, queries: queries, ledger: ledger}
}

// Routes registers the order endpoints on the provided router.
func (h *OrderHandler) Routes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/transactions", h.listTransactions)
	r.Post("/{orderID}/notes", h.addNote)
	r.Post("/{orderID}:confirm", h.confirmOrder)
	r.Post("/{orderID}:ship", h.shipOrder)
	r.Post("/{orderID}:deliver", h.deliverOrder)
	r.Post("/{orderID}:complete", h.completeOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:dispute", h.disputeOrder)
}

type createOrderPayload struct {
	ItemIDs         []string       `json:"itemIds"`
	ShippingAddress addressPayload `json:"shippingAddress"`
	Note            string         `json:"note"`
}

type addressPayload struct {
	FullName   string  `json:"fullName"`
	Street1    string  `json:"street1"`
	Street2    *string `json:"street2"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone"`
}

type shipOrderPayload struct {
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"trackingNumber"`
	TrackingURL       *string    `json:"trackingUrl"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

type cancelOrderPayload struct {
	Reason string `json:"reason"`
}

type disputeOrderPayload struct {
	Reason string `json:"reason"`
}

type addNotePayload struct {
	Body string `json:"body"`
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload createOrderPayload
	if !decodeBody(w, r, maxOrderBodyBytes, &payload) {
		return
	}

	result, err := h.checkout.CreateOrder(ctx, actor, services.CreateOrderInput{
		ItemIDs:         payload.ItemIDs,
		ShippingAddress: domain.Address(payload.ShippingAddress),
		Note:            payload.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusCreated, checkoutView{
		Order:        newOrderView(result.Order),
		ClientSecret: result.ClientSecret,
	})
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	order, err := h.queries.GetOrder(ctx, actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newOrderView(order))
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	input, err := parseListOrdersQuery(r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	page, err := h.queries.ListOrders(ctx, actor, input)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	view := orderListView{
		Orders:        make([]orderView, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		view.Orders = append(view.Orders, newOrderView(order))
	}
	writeJSON(ctx, w, http.StatusOK, view)
}

func (h *OrderHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	rows, err := h.ledger.ListOrderTransactions(ctx, actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	view := transactionListView{Transactions: make([]transactionView, 0, len(rows))}
	for _, row := range rows {
		view.Transactions = append(view.Transactions, newTransactionView(row))
	}
	writeJSON(ctx, w, http.StatusOK, view)
}

func (h *OrderHandler) addNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload addNotePayload
	if !decodeBody(w, r, maxOrderBodyBytes, &payload) {
		return
	}

	order, err := h.orders.AddNote(ctx, actor, chi.URLParam(r, "orderID"), services.AddNoteInput{Body: payload.Body})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, newOrderView(order))
}

func (h *OrderHandler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.Confirm(r.Context(), actor, orderID)
	})
}

func (h *OrderHandler) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload shipOrderPayload
	if !decodeBody(w, r, maxOrderBodyBytes, &payload) {
		return
	}

	order, err := h.orders.Ship(ctx, actor, chi.URLParam(r, "orderID"), services.ShipInput{
		Carrier:           payload.Carrier,
		TrackingNumber:    payload.TrackingNumber,
		TrackingURL:       payload.TrackingURL,
		EstimatedDelivery: payload.EstimatedDelivery,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newOrderView(order))
}

func (h *OrderHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.Deliver(r.Context(), actor, orderID)
	})
}

func (h *OrderHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.Complete(r.Context(), actor, orderID)
	})
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload cancelOrderPayload
	if !decodeBody(w, r, maxOrderBodyBytes, &payload) {
		return
	}

	order, err := h.orders.Cancel(ctx, actor, chi.URLParam(r, "orderID"), services.CancelInput{Reason: payload.Reason})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newOrderView(order))
}

func (h *OrderHandler) disputeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload disputeOrderPayload
	if !decodeBody(w, r, maxOrderBodyBytes, &payload) {
		return
	}

	order, err := h.orders.Dispute(ctx, actor, chi.URLParam(r, "orderID"), services.DisputeInput{Reason: payload.Reason})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newOrderView(order))
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, apply func(domain.Actor, string) (domain.Order, error)) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	order, err := apply(actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newOrderView(order))
}

func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, false
	}
	return identity.Actor(), true
}

func parseListOrdersQuery(r *http.Request) (services.ListOrdersInput, error) {
	values := r.URL.Query()

	pageSize, pageToken, err := pagination.FromQuery(values)
	if err != nil {
		return services.ListOrdersInput{}, err
	}

	input := services.ListOrdersInput{
		BuyerID:   strings.TrimSpace(values.Get("buyerId")),
		SellerID:  strings.TrimSpace(values.Get("sellerId")),
		PageSize:  pageSize,
		PageToken: pageToken,
	}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				input.Status = append(input.Status, domain.OrderStatus(part))
			}
		}
	}
	if raw := strings.TrimSpace(values.Get("disputed")); raw != "" {
		disputed, err := strconv.ParseBool(raw)
		if err != nil {
			return services.ListOrdersInput{}, httpQueryError("disputed must be a boolean")
		}
		input.Disputed = &disputed
	}

	input.From, err = parseTimeParam(values.Get("from"))
	if err != nil {
		return services.ListOrdersInput{}, err
	}
	input.To, err = parseTimeParam(values.Get("to"))
	if err != nil {
		return services.ListOrdersInput{}, err
	}
	return input, nil
}

func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, httpQueryError("timestamps must be RFC 3339")
	}
	return &value, nil
}
