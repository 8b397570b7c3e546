package handlers

import (
	"time"

	domain "github.com/fleamart/api/internal/domain"
	"github.com/fleamart/api/internal/services"
)

type orderView struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	BuyerID         string          `json:"buyerId"`
	SellerID        string          `json:"sellerId"`
	Items           []orderItemView `json:"items"`
	Totals          orderTotalsView `json:"totals"`
	Currency        string          `json:"currency"`
	PaymentStatus   string          `json:"paymentStatus"`
	ShippingAddress addressView     `json:"shippingAddress"`
	Tracking        *trackingView   `json:"tracking,omitempty"`
	Status          string          `json:"status"`
	ConfirmedAt     *time.Time      `json:"confirmedAt,omitempty"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
	CancelReason    *string         `json:"cancellationReason,omitempty"`
	IsDisputed      bool            `json:"isDisputed"`
	DisputeReason   *string         `json:"disputeReason,omitempty"`
	DisputedAt      *time.Time      `json:"disputedAt,omitempty"`
	Resolution      *resolutionView `json:"disputeResolution,omitempty"`
	Refund          *refundView     `json:"refund,omitempty"`
	Notes           []orderNoteView `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type orderItemView struct {
	ItemID        string            `json:"itemId"`
	Title         string            `json:"title"`
	Brand         string            `json:"brand,omitempty"`
	PriceCents    int64             `json:"priceCents"`
	ShippingCents int64             `json:"shippingCents"`
	Condition     string            `json:"condition"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	Quantity      int               `json:"quantity"`
	Attributes    categoryAttrsView `json:"attributes"`
}

type categoryAttrsView struct {
	Category    string                `json:"category"`
	Apparel     *apparelAttrsView     `json:"apparel,omitempty"`
	Electronics *electronicsAttrsView `json:"electronics,omitempty"`
	Media       *mediaAttrsView       `json:"media,omitempty"`
	Unknown     map[string]string     `json:"unknown,omitempty"`
}

type apparelAttrsView struct {
	Size     string `json:"size,omitempty"`
	Color    string `json:"color,omitempty"`
	Material string `json:"material,omitempty"`
}

type electronicsAttrsView struct {
	Model        string `json:"model,omitempty"`
	StorageGB    int    `json:"storageGb,omitempty"`
	BatteryCycle int    `json:"batteryCycle,omitempty"`
}

type mediaAttrsView struct {
	Format   string `json:"format,omitempty"`
	Edition  string `json:"edition,omitempty"`
	Language string `json:"language,omitempty"`
}

type orderTotalsView struct {
	SubtotalCents   int64 `json:"subtotalCents"`
	ShippingCents   int64 `json:"shippingCents"`
	TaxCents        int64 `json:"taxCents"`
	ServiceFeeCents int64 `json:"serviceFeeCents"`
	TotalCents      int64 `json:"totalCents"`
}

type addressView struct {
	FullName   string  `json:"fullName"`
	Street1    string  `json:"street1"`
	Street2    *string `json:"street2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

type trackingView struct {
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"trackingNumber"`
	TrackingURL       *string    `json:"trackingUrl,omitempty"`
	ShippedAt         *time.Time `json:"shippedAt,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
}

type resolutionView struct {
	Outcome    string    `json:"outcome"`
	ResolvedBy string    `json:"resolvedBy"`
	ResolvedAt time.Time `json:"resolvedAt"`
	Note       string    `json:"note,omitempty"`
}

type refundView struct {
	AmountCents int64      `json:"amountCents"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

type orderNoteView struct {
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type transactionView struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"orderId"`
	BuyerID          string     `json:"buyerId"`
	SellerID         string     `json:"sellerId"`
	Type             string     `json:"type"`
	AmountCents      int64      `json:"amountCents"`
	PlatformFeeCents int64      `json:"platformFeeCents"`
	GatewayFeeCents  int64      `json:"gatewayFeeCents"`
	NetAmountCents   int64      `json:"netAmountCents"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	GatewayRef       string     `json:"gatewayRef,omitempty"`
	FailureCode      string     `json:"failureCode,omitempty"`
	FailureMessage   string     `json:"failureMessage,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

type checkoutView struct {
	Order        orderView `json:"order"`
	ClientSecret string    `json:"clientSecret,omitempty"`
}

type orderListView struct {
	Orders        []orderView `json:"orders"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

type transactionListView struct {
	Transactions []transactionView `json:"transactions"`
}

type revenueView struct {
	Currency         string     `json:"currency"`
	GrossSalesCents  int64      `json:"grossSalesCents"`
	ServiceFeeCents  int64      `json:"serviceFeeCents"`
	GatewayFeeCents  int64      `json:"gatewayFeeCents"`
	RefundedCents    int64      `json:"refundedCents"`
	NetRevenueCents  int64      `json:"netRevenueCents"`
	PaymentCount     int        `json:"paymentCount"`
	RefundedPayments int        `json:"refundedPayments"`
	From             *time.Time `json:"from,omitempty"`
	To               *time.Time `json:"to,omitempty"`
	GeneratedAt      time.Time  `json:"generatedAt"`
}

func newOrderView(order domain.Order) orderView {
	view := orderView{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		BuyerID:         order.BuyerID,
		SellerID:        order.SellerID,
		Items:           make([]orderItemView, 0, len(order.Items)),
		Totals:          orderTotalsView(order.Totals),
		Currency:        order.Currency,
		PaymentStatus:   string(order.PaymentStatus),
		ShippingAddress: addressView(order.ShippingAddress),
		Status:          string(order.Status),
		ConfirmedAt:     order.ConfirmedAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CompletedAt:     order.CompletedAt,
		CancelledAt:     order.CancelledAt,
		CancelReason:    order.CancellationReason,
		IsDisputed:      order.IsDisputed,
		DisputeReason:   order.DisputeReason,
		DisputedAt:      order.DisputedAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, newOrderItemView(item))
	}
	if order.Tracking != nil {
		tracking := trackingView(*order.Tracking)
		view.Tracking = &tracking
	}
	if order.Resolution != nil {
		view.Resolution = &resolutionView{
			Outcome:    string(order.Resolution.Outcome),
			ResolvedBy: order.Resolution.ResolvedBy,
			ResolvedAt: order.Resolution.ResolvedAt,
			Note:       order.Resolution.Note,
		}
	}
	if order.Refund != nil {
		view.Refund = &refundView{
			AmountCents: order.Refund.AmountCents,
			Reason:      order.Refund.Reason,
			Status:      string(order.Refund.Status),
			RequestedAt: order.Refund.RequestedAt,
			ProcessedAt: order.Refund.ProcessedAt,
		}
	}
	for _, note := range order.Notes {
		view.Notes = append(view.Notes, orderNoteView(note))
	}
	return view
}

func newOrderItemView(item domain.OrderItem) orderItemView {
	view := orderItemView{
		ItemID:        item.ItemID,
		Title:         item.Title,
		Brand:         item.Brand,
		PriceCents:    item.PriceCents,
		ShippingCents: item.ShippingCents,
		Condition:     string(item.Condition),
		ImageURL:      item.ImageURL,
		Quantity:      item.Quantity,
		Attributes:    categoryAttrsView{Category: string(item.Attributes.Category)},
	}
	if item.Attributes.Apparel != nil {
		apparel := apparelAttrsView(*item.Attributes.Apparel)
		view.Attributes.Apparel = &apparel
	}
	if item.Attributes.Electronics != nil {
		electronics := electronicsAttrsView(*item.Attributes.Electronics)
		view.Attributes.Electronics = &electronics
	}
	if item.Attributes.Media != nil {
		media := mediaAttrsView(*item.Attributes.Media)
		view.Attributes.Media = &media
	}
	if len(item.Attributes.Unknown) > 0 {
		view.Attributes.Unknown = item.Attributes.Unknown
	}
	return view
}

func newTransactionView(txn domain.Transaction) transactionView {
	return transactionView{
		ID:               txn.ID,
		OrderID:          txn.OrderID,
		BuyerID:          txn.BuyerID,
		SellerID:         txn.SellerID,
		Type:             string(txn.Type),
		AmountCents:      txn.AmountCents,
		PlatformFeeCents: txn.PlatformFeeCents,
		GatewayFeeCents:  txn.GatewayFeeCents,
		NetAmountCents:   txn.NetAmountCents,
		Currency:         txn.Currency,
		Status:           string(txn.Status),
		GatewayRef:       txn.GatewayRef,
		FailureCode:      txn.FailureCode,
		FailureMessage:   txn.FailureMessage,
		CreatedAt:        txn.CreatedAt,
		CompletedAt:      txn.CompletedAt,
	}
}

func newRevenueView(report services.RevenueReport) revenueView {
	return revenueView{
		Currency:         report.Currency,
		GrossSalesCents:  report.GrossSalesCents,
		ServiceFeeCents:  report.ServiceFeeCents,
		GatewayFeeCents:  report.GatewayFeeCents,
		RefundedCents:    report.RefundedCents,
		NetRevenueCents:  report.NetRevenueCents,
		PaymentCount:     report.PaymentCount,
		RefundedPayments: report.RefundedPayments,
		From:             report.From,
		To:               report.To,
		GeneratedAt:      report.GeneratedAt,
	}
}
