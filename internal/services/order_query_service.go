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

// OrderQueryServiceDeps bundles collaborators required to construct the query service.
type OrderQueryServiceDeps struct {
	Orders repositories.OrderRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderQueryService struct {
	orders repositories.OrderRepository
	logger func(context.Context, string, map[string]any)
}

// NewOrderQueryService wires dependencies into a concrete OrderQueryService implementation.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order query service: order repository is required")
	}
	return &orderQueryService{
		orders: deps.Orders,
		logger: defaultLogger(deps.Logger),
	}, nil
}

// GetOrder returns the order when the caller is a party to it or an admin.
func (s *orderQueryService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if err := requireParty(actor, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListOrders pages through orders visible to the caller. Buyers and sellers
// are pinned to their own side; only admins may scope by arbitrary parties.
func (s *orderQueryService) ListOrders(ctx context.Context, actor domain.Actor, input ListOrdersInput) (domain.CursorPage[domain.Order], error) {
	if strings.TrimSpace(actor.ID) == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}

	filter := repositories.OrderListFilter{
		Status:    input.Status,
		Disputed:  input.Disputed,
		DateRange: domain.RangeQuery[time.Time]{From: input.From, To: input.To},
		Pagination: domain.Pagination{
			PageSize:  input.PageSize,
			PageToken: input.PageToken,
		},
	}

	switch actor.Role {
	case domain.RoleBuyer:
		filter.BuyerID = actor.ID
	case domain.RoleSeller:
		filter.SellerID = actor.ID
	case domain.RoleAdmin:
		filter.BuyerID = strings.TrimSpace(input.BuyerID)
		filter.SellerID = strings.TrimSpace(input.SellerID)
	default:
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: listing not available for role %q", ErrForbidden, actor.Role)
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return page, nil
}
