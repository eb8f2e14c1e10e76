package checkout

import (
	"context"
	"fmt"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

// History lists the user's placed orders, newest first.
func (o *Orchestrator) History(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := o.deps.History.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("history.ListByUser: %w", err)
	}
	return orders, nil
}

// OrderDetail returns one of the user's orders. Orders of other users are
// reported as domain.ErrNotFound.
func (o *Orchestrator) OrderDetail(ctx context.Context, userID int64, orderID string) (domain.Order, error) {
	order, err := o.deps.History.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("history.Get: %w", err)
	}
	if order.UserID != userID {
		return domain.Order{}, fmt.Errorf("order[%s]: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

// LastOrder returns the order handed to the confirmation page.
func (o *Orchestrator) LastOrder(ctx context.Context, userID int64) (domain.Order, error) {
	if o.deps.Confirmations == nil {
		return domain.Order{}, fmt.Errorf("confirmation store not configured: %w", domain.ErrNotFound)
	}

	order, err := o.deps.Confirmations.LastOrder(ctx, userID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("confirmations.LastOrder: %w", err)
	}
	return order, nil
}
