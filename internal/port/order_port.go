package port

import (
	"context"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

type OrderHistory interface {
	Record(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
}

// ConfirmationStore hands the last placed order to the confirmation display.
type ConfirmationStore interface {
	SaveLastOrder(ctx context.Context, order domain.Order) error
	LastOrder(ctx context.Context, userID int64) (domain.Order, error)
}
