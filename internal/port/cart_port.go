package port

import (
	"context"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

// CartBackend is the server-authoritative cart resource. Every mutating
// call returns the full updated cart.
type CartBackend interface {
	GetCart(ctx context.Context, id domain.Identity) (domain.Cart, error)
	AddItem(ctx context.Context, id domain.Identity, productID int64, quantity int) (domain.Cart, error)
	UpdateItem(ctx context.Context, id domain.Identity, lineID int64, quantity int) (domain.Cart, error)
	RemoveItem(ctx context.Context, id domain.Identity, lineID int64) (domain.Cart, error)
}

// CartClearer is implemented by backends able to clear a cart server-side.
type CartClearer interface {
	ClearCart(ctx context.Context, id domain.Identity) error
}

type StockChecker interface {
	AvailableStock(ctx context.Context, id domain.Identity, productID int64) (int, error)
}

// CartSnapshotStore keeps the last confirmed cart across restarts.
type CartSnapshotStore interface {
	SaveCart(ctx context.Context, cart domain.Cart) error
	LoadCart(ctx context.Context, ownerID int64) (domain.Cart, error)
	DeleteCart(ctx context.Context, ownerID int64) error
}

// CartRepository is the server-side persistence behind the cart resource.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID int64) (domain.Cart, error)
	AddItem(ctx context.Context, ownerID int64, item domain.CartItem) error
	UpdateItem(ctx context.Context, ownerID, lineID int64, quantity int) (bool, error)
	DeleteItem(ctx context.Context, ownerID, lineID int64) (bool, error)
	DeleteAll(ctx context.Context, ownerID int64) error
}
