package port

import (
	"context"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

type AddressStore interface {
	ListAddresses(ctx context.Context, id domain.Identity) ([]domain.Address, error)
	CreateAddress(ctx context.Context, id domain.Identity, address domain.Address) (domain.Address, error)
	UpdateAddress(ctx context.Context, id domain.Identity, address domain.Address) (domain.Address, error)
	SetDefaultFlag(ctx context.Context, id domain.Identity, addressID int64, isDefault bool) (domain.Address, error)
	DeleteAddress(ctx context.Context, id domain.Identity, addressID int64) error
}

// AtomicDefaultSetter swaps the default address in a single transaction.
type AtomicDefaultSetter interface {
	SetDefaultAddress(ctx context.Context, id domain.Identity, addressID int64) error
}
