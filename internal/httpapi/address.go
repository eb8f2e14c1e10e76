package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

func (c *Client) ListAddresses(ctx context.Context, id domain.Identity) ([]domain.Address, error) {
	var dtos []AddressDTO
	if err := c.get(ctx, id, "addresses", &dtos); err != nil {
		return nil, err
	}

	addresses := make([]domain.Address, 0, len(dtos))
	for _, dto := range dtos {
		addresses = append(addresses, AddressFromDTO(dto))
	}
	return addresses, nil
}

func (c *Client) CreateAddress(ctx context.Context, id domain.Identity, address domain.Address) (domain.Address, error) {
	var dto AddressDTO
	if err := c.send(ctx, id, http.MethodPost, "addresses", AddressToDTO(address), &dto); err != nil {
		return domain.Address{}, err
	}
	return AddressFromDTO(dto), nil
}

func (c *Client) UpdateAddress(ctx context.Context, id domain.Identity, address domain.Address) (domain.Address, error) {
	var dto AddressDTO
	path := fmt.Sprintf("addresses/%d", address.ID)
	if err := c.send(ctx, id, http.MethodPut, path, AddressToDTO(address), &dto); err != nil {
		return domain.Address{}, err
	}
	return AddressFromDTO(dto), nil
}

func (c *Client) SetDefaultFlag(ctx context.Context, id domain.Identity, addressID int64, isDefault bool) (domain.Address, error) {
	var dto AddressDTO
	path := fmt.Sprintf("addresses/%d", addressID)
	if err := c.send(ctx, id, http.MethodPatch, path, DefaultFlagRequest{IsDefault: isDefault}, &dto); err != nil {
		return domain.Address{}, err
	}
	return AddressFromDTO(dto), nil
}

func (c *Client) DeleteAddress(ctx context.Context, id domain.Identity, addressID int64) error {
	return c.send(ctx, id, http.MethodDelete, fmt.Sprintf("addresses/%d", addressID), nil, nil)
}
