package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

func (c *Client) GetCart(ctx context.Context, id domain.Identity) (domain.Cart, error) {
	var dto CartDTO
	if err := c.get(ctx, id, "cart", &dto); err != nil {
		return domain.Cart{}, err
	}
	return c.cart(id, dto), nil
}

func (c *Client) AddItem(ctx context.Context, id domain.Identity, productID int64, quantity int) (domain.Cart, error) {
	var dto CartDTO
	req := AddItemRequest{ProductID: productID, Quantity: quantity}
	if err := c.send(ctx, id, http.MethodPost, "cart/add_item", req, &dto); err != nil {
		return domain.Cart{}, err
	}
	return c.cart(id, dto), nil
}

func (c *Client) UpdateItem(ctx context.Context, id domain.Identity, lineID int64, quantity int) (domain.Cart, error) {
	var dto CartDTO
	req := UpdateItemRequest{Quantity: quantity}
	if err := c.send(ctx, id, http.MethodPut, fmt.Sprintf("cart/items/%d", lineID), req, &dto); err != nil {
		return domain.Cart{}, err
	}
	return c.cart(id, dto), nil
}

func (c *Client) RemoveItem(ctx context.Context, id domain.Identity, lineID int64) (domain.Cart, error) {
	var dto CartDTO
	if err := c.send(ctx, id, http.MethodDelete, fmt.Sprintf("cart/items/%d", lineID), nil, &dto); err != nil {
		return domain.Cart{}, err
	}
	return c.cart(id, dto), nil
}

// ClearCart deletes every line of the server cart. Lines already gone are
// skipped.
func (c *Client) ClearCart(ctx context.Context, id domain.Identity) error {
	cart, err := c.GetCart(ctx, id)
	if err != nil {
		return err
	}

	for _, item := range cart.Items {
		if _, err := c.RemoveItem(ctx, id, item.LineID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}

// AvailableStock reads the product's stock level.
func (c *Client) AvailableStock(ctx context.Context, id domain.Identity, productID int64) (int, error) {
	var dto ProductDTO
	if err := c.get(ctx, id, fmt.Sprintf("products/%d", productID), &dto); err != nil {
		return 0, err
	}
	if dto.Stock == nil {
		return 0, fmt.Errorf("product[%d] has no stock level", productID)
	}
	return *dto.Stock, nil
}

func (c *Client) cart(id domain.Identity, dto CartDTO) domain.Cart {
	cart := CartFromDTO(dto, c.currency)
	cart.OwnerID = id.UserID
	return cart
}
