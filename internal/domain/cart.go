package domain

import (
	"fmt"
	"time"
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

type Cart struct {
	OwnerID int64
	Items   []CartItem

	// ServerSyncedAt is zero until the cart has been confirmed by the backend.
	ServerSyncedAt time.Time
}

type CartItem struct {
	// LineID is the backend identifier of the cart line, not the product.
	LineID    int64
	ProductID int64
	Name      string
	ImageURL  string
	UnitPrice Money
	Quantity  int

	AddedAt time.Time
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount is the sum of line quantities.
func (c Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c Cart) Find(productID int64) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

func (c Cart) Clone() Cart {
	clone := c
	if c.Items != nil {
		clone.Items = make([]CartItem, len(c.Items))
		copy(clone.Items, c.Items)
	}
	return clone
}

// Validate checks the cart invariants: unique product per line and a
// positive quantity on every line.
func (c Cart) Validate() error {
	seen := make(map[int64]struct{}, len(c.Items))
	for _, item := range c.Items {
		if _, ok := seen[item.ProductID]; ok {
			return fmt.Errorf("product[%d] appears twice in cart", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}

		if item.Quantity < MinQuantity {
			return fmt.Errorf("product[%d] has quantity %d", item.ProductID, item.Quantity)
		}
	}
	return nil
}
