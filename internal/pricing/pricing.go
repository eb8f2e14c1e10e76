// Package pricing derives subtotal, shipping, tax and total from a cart
// snapshot. All functions are pure; amounts stay in minor currency units.
package pricing

import (
	"fmt"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Rules struct {
	Currency currency.Unit

	// Shipping is free only when the subtotal is strictly greater than
	// FreeShippingThreshold.
	FreeShippingThreshold domain.Money
	FlatShippingFee       domain.Money

	TaxRate decimal.Decimal
}

func (r Rules) Validate() error {
	if !r.FreeShippingThreshold.SameCurrency(domain.ZeroMoney(r.Currency)) {
		return fmt.Errorf("threshold currency %s differs from %s", r.FreeShippingThreshold.Currency, r.Currency)
	}
	if !r.FlatShippingFee.SameCurrency(domain.ZeroMoney(r.Currency)) {
		return fmt.Errorf("shipping fee currency %s differs from %s", r.FlatShippingFee.Currency, r.Currency)
	}
	if r.FlatShippingFee.Minor < 0 {
		return fmt.Errorf("shipping fee is negative")
	}
	if r.TaxRate.IsNegative() {
		return fmt.Errorf("tax rate is negative")
	}
	return nil
}

// Subtotal sums unitPrice × quantity over every line.
func Subtotal(cart domain.Cart, cur currency.Unit) (domain.Money, error) {
	subtotal := domain.ZeroMoney(cur)
	for _, item := range cart.Items {
		if !item.UnitPrice.SameCurrency(subtotal) {
			return domain.Money{}, fmt.Errorf("product[%d] priced in %s, cart in %s", item.ProductID, item.UnitPrice.Currency, cur)
		}
		if item.UnitPrice.Minor < 0 {
			return domain.Money{}, fmt.Errorf("product[%d] has negative price", item.ProductID)
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(int64(item.Quantity)))
	}
	return subtotal, nil
}

func ShippingFee(subtotal, threshold, flatFee domain.Money) domain.Money {
	if subtotal.GreaterThan(threshold) {
		return domain.ZeroMoney(subtotal.Currency)
	}
	return flatFee
}

// Tax rounds half-up to the minor unit.
func Tax(subtotal domain.Money, rate decimal.Decimal) domain.Money {
	minor := decimal.NewFromInt(subtotal.Minor).Mul(rate).Round(0)
	return domain.Money{Minor: minor.IntPart(), Currency: subtotal.Currency}
}

// Breakdown recomputes every field from the cart. An empty cart prices to
// all zeros.
func Breakdown(cart domain.Cart, rules Rules) (domain.PriceBreakdown, error) {
	if err := rules.Validate(); err != nil {
		return domain.PriceBreakdown{}, fmt.Errorf("rules.Validate: %w", err)
	}

	zero := domain.ZeroMoney(rules.Currency)
	if cart.IsEmpty() {
		return domain.PriceBreakdown{Subtotal: zero, ShippingFee: zero, Tax: zero, Total: zero}, nil
	}

	subtotal, err := Subtotal(cart, rules.Currency)
	if err != nil {
		return domain.PriceBreakdown{}, fmt.Errorf("Subtotal: %w", err)
	}

	shipping := ShippingFee(subtotal, rules.FreeShippingThreshold, rules.FlatShippingFee)
	tax := Tax(subtotal, rules.TaxRate)

	return domain.PriceBreakdown{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Tax:         tax,
		Total:       subtotal.Add(shipping).Add(tax),
	}, nil
}
