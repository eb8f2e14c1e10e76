package domain

// PriceBreakdown is derived from a cart on every read and never persisted
// on its own. Total is always Subtotal + ShippingFee + Tax.
type PriceBreakdown struct {
	Subtotal    Money `json:"subtotal"`
	ShippingFee Money `json:"shippingFee"`
	Tax         Money `json:"tax"`
	Total       Money `json:"total"`
}
