package domain

import "time"

// Order is a write-once record of a completed checkout.
type Order struct {
	ID                string         `json:"orderId"`
	UserID            int64          `json:"userId"`
	Items             []OrderItem    `json:"items"`
	Price             PriceBreakdown `json:"price"`
	ShippingAddress   OrderAddress   `json:"shippingAddress"`
	PaymentMethod     PaymentMethod  `json:"paymentMethod"`
	PaymentID         string         `json:"paymentId"`
	OrderDate         time.Time      `json:"orderDate"`
	EstimatedDelivery time.Time      `json:"estimatedDelivery"`
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	clone := o
	if o.Items != nil {
		clone.Items = make([]OrderItem, len(o.Items))
		copy(clone.Items, o.Items)
	}
	return clone
}

type OrderItem struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"image,omitempty"`
	UnitPrice Money  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type OrderAddress struct {
	AddressID int64  `json:"addressId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
}

func OrderItemsFromCart(cart Cart) []OrderItem {
	items := make([]OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return items
}

func OrderAddressFrom(a Address) OrderAddress {
	return OrderAddress{
		AddressID: a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		ZipCode:   a.ZipCode,
		Country:   a.Country,
	}
}
