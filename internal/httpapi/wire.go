package httpapi

import (
	"time"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type CartDTO struct {
	Items []CartItemDTO `json:"items"`
}

type CartItemDTO struct {
	ID       int64      `json:"id"`
	Product  ProductDTO `json:"product"`
	Quantity int        `json:"quantity"`
	AddedAt  *time.Time `json:"added_at,omitempty"`
}

type ProductDTO struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
	Stock *int            `json:"stock,omitempty"`
}

type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

type AddressDTO struct {
	ID        int64      `json:"id,omitempty"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Phone     string     `json:"phone"`
	Street    string     `json:"address"`
	City      string     `json:"city"`
	State     string     `json:"state"`
	ZipCode   string     `json:"zip_code"`
	Country   string     `json:"country"`
	IsDefault bool       `json:"is_default"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type DefaultFlagRequest struct {
	IsDefault bool `json:"is_default"`
}

func CartFromDTO(dto CartDTO, cur currency.Unit) domain.Cart {
	cart := domain.Cart{Items: make([]domain.CartItem, 0, len(dto.Items))}
	for _, item := range dto.Items {
		ci := domain.CartItem{
			LineID:    item.ID,
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			ImageURL:  item.Product.Image,
			UnitPrice: domain.MoneyFromDecimal(item.Product.Price, cur),
			Quantity:  item.Quantity,
		}
		if item.AddedAt != nil {
			ci.AddedAt = *item.AddedAt
		}
		cart.Items = append(cart.Items, ci)
	}
	return cart
}

func CartToDTO(cart domain.Cart) CartDTO {
	dto := CartDTO{Items: make([]CartItemDTO, 0, len(cart.Items))}
	for _, item := range cart.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			ID: item.LineID,
			Product: ProductDTO{
				ID:    item.ProductID,
				Name:  item.Name,
				Price: item.UnitPrice.Decimal(),
				Image: item.ImageURL,
			},
			Quantity: item.Quantity,
			AddedAt:  timePtr(item.AddedAt),
		})
	}
	return dto
}

func AddressFromDTO(dto AddressDTO) domain.Address {
	a := domain.Address{
		ID:        dto.ID,
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Phone:     dto.Phone,
		Street:    dto.Street,
		City:      dto.City,
		State:     dto.State,
		ZipCode:   dto.ZipCode,
		Country:   dto.Country,
		IsDefault: dto.IsDefault,
	}
	if dto.CreatedAt != nil {
		a.CreatedAt = *dto.CreatedAt
	}
	return a
}

func AddressToDTO(a domain.Address) AddressDTO {
	return AddressDTO{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		ZipCode:   a.ZipCode,
		Country:   a.Country,
		IsDefault: a.IsDefault,
		CreatedAt: timePtr(a.CreatedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
