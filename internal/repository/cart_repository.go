package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"golang.org/x/text/currency"
)

const (
	getCartSQL = `
SELECT line_id, product_id, name, image_url, price_minor, price_currency, quantity, created_at
FROM cart_items
WHERE owner_id = $1
ORDER BY line_id`

	addItemSQL = `
INSERT INTO cart_items (owner_id, product_id, name, image_url, price_minor, price_currency, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (owner_id, product_id)
DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	updateItemSQL = `UPDATE cart_items SET quantity = $3 WHERE owner_id = $1 AND line_id = $2`
	deleteItemSQL = `DELETE FROM cart_items WHERE owner_id = $1 AND line_id = $2`
	deleteAllSQL  = `DELETE FROM cart_items WHERE owner_id = $1`
)

type cartRepository struct {
	q dbtx
}

func NewCart(pool *pgxpool.Pool) (port.CartRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &cartRepository{q: pool}, nil
}

func NewCartWithTx(tx pgx.Tx) port.CartRepository {
	// statements run inside the caller's transaction
	return &cartRepository{q: tx}
}

type cartItemRow struct {
	LineID        int64     `db:"line_id"`
	ProductID     int64     `db:"product_id"`
	Name          string    `db:"name"`
	ImageURL      string    `db:"image_url"`
	PriceMinor    int64     `db:"price_minor"`
	PriceCurrency string    `db:"price_currency"`
	Quantity      int       `db:"quantity"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *cartRepository) GetCart(ctx context.Context, ownerID int64) (domain.Cart, error) {
	if ownerID <= 0 {
		return domain.Cart{}, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.q.Query(ctx, getCartSQL, ownerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("q.Query: %w", err)
	}

	dbItems, err := pgx.CollectRows(rows, pgx.RowToStructByName[cartItemRow])
	if err != nil {
		return domain.Cart{}, fmt.Errorf("pgx.CollectRows: %w", err)
	}

	items, err := mapCartRowsToDomain(dbItems)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("mapCartRowsToDomain: %w", err)
	}

	return domain.Cart{
		OwnerID: ownerID,
		Items:   items,
	}, nil
}

// AddItem inserts a line, or increments the quantity of the product's
// existing line.
func (r *cartRepository) AddItem(ctx context.Context, ownerID int64, item domain.CartItem) error {
	if ownerID <= 0 {
		return fmt.Errorf("ownerID is empty")
	}
	if item.Quantity < domain.MinQuantity {
		return fmt.Errorf("quantity[%d] is not positive", item.Quantity)
	}

	_, err := r.q.Exec(ctx, addItemSQL,
		ownerID,
		item.ProductID,
		item.Name,
		item.ImageURL,
		item.UnitPrice.Minor,
		item.UnitPrice.Currency.String(),
		item.Quantity,
	)
	if err != nil {
		return fmt.Errorf("q.Exec: %w", err)
	}

	return nil
}

func (r *cartRepository) UpdateItem(ctx context.Context, ownerID, lineID int64, quantity int) (bool, error) {
	if ownerID <= 0 {
		return false, fmt.Errorf("ownerID is empty")
	}
	if quantity < domain.MinQuantity {
		return false, fmt.Errorf("quantity[%d] is not positive", quantity)
	}

	tag, err := r.q.Exec(ctx, updateItemSQL, ownerID, lineID, quantity)
	if err != nil {
		return false, fmt.Errorf("q.Exec: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, ownerID, lineID int64) (bool, error) {
	if ownerID <= 0 {
		return false, fmt.Errorf("ownerID is empty")
	}

	tag, err := r.q.Exec(ctx, deleteItemSQL, ownerID, lineID)
	if err != nil {
		return false, fmt.Errorf("q.Exec: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *cartRepository) DeleteAll(ctx context.Context, ownerID int64) error {
	if ownerID <= 0 {
		return fmt.Errorf("ownerID is empty")
	}

	if _, err := r.q.Exec(ctx, deleteAllSQL, ownerID); err != nil {
		return fmt.Errorf("q.Exec: %w", err)
	}

	return nil
}

func mapCartRowToDomain(row cartItemRow) (domain.CartItem, error) {
	parsedCurrency, err := currency.ParseISO(row.PriceCurrency)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("currency[%s] is not valid: %w", row.PriceCurrency, err)
	}

	return domain.CartItem{
		LineID:    row.LineID,
		ProductID: row.ProductID,
		Name:      row.Name,
		ImageURL:  row.ImageURL,
		UnitPrice: domain.Money{Minor: row.PriceMinor, Currency: parsedCurrency},
		Quantity:  row.Quantity,
		AddedAt:   row.CreatedAt,
	}, nil
}

func mapCartRowsToDomain(rows []cartItemRow) ([]domain.CartItem, error) {
	var items []domain.CartItem

	for _, row := range rows {
		item, err := mapCartRowToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("mapCartRowToDomain: %w", err)
		}

		items = append(items, item)
	}

	return items, nil
}
