package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

const (
	addressColumns = `id, first_name, last_name, phone, street, city, state, zip_code, country, is_default, created_at`

	listAddressesSQL = `SELECT ` + addressColumns + ` FROM addresses WHERE owner_id = $1 ORDER BY created_at, id`

	createAddressSQL = `
INSERT INTO addresses (owner_id, first_name, last_name, phone, street, city, state, zip_code, country, is_default)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + addressColumns

	updateAddressSQL = `
UPDATE addresses
SET first_name = $3, last_name = $4, phone = $5, street = $6, city = $7, state = $8, zip_code = $9, country = $10
WHERE owner_id = $1 AND id = $2
RETURNING ` + addressColumns

	setDefaultFlagSQL = `UPDATE addresses SET is_default = $3 WHERE owner_id = $1 AND id = $2 RETURNING ` + addressColumns
	clearDefaultsSQL  = `UPDATE addresses SET is_default = false WHERE owner_id = $1 AND is_default`
	deleteAddressSQL  = `DELETE FROM addresses WHERE owner_id = $1 AND id = $2`

	uniqueViolation = "23505"
)

// AddressRepository is the Postgres address book. It satisfies both
// port.AddressStore and port.AtomicDefaultSetter.
type AddressRepository struct {
	q    dbtx
	pool *pgxpool.Pool
}

func NewAddress(pool *pgxpool.Pool) (*AddressRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &AddressRepository{
		q:    pool,
		pool: pool,
	}, nil
}

func NewAddressWithTx(tx pgx.Tx) *AddressRepository {
	return &AddressRepository{
		q:    tx,
		pool: nil, // use provided transaction instead
	}
}

type addressRow struct {
	ID        int64     `db:"id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Phone     string    `db:"phone"`
	Street    string    `db:"street"`
	City      string    `db:"city"`
	State     string    `db:"state"`
	ZipCode   string    `db:"zip_code"`
	Country   string    `db:"country"`
	IsDefault bool      `db:"is_default"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *AddressRepository) ListAddresses(ctx context.Context, id domain.Identity) ([]domain.Address, error) {
	if id.UserID <= 0 {
		return nil, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.q.Query(ctx, listAddressesSQL, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("q.Query: %w", err)
	}

	dbAddresses, err := pgx.CollectRows(rows, pgx.RowToStructByName[addressRow])
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows: %w", err)
	}

	addresses := make([]domain.Address, 0, len(dbAddresses))
	for _, row := range dbAddresses {
		addresses = append(addresses, mapAddressRowToDomain(row))
	}

	return addresses, nil
}

// CreateAddress inserts the address. A default address demotes the
// current default in the same transaction.
func (r *AddressRepository) CreateAddress(ctx context.Context, id domain.Identity, address domain.Address) (domain.Address, error) {
	if id.UserID <= 0 {
		return domain.Address{}, fmt.Errorf("ownerID is empty")
	}

	return withTx(ctx, r.pool, r.q, func(q dbtx) (domain.Address, error) {
		if address.IsDefault {
			if _, err := q.Exec(ctx, clearDefaultsSQL, id.UserID); err != nil {
				return domain.Address{}, fmt.Errorf("q.Exec[clear defaults]: %w", err)
			}
		}

		rows, err := q.Query(ctx, createAddressSQL,
			id.UserID,
			address.FirstName,
			address.LastName,
			address.Phone,
			address.Street,
			address.City,
			address.State,
			address.ZipCode,
			address.Country,
			address.IsDefault,
		)
		if err != nil {
			return domain.Address{}, fmt.Errorf("q.Query: %w", err)
		}

		return collectAddress(rows)
	})
}

// UpdateAddress rewrites the address fields. The default flag and the
// creation time are kept.
func (r *AddressRepository) UpdateAddress(ctx context.Context, id domain.Identity, address domain.Address) (domain.Address, error) {
	if id.UserID <= 0 {
		return domain.Address{}, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.q.Query(ctx, updateAddressSQL,
		id.UserID,
		address.ID,
		address.FirstName,
		address.LastName,
		address.Phone,
		address.Street,
		address.City,
		address.State,
		address.ZipCode,
		address.Country,
	)
	if err != nil {
		return domain.Address{}, fmt.Errorf("q.Query: %w", err)
	}

	return collectAddress(rows)
}

// SetDefaultFlag flips a single address flag. Setting a second default
// fails on the one-default index.
func (r *AddressRepository) SetDefaultFlag(ctx context.Context, id domain.Identity, addressID int64, isDefault bool) (domain.Address, error) {
	if id.UserID <= 0 {
		return domain.Address{}, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.q.Query(ctx, setDefaultFlagSQL, id.UserID, addressID, isDefault)
	if err != nil {
		return domain.Address{}, fmt.Errorf("q.Query: %w", err)
	}

	address, err := collectAddress(rows)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Address{}, fmt.Errorf("address[%d] cannot be a second default: %w", addressID, err)
		}
		return domain.Address{}, err
	}

	return address, nil
}

// SetDefaultAddress makes addressID the only default in one transaction.
func (r *AddressRepository) SetDefaultAddress(ctx context.Context, id domain.Identity, addressID int64) error {
	if id.UserID <= 0 {
		return fmt.Errorf("ownerID is empty")
	}

	_, err := withTx(ctx, r.pool, r.q, func(q dbtx) (struct{}, error) {
		if _, err := q.Exec(ctx, clearDefaultsSQL, id.UserID); err != nil {
			return struct{}{}, fmt.Errorf("q.Exec[clear defaults]: %w", err)
		}

		tag, err := q.Exec(ctx, `UPDATE addresses SET is_default = true WHERE owner_id = $1 AND id = $2`, id.UserID, addressID)
		if err != nil {
			return struct{}{}, fmt.Errorf("q.Exec[set default]: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, fmt.Errorf("address[%d]: %w", addressID, domain.ErrNotFound)
		}

		return struct{}{}, nil
	})

	return err
}

func (r *AddressRepository) DeleteAddress(ctx context.Context, id domain.Identity, addressID int64) error {
	if id.UserID <= 0 {
		return fmt.Errorf("ownerID is empty")
	}

	tag, err := r.q.Exec(ctx, deleteAddressSQL, id.UserID, addressID)
	if err != nil {
		return fmt.Errorf("q.Exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("address[%d]: %w", addressID, domain.ErrNotFound)
	}

	return nil
}

func collectAddress(rows pgx.Rows) (domain.Address, error) {
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[addressRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Address{}, domain.ErrNotFound
		}
		return domain.Address{}, fmt.Errorf("pgx.CollectExactlyOneRow: %w", err)
	}

	return mapAddressRowToDomain(row), nil
}

func mapAddressRowToDomain(row addressRow) domain.Address {
	return domain.Address{
		ID:        row.ID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Phone:     row.Phone,
		Street:    row.Street,
		City:      row.City,
		State:     row.State,
		ZipCode:   row.ZipCode,
		Country:   row.Country,
		IsDefault: row.IsDefault,
		CreatedAt: row.CreatedAt,
	}
}
