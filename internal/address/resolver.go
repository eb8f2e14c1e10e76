// Package address manages the user's shipping addresses: validation,
// default-first listing, default selection and the per-user address cap.
package address

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"go.uber.org/zap"
)

const DefaultCap = 3

type IdentitySource interface {
	Identity() (domain.Identity, error)
}

type Resolver struct {
	identity     IdentitySource
	store        port.AddressStore
	validate     *validator.Validate
	maxAddresses int
	logger       *zap.Logger
}

// NewResolver builds a Resolver. maxAddresses of zero or less disables eviction.
func NewResolver(identity IdentitySource, store port.AddressStore, maxAddresses int, logger *zap.Logger) *Resolver {
	return &Resolver{
		identity:     identity,
		store:        store,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		maxAddresses: maxAddresses,
		logger:       logger,
	}
}

// List returns addresses in insertion order with the default, if any, first.
func (r *Resolver) List(ctx context.Context) ([]domain.Address, error) {
	id, err := r.identity.Identity()
	if err != nil {
		return nil, err
	}
	return r.list(ctx, id)
}

func (r *Resolver) list(ctx context.Context, id domain.Identity) ([]domain.Address, error) {
	addresses, err := r.store.ListAddresses(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store.ListAddresses: %w", err)
	}

	ordered := insertionOrder(addresses)

	defaults := 0
	for _, a := range ordered {
		if a.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		r.logger.Warn("more than one default address",
			zap.Int64("user_id", id.UserID),
			zap.Error(&domain.ConsistencyError{Reason: fmt.Sprintf("%d default addresses", defaults)}))
	}

	if i := slices.IndexFunc(ordered, func(a domain.Address) bool { return a.IsDefault }); i > 0 {
		def := ordered[i]
		ordered = append(ordered[:i], ordered[i+1:]...)
		ordered = append([]domain.Address{def}, ordered...)
	}

	return ordered, nil
}

// Resolve picks the shipping address: the default, else the first address.
func (r *Resolver) Resolve(ctx context.Context) (domain.Address, error) {
	addresses, err := r.List(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	if len(addresses) == 0 {
		return domain.Address{}, domain.ErrNoAddress
	}
	return addresses[0], nil
}

// Add validates and stores a new address. When the user is over the cap
// the oldest non-default addresses are evicted; the new address and the
// current default never are.
func (r *Resolver) Add(ctx context.Context, address domain.Address) (domain.Address, error) {
	address = normalize(address)
	if err := r.validateAddress(address); err != nil {
		return domain.Address{}, err
	}

	id, err := r.identity.Identity()
	if err != nil {
		return domain.Address{}, err
	}

	existing, err := r.list(ctx, id)
	if err != nil {
		return domain.Address{}, err
	}

	var evict []domain.Address
	if r.maxAddresses > 0 && len(existing)+1 > r.maxAddresses {
		evict, err = evictionCandidates(existing, len(existing)+1-r.maxAddresses)
		if err != nil {
			return domain.Address{}, err
		}
	}

	wantDefault := address.IsDefault
	address.IsDefault = false

	created, err := r.store.CreateAddress(ctx, id, address)
	if err != nil {
		return domain.Address{}, fmt.Errorf("store.CreateAddress: %w", err)
	}

	for _, victim := range evict {
		if err := r.store.DeleteAddress(ctx, id, victim.ID); err != nil {
			r.logger.Warn("address eviction failed",
				zap.Int64("user_id", id.UserID),
				zap.Int64("address_id", victim.ID),
				zap.Error(&domain.ConsistencyError{Reason: "address cap exceeded", Err: err}))
			continue
		}
		r.logger.Info("address evicted", zap.Int64("user_id", id.UserID), zap.Int64("address_id", victim.ID))
	}

	if wantDefault {
		if err := r.setDefault(ctx, id, created.ID); err != nil {
			return created, fmt.Errorf("setDefault: %w", err)
		}
		created.IsDefault = true
	}

	return created, nil
}

// Update replaces the address fields. The default flag changes only
// through SetDefault semantics.
func (r *Resolver) Update(ctx context.Context, address domain.Address) (domain.Address, error) {
	address = normalize(address)
	if err := r.validateAddress(address); err != nil {
		return domain.Address{}, err
	}

	id, err := r.identity.Identity()
	if err != nil {
		return domain.Address{}, err
	}

	existing, err := r.list(ctx, id)
	if err != nil {
		return domain.Address{}, err
	}

	i := slices.IndexFunc(existing, func(a domain.Address) bool { return a.ID == address.ID })
	if i < 0 {
		return domain.Address{}, fmt.Errorf("address[%d]: %w", address.ID, domain.ErrNotFound)
	}

	wantDefault := address.IsDefault
	address.IsDefault = existing[i].IsDefault

	updated, err := r.store.UpdateAddress(ctx, id, address)
	if err != nil {
		return domain.Address{}, fmt.Errorf("store.UpdateAddress: %w", err)
	}

	if wantDefault && !updated.IsDefault {
		if err := r.setDefault(ctx, id, updated.ID); err != nil {
			return updated, fmt.Errorf("setDefault: %w", err)
		}
		updated.IsDefault = true
	}

	return updated, nil
}

// Delete removes an address. Deleting the default leaves the user without
// one; Resolve then falls back to the first address.
func (r *Resolver) Delete(ctx context.Context, addressID int64) error {
	id, err := r.identity.Identity()
	if err != nil {
		return err
	}

	if err := r.store.DeleteAddress(ctx, id, addressID); err != nil {
		return fmt.Errorf("store.DeleteAddress: %w", err)
	}
	return nil
}

func (r *Resolver) SetDefault(ctx context.Context, addressID int64) error {
	id, err := r.identity.Identity()
	if err != nil {
		return err
	}
	return r.setDefault(ctx, id, addressID)
}

func (r *Resolver) setDefault(ctx context.Context, id domain.Identity, addressID int64) error {
	if atomic, ok := r.store.(port.AtomicDefaultSetter); ok {
		if err := atomic.SetDefaultAddress(ctx, id, addressID); err != nil {
			return fmt.Errorf("store.SetDefaultAddress: %w", err)
		}
		return nil
	}

	return r.setDefaultSaga(ctx, id, addressID)
}

// setDefaultSaga unsets the prior defaults, then sets the target. When the
// second step fails the prior defaults are restored. A failed restore
// leaves zero defaults and is reported as a ConsistencyError.
func (r *Resolver) setDefaultSaga(ctx context.Context, id domain.Identity, addressID int64) error {
	addresses, err := r.list(ctx, id)
	if err != nil {
		return err
	}

	if !slices.ContainsFunc(addresses, func(a domain.Address) bool { return a.ID == addressID }) {
		return fmt.Errorf("address[%d]: %w", addressID, domain.ErrNotFound)
	}

	var unset []int64
	for _, a := range addresses {
		if !a.IsDefault || a.ID == addressID {
			continue
		}
		if _, err := r.store.SetDefaultFlag(ctx, id, a.ID, false); err != nil {
			cErr := r.compensate(ctx, id, unset)
			return errors.Join(fmt.Errorf("store.SetDefaultFlag[%d, false]: %w", a.ID, err), cErr)
		}
		unset = append(unset, a.ID)
	}

	if _, err := r.store.SetDefaultFlag(ctx, id, addressID, true); err != nil {
		cErr := r.compensate(ctx, id, unset)
		return errors.Join(fmt.Errorf("store.SetDefaultFlag[%d, true]: %w", addressID, err), cErr)
	}

	return nil
}

func (r *Resolver) compensate(ctx context.Context, id domain.Identity, restore []int64) error {
	var errs []error
	for _, addressID := range restore {
		if _, err := r.store.SetDefaultFlag(ctx, id, addressID, true); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	cErr := &domain.ConsistencyError{Reason: "no default address after failed set-default", Err: errors.Join(errs...)}
	r.logger.Warn("set-default compensation failed", zap.Int64("user_id", id.UserID), zap.Error(cErr))
	return cErr
}

func (r *Resolver) validateAddress(address domain.Address) error {
	err := r.validate.Struct(address)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate.Struct: %w", err)
	}

	vErr := domain.NewValidationError()
	for _, fe := range fieldErrs {
		vErr.Add(lowerFirst(fe.Field()), "is required")
	}
	return vErr
}

// evictionCandidates returns the n oldest non-default addresses.
func evictionCandidates(existing []domain.Address, n int) ([]domain.Address, error) {
	var candidates []domain.Address
	for _, a := range insertionOrder(existing) {
		if !a.IsDefault {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) < n {
		return nil, domain.ErrAddressCapReached
	}
	return candidates[:n], nil
}

func insertionOrder(addresses []domain.Address) []domain.Address {
	ordered := slices.Clone(addresses)
	slices.SortStableFunc(ordered, func(a, b domain.Address) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return ordered
}

func normalize(a domain.Address) domain.Address {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = strings.TrimSpace(a.Country)
	return a
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
