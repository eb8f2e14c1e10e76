package fakebackend

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

// MemoryCartRepository is a port.CartRepository kept in process memory.
type MemoryCartRepository struct {
	mu       sync.Mutex
	carts    map[int64][]domain.CartItem
	nextLine int64
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: map[int64][]domain.CartItem{}}
}

func (r *MemoryCartRepository) GetCart(_ context.Context, ownerID int64) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return domain.Cart{OwnerID: ownerID, Items: slices.Clone(r.carts[ownerID])}, nil
}

// AddItem appends a line, or increments the quantity of the product's line.
func (r *MemoryCartRepository) AddItem(_ context.Context, ownerID int64, item domain.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.carts[ownerID]
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i].Quantity += item.Quantity
			return nil
		}
	}

	r.nextLine++
	item.LineID = r.nextLine
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	r.carts[ownerID] = append(items, item)
	return nil
}

func (r *MemoryCartRepository) UpdateItem(_ context.Context, ownerID, lineID int64, quantity int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.carts[ownerID]
	for i := range items {
		if items[i].LineID == lineID {
			items[i].Quantity = quantity
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCartRepository) DeleteItem(_ context.Context, ownerID, lineID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.carts[ownerID]
	for i := range items {
		if items[i].LineID == lineID {
			r.carts[ownerID] = slices.Delete(items, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCartRepository) DeleteAll(_ context.Context, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, ownerID)
	return nil
}

// MemoryAddressStore is a port.AddressStore kept in process memory. It
// swaps defaults atomically.
type MemoryAddressStore struct {
	mu        sync.Mutex
	addresses map[int64][]domain.Address
	nextID    int64
}

func NewMemoryAddressStore() *MemoryAddressStore {
	return &MemoryAddressStore{addresses: map[int64][]domain.Address{}}
}

func (s *MemoryAddressStore) ListAddresses(_ context.Context, id domain.Identity) ([]domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.addresses[id.UserID]), nil
}

func (s *MemoryAddressStore) CreateAddress(_ context.Context, id domain.Identity, address domain.Address) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	address.ID = s.nextID
	address.CreatedAt = time.Now().UTC()

	if address.IsDefault {
		s.clearDefaults(id.UserID)
	}
	s.addresses[id.UserID] = append(s.addresses[id.UserID], address)
	return address, nil
}

func (s *MemoryAddressStore) UpdateAddress(_ context.Context, id domain.Identity, address domain.Address) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id.UserID, address.ID)
	if !ok {
		return domain.Address{}, domain.ErrNotFound
	}

	current := s.addresses[id.UserID][i]
	address.CreatedAt = current.CreatedAt
	address.IsDefault = current.IsDefault
	s.addresses[id.UserID][i] = address
	return address, nil
}

func (s *MemoryAddressStore) SetDefaultFlag(_ context.Context, id domain.Identity, addressID int64, isDefault bool) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id.UserID, addressID)
	if !ok {
		return domain.Address{}, domain.ErrNotFound
	}

	s.addresses[id.UserID][i].IsDefault = isDefault
	return s.addresses[id.UserID][i], nil
}

func (s *MemoryAddressStore) SetDefaultAddress(_ context.Context, id domain.Identity, addressID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id.UserID, addressID)
	if !ok {
		return domain.ErrNotFound
	}

	s.clearDefaults(id.UserID)
	s.addresses[id.UserID][i].IsDefault = true
	return nil
}

func (s *MemoryAddressStore) DeleteAddress(_ context.Context, id domain.Identity, addressID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id.UserID, addressID)
	if !ok {
		return domain.ErrNotFound
	}

	s.addresses[id.UserID] = slices.Delete(s.addresses[id.UserID], i, i+1)
	return nil
}

func (s *MemoryAddressStore) find(userID, addressID int64) (int, bool) {
	i := slices.IndexFunc(s.addresses[userID], func(a domain.Address) bool { return a.ID == addressID })
	return i, i >= 0
}

func (s *MemoryAddressStore) clearDefaults(userID int64) {
	for i := range s.addresses[userID] {
		s.addresses[userID][i].IsDefault = false
	}
}
