package cartmirror

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"golang.org/x/text/currency"
)

type staticIdentity struct {
	identity domain.Identity
	err      error
}

func (s staticIdentity) Identity() (domain.Identity, error) {
	return s.identity, s.err
}

// fakeBackend is an in-memory cart resource with failure injection.
type fakeBackend struct {
	mu       sync.Mutex
	items    []domain.CartItem
	nextLine int64
	stock    map[int64]int

	failWith  error
	gate      chan struct{}
	entered   chan struct{}
	getCalls  atomic.Int32
	mutations atomic.Int32
	clearErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stock: map[int64]int{}}
}

func (f *fakeBackend) wait() error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failWith
}

func (f *fakeBackend) snapshot() domain.Cart {
	items := make([]domain.CartItem, len(f.items))
	copy(items, f.items)
	return domain.Cart{Items: items}
}

func (f *fakeBackend) GetCart(_ context.Context, _ domain.Identity) (domain.Cart, error) {
	f.getCalls.Add(1)
	if err := f.wait(); err != nil {
		return domain.Cart{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(), nil
}

func (f *fakeBackend) AddItem(_ context.Context, _ domain.Identity, productID int64, quantity int) (domain.Cart, error) {
	f.mutations.Add(1)
	if err := f.wait(); err != nil {
		return domain.Cart{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].ProductID == productID {
			f.items[i].Quantity += quantity
			return f.snapshot(), nil
		}
	}

	f.nextLine++
	f.items = append(f.items, domain.CartItem{
		LineID:    f.nextLine,
		ProductID: productID,
		Name:      "product",
		UnitPrice: domain.Money{Minor: 1000, Currency: currency.USD},
		Quantity:  quantity,
	})
	return f.snapshot(), nil
}

func (f *fakeBackend) UpdateItem(_ context.Context, _ domain.Identity, lineID int64, quantity int) (domain.Cart, error) {
	f.mutations.Add(1)
	if err := f.wait(); err != nil {
		return domain.Cart{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].LineID == lineID {
			f.items[i].Quantity = quantity
			return f.snapshot(), nil
		}
	}
	return domain.Cart{}, domain.ErrNotFound
}

func (f *fakeBackend) RemoveItem(_ context.Context, _ domain.Identity, lineID int64) (domain.Cart, error) {
	f.mutations.Add(1)
	if err := f.wait(); err != nil {
		return domain.Cart{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].LineID == lineID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return f.snapshot(), nil
		}
	}
	return domain.Cart{}, domain.ErrNotFound
}

func (f *fakeBackend) AvailableStock(_ context.Context, _ domain.Identity, productID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.stock[productID]; ok {
		return s, nil
	}
	return 100, nil
}

func (f *fakeBackend) setFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

// clearingBackend also supports server-side clearing.
type clearingBackend struct {
	*fakeBackend
}

func (c clearingBackend) ClearCart(_ context.Context, _ domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clearErr != nil {
		return c.clearErr
	}
	c.items = nil
	return nil
}

// memorySnapshots is an in-memory port.CartSnapshotStore.
type memorySnapshots struct {
	mu    sync.Mutex
	carts map[int64]domain.Cart
	saves int
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{carts: map[int64]domain.Cart{}}
}

func (s *memorySnapshots) SaveCart(_ context.Context, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.OwnerID] = cart.Clone()
	s.saves++
	return nil
}

func (s *memorySnapshots) LoadCart(_ context.Context, ownerID int64) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[ownerID]
	if !ok {
		return domain.Cart{}, domain.ErrNotFound
	}
	return cart.Clone(), nil
}

func (s *memorySnapshots) DeleteCart(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, ownerID)
	return nil
}

var errBoom = errors.New("boom")
