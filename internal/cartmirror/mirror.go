// Package cartmirror keeps a local view of the server-authoritative cart.
//
// The view has two layers: Confirmed, the last full cart returned by the
// backend, and Pending, the mutations still in flight. Every successful
// response replaces Confirmed wholesale; a failed mutation only drops its
// Pending entry.
package cartmirror

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Freshness int

const (
	// FreshnessUnknown: never fetched, or the last fetch failed.
	FreshnessUnknown Freshness = iota
	// FreshnessRestored: loaded from the local snapshot store only.
	FreshnessRestored
	FreshnessFresh
)

func (f Freshness) String() string {
	switch f {
	case FreshnessRestored:
		return "restored"
	case FreshnessFresh:
		return "fresh"
	default:
		return "unknown"
	}
}

// IdentitySource yields the principal for each backend call.
type IdentitySource interface {
	Identity() (domain.Identity, error)
}

type pendingOp struct {
	productID int64
	// quantity 0 removes the line.
	quantity int
}

type Mirror struct {
	identity IdentitySource
	backend  port.CartBackend
	stock    port.StockChecker
	store    port.CartSnapshotStore
	logger   *zap.Logger
	now      func() time.Time

	fetchGroup singleflight.Group

	mu        sync.Mutex
	confirmed domain.Cart
	pending   map[uint64]pendingOp
	seq       uint64
	freshness Freshness
}

// New builds a Mirror. stock and store may be nil: without a stock checker
// no availability check is made, without a store nothing is persisted.
func New(
	identity IdentitySource,
	backend port.CartBackend,
	stock port.StockChecker,
	store port.CartSnapshotStore,
	logger *zap.Logger,
) *Mirror {
	return &Mirror{
		identity: identity,
		backend:  backend,
		stock:    stock,
		store:    store,
		logger:   logger,
		now:      time.Now,
		pending:  map[uint64]pendingOp{},
	}
}

// Snapshot returns the last confirmed cart.
func (m *Mirror) Snapshot() domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed.Clone()
}

// View returns the confirmed cart with in-flight mutations applied.
func (m *Mirror) View() domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := m.confirmed.Clone()

	keys := make([]uint64, 0, len(m.pending))
	for k := range m.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		view = applyPending(view, m.pending[k])
	}
	return view
}

func (m *Mirror) Freshness() Freshness {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freshness
}

// AddItem adds quantity of a product. An existing line is merged to
// min(existing+quantity, MaxQuantity).
func (m *Mirror) AddItem(ctx context.Context, productID int64, quantity int) (domain.Cart, error) {
	if err := validateQuantity(quantity); err != nil {
		return domain.Cart{}, err
	}

	id, err := m.identity.Identity()
	if err != nil {
		return domain.Cart{}, err
	}

	existing, found := m.Snapshot().Find(productID)

	merged := quantity
	if found {
		merged = min(existing.Quantity+quantity, domain.MaxQuantity)
	}

	if err := m.checkStock(ctx, id, productID, merged); err != nil {
		return domain.Cart{}, err
	}

	key := m.beginPending(pendingOp{productID: productID, quantity: merged})

	var cart domain.Cart
	if found {
		cart, err = m.backend.UpdateItem(ctx, id, existing.LineID, merged)
		if err != nil {
			m.dropPending(key)
			return domain.Cart{}, fmt.Errorf("backend.UpdateItem: %w", err)
		}
	} else {
		cart, err = m.backend.AddItem(ctx, id, productID, quantity)
		if err != nil {
			m.dropPending(key)
			return domain.Cart{}, fmt.Errorf("backend.AddItem: %w", err)
		}
	}

	return m.confirm(ctx, id, key, cart), nil
}

// RemoveItem removes the product's line. Removing an absent product
// returns the cart unchanged.
func (m *Mirror) RemoveItem(ctx context.Context, productID int64) (domain.Cart, error) {
	id, err := m.identity.Identity()
	if err != nil {
		return domain.Cart{}, err
	}

	current := m.Snapshot()
	existing, found := current.Find(productID)
	if !found {
		return current, nil
	}

	key := m.beginPending(pendingOp{productID: productID})

	cart, err := m.backend.RemoveItem(ctx, id, existing.LineID)
	if err != nil {
		m.dropPending(key)
		return domain.Cart{}, fmt.Errorf("backend.RemoveItem: %w", err)
	}

	return m.confirm(ctx, id, key, cart), nil
}

// UpdateQuantity sets the line quantity. A quantity of zero or less removes
// the line.
func (m *Mirror) UpdateQuantity(ctx context.Context, productID int64, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return m.RemoveItem(ctx, productID)
	}
	if err := validateQuantity(quantity); err != nil {
		return domain.Cart{}, err
	}

	id, err := m.identity.Identity()
	if err != nil {
		return domain.Cart{}, err
	}

	current := m.Snapshot()
	existing, found := current.Find(productID)
	if !found {
		return current, nil
	}
	if existing.Quantity == quantity {
		return current, nil
	}

	if err := m.checkStock(ctx, id, productID, quantity); err != nil {
		return domain.Cart{}, err
	}

	key := m.beginPending(pendingOp{productID: productID, quantity: quantity})

	cart, err := m.backend.UpdateItem(ctx, id, existing.LineID, quantity)
	if err != nil {
		m.dropPending(key)
		return domain.Cart{}, fmt.Errorf("backend.UpdateItem: %w", err)
	}

	return m.confirm(ctx, id, key, cart), nil
}

// FetchCart pulls the authoritative cart. Concurrent calls share one
// request. On failure the confirmed cart is kept and freshness becomes
// unknown.
func (m *Mirror) FetchCart(ctx context.Context) (domain.Cart, error) {
	id, err := m.identity.Identity()
	if err != nil {
		return domain.Cart{}, err
	}

	v, err, _ := m.fetchGroup.Do(fmt.Sprintf("%d", id.UserID), func() (any, error) {
		cart, err := m.backend.GetCart(ctx, id)
		if err != nil {
			return nil, err
		}
		return m.confirm(ctx, id, 0, cart), nil
	})
	if err != nil {
		m.mu.Lock()
		m.freshness = FreshnessUnknown
		m.mu.Unlock()

		m.logger.Warn("cart fetch failed, keeping last confirmed cart",
			zap.Int64("user_id", id.UserID), zap.Error(err))
		return domain.Cart{}, fmt.Errorf("backend.GetCart: %w", err)
	}

	return v.(domain.Cart), nil
}

// ClearCart empties the local cart. The server cart is cleared only when
// the backend supports it; otherwise the two diverge until the next fetch.
func (m *Mirror) ClearCart(ctx context.Context) error {
	id, err := m.identity.Identity()
	if err != nil {
		return err
	}

	m.reset(id.UserID, FreshnessUnknown)

	if m.store != nil {
		if err := m.store.DeleteCart(ctx, id.UserID); err != nil {
			m.logger.Warn("cart snapshot delete failed", zap.Int64("user_id", id.UserID), zap.Error(err))
		}
	}

	clearer, ok := m.backend.(port.CartClearer)
	if !ok {
		m.logger.Warn("cart cleared locally only",
			zap.Int64("user_id", id.UserID),
			zap.Error(&domain.ConsistencyError{Reason: "backend cannot clear cart"}))
		return nil
	}

	if err := clearer.ClearCart(ctx, id); err != nil {
		cErr := &domain.ConsistencyError{Reason: "server cart not cleared", Err: err}
		m.logger.Warn("cart clear not mirrored server-side", zap.Int64("user_id", id.UserID), zap.Error(cErr))
		return cErr
	}

	m.mu.Lock()
	m.confirmed.ServerSyncedAt = m.now()
	m.freshness = FreshnessFresh
	m.mu.Unlock()

	return nil
}

// Restore loads the last persisted cart when nothing fresher is known.
// It returns the current snapshot either way.
func (m *Mirror) Restore(ctx context.Context) (domain.Cart, error) {
	if m.store == nil {
		return m.Snapshot(), nil
	}

	id, err := m.identity.Identity()
	if err != nil {
		return domain.Cart{}, err
	}

	cart, err := m.store.LoadCart(ctx, id.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return m.Snapshot(), nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("store.LoadCart: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.freshness != FreshnessFresh {
		m.confirmed = cart.Clone()
		m.freshness = FreshnessRestored
	}
	return m.confirmed.Clone(), nil
}

// Reset drops all local state, e.g. on logout.
func (m *Mirror) Reset() {
	m.reset(0, FreshnessUnknown)
}

func (m *Mirror) reset(ownerID int64, freshness Freshness) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.confirmed = domain.Cart{OwnerID: ownerID}
	m.pending = map[uint64]pendingOp{}
	m.freshness = freshness
}

func (m *Mirror) beginPending(op pendingOp) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.pending[m.seq] = op
	return m.seq
}

func (m *Mirror) dropPending(key uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
}

// confirm replaces the confirmed cart with a server response and persists it.
func (m *Mirror) confirm(ctx context.Context, id domain.Identity, key uint64, cart domain.Cart) domain.Cart {
	cart = cart.Clone()
	cart.OwnerID = id.UserID
	cart.ServerSyncedAt = m.now()

	if err := cart.Validate(); err != nil {
		m.logger.Warn("backend returned inconsistent cart",
			zap.Int64("user_id", id.UserID),
			zap.Error(&domain.ConsistencyError{Reason: "invalid cart from backend", Err: err}))
	}

	m.mu.Lock()
	m.confirmed = cart
	m.freshness = FreshnessFresh
	if key != 0 {
		delete(m.pending, key)
	}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveCart(ctx, cart); err != nil {
			m.logger.Warn("cart snapshot save failed", zap.Int64("user_id", id.UserID), zap.Error(err))
		}
	}

	return cart.Clone()
}

func (m *Mirror) checkStock(ctx context.Context, id domain.Identity, productID int64, quantity int) error {
	if m.stock == nil {
		return nil
	}

	available, err := m.stock.AvailableStock(ctx, id, productID)
	if err != nil {
		return fmt.Errorf("stock.AvailableStock: %w", err)
	}
	if quantity > available {
		return fmt.Errorf("product[%d] quantity %d, available %d: %w", productID, quantity, available, domain.ErrOutOfStock)
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity < domain.MinQuantity || quantity > domain.MaxQuantity {
		vErr := domain.NewValidationError()
		vErr.Add("quantity", fmt.Sprintf("must be between %d and %d", domain.MinQuantity, domain.MaxQuantity))
		return vErr
	}
	return nil
}

func applyPending(cart domain.Cart, op pendingOp) domain.Cart {
	for i, item := range cart.Items {
		if item.ProductID != op.productID {
			continue
		}
		if op.quantity == 0 {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		} else {
			cart.Items[i].Quantity = op.quantity
		}
		return cart
	}

	if op.quantity > 0 {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: op.productID, Quantity: op.quantity})
	}
	return cart
}
