// Package checkout drives one checkout flow per user from address
// selection through payment to a confirmed, immutable order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"github.com/nikolayk812/storefront-checkout/internal/pricing"
	"go.uber.org/zap"
)

// CartSource is the live cart of the session.
type CartSource interface {
	FetchCart(ctx context.Context) (domain.Cart, error)
	Snapshot() domain.Cart
	ClearCart(ctx context.Context) error
}

// AddressSource lists addresses default-first.
type AddressSource interface {
	List(ctx context.Context) ([]domain.Address, error)
}

type PaymentValidator interface {
	Validate(details domain.PaymentDetails) error
}

type Deps struct {
	Cart          CartSource
	Addresses     AddressSource
	Validator     PaymentValidator
	Payments      port.PaymentProcessor
	History       port.OrderHistory
	Confirmations port.ConfirmationStore

	Rules            pricing.Rules
	DeliveryEstimate time.Duration
	Logger           *zap.Logger
}

type Orchestrator struct {
	deps Deps
	now  func() time.Time

	mu    sync.Mutex
	flows map[int64]*Flow
}

func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Cart == nil:
		return nil, fmt.Errorf("cart source is nil")
	case deps.Addresses == nil:
		return nil, fmt.Errorf("address source is nil")
	case deps.Validator == nil:
		return nil, fmt.Errorf("payment validator is nil")
	case deps.Payments == nil:
		return nil, fmt.Errorf("payment processor is nil")
	case deps.History == nil:
		return nil, fmt.Errorf("order history is nil")
	}
	if err := deps.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("rules.Validate: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Orchestrator{
		deps:  deps,
		now:   time.Now,
		flows: map[int64]*Flow{},
	}, nil
}

// Begin starts a checkout flow for the user. An empty cart short-circuits
// with domain.ErrCartEmpty and no flow is created. A previous flow of the
// same user is replaced unless it is submitting.
func (o *Orchestrator) Begin(ctx context.Context, identity domain.Identity) (*Flow, error) {
	cart, err := o.currentCart(ctx)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, domain.ErrCartEmpty
	}

	breakdown, err := pricing.Breakdown(cart, o.deps.Rules)
	if err != nil {
		return nil, fmt.Errorf("pricing.Breakdown: %w", err)
	}

	flow := &Flow{
		o:              o,
		identity:       identity,
		idempotencyKey: uuid.NewString(),
		state:          StateSelectingAddress,
		cart:           cart,
		breakdown:      breakdown,
		fieldErrors:    map[string]string{},
	}

	o.mu.Lock()
	if prev, ok := o.flows[identity.UserID]; ok {
		if err := prev.replaced(); err != nil {
			o.mu.Unlock()
			return nil, err
		}
	}
	o.flows[identity.UserID] = flow
	o.mu.Unlock()

	o.deps.Logger.Info("checkout started",
		zap.Int64("user_id", identity.UserID),
		zap.Int("items", cart.ItemCount()),
		zap.Stringer("total", breakdown.Total))

	if err := flow.RefreshAddresses(ctx); err != nil && errors.Is(err, domain.ErrUnauthenticated) {
		return nil, err
	}

	return flow, nil
}

// Active returns the user's current flow, if any.
func (o *Orchestrator) Active(userID int64) (*Flow, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	flow, ok := o.flows[userID]
	return flow, ok
}

// currentCart fetches the live cart, falling back to the last confirmed
// cart when the backend is unreachable.
func (o *Orchestrator) currentCart(ctx context.Context) (domain.Cart, error) {
	cart, err := o.deps.Cart.FetchCart(ctx)
	if err == nil {
		return cart, nil
	}
	if !domain.IsNetwork(err) {
		return domain.Cart{}, err
	}

	o.deps.Logger.Warn("using last confirmed cart", zap.Error(err))
	return o.deps.Cart.Snapshot(), nil
}
