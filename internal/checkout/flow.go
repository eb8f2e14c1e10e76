package checkout

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"github.com/nikolayk812/storefront-checkout/internal/pricing"
	"go.uber.org/zap"
)

// Flow is a single checkout attempt. Its methods are safe for concurrent
// use; at most one Submit runs at a time.
type Flow struct {
	o        *Orchestrator
	identity domain.Identity

	mu             sync.Mutex
	idempotencyKey string
	charged        *charge
	state          State
	cart           domain.Cart
	breakdown      domain.PriceBreakdown
	addresses      []domain.Address
	selected       domain.Address
	fieldErrors    map[string]string
	message        string
	order          domain.Order
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Errors returns the field-level errors of the last payment validation.
func (f *Flow) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.fieldErrors)
}

// Message is the last banner-level error, empty when none.
func (f *Flow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

func (f *Flow) Breakdown() domain.PriceBreakdown {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.breakdown
}

func (f *Flow) Addresses() []domain.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.addresses)
}

func (f *Flow) SelectedAddress() (domain.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected, f.selected.ID != 0
}

// charge is the last payment taken by the flow.
type charge struct {
	amount    domain.Money
	method    domain.PaymentMethod
	paymentID string
}

func (c charge) covers(amount domain.Money, method domain.PaymentMethod) bool {
	return c.amount.Minor == amount.Minor && c.amount.SameCurrency(amount) && c.method == method
}

// Order returns the placed order once the flow is confirmed.
func (f *Flow) Order() (domain.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.order.Clone(), f.state == StateConfirmed
}

// RefreshAddresses reloads the address list. It is the way out of
// StateNoAddress after an address has been created.
func (f *Flow) RefreshAddresses(ctx context.Context) error {
	if state := f.State(); state != StateSelectingAddress && state != StateNoAddress {
		return fmt.Errorf("refresh addresses in %s: %w", state, ErrIllegalTransition)
	}

	addresses, err := f.o.deps.Addresses.List(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			f.fail(domain.ErrUnauthenticated.Error())
			return err
		}
		f.message = "could not load addresses, please retry"
		return fmt.Errorf("addresses.List: %w", err)
	}

	f.addresses = addresses
	f.message = ""

	if len(addresses) == 0 {
		f.selected = domain.Address{}
		return f.moveTo(StateNoAddress)
	}

	if !slices.ContainsFunc(addresses, func(a domain.Address) bool { return a.ID == f.selected.ID }) {
		f.selected = addresses[0]
	}
	return f.moveTo(StateSelectingAddress)
}

// SelectAddress picks one of the listed addresses.
func (f *Flow) SelectAddress(addressID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateSelectingAddress {
		return fmt.Errorf("select address in %s: %w", f.state, ErrIllegalTransition)
	}

	i := slices.IndexFunc(f.addresses, func(a domain.Address) bool { return a.ID == addressID })
	if i < 0 {
		return fmt.Errorf("address[%d]: %w", addressID, domain.ErrNotFound)
	}

	f.selected = f.addresses[i]
	return nil
}

// ConfirmAddress moves on to payment with the selected address.
func (f *Flow) ConfirmAddress() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateNoAddress || (f.state == StateSelectingAddress && f.selected.ID == 0) {
		return domain.ErrNoAddress
	}
	return f.moveTo(StateValidatingPayment)
}

// ChangeAddress goes back from payment to address selection.
func (f *Flow) ChangeAddress() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateValidatingPayment {
		return fmt.Errorf("change address in %s: %w", f.state, ErrIllegalTransition)
	}
	return f.moveTo(StateSelectingAddress)
}

// Abort ends the flow. A submitting flow cannot be aborted.
func (f *Flow) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateConfirmed:
		return ErrAlreadyConfirmed
	case StateFailed:
		return nil
	}

	f.fail("checkout aborted")
	return nil
}

// Submit validates the payment details, charges the live cart total and
// records the order. Validation failures keep the flow in
// StateValidatingPayment with field errors; processing failures return it
// there with a message. A concurrent Submit gets ErrSubmitInProgress.
func (f *Flow) Submit(ctx context.Context, details domain.PaymentDetails) (domain.Order, error) {
	address, err := f.beginSubmit(details)
	if err != nil {
		return domain.Order{}, err
	}

	deps := f.o.deps
	logger := deps.Logger.With(zap.Int64("user_id", f.identity.UserID))

	cart, err := deps.Cart.FetchCart(ctx)
	if err != nil {
		return domain.Order{}, f.abandonSubmit(logger, "could not refresh cart, please retry", fmt.Errorf("cart.FetchCart: %w", err))
	}
	if cart.IsEmpty() {
		f.mu.Lock()
		f.fail(domain.ErrCartEmpty.Error())
		f.mu.Unlock()
		return domain.Order{}, domain.ErrCartEmpty
	}

	breakdown, err := pricing.Breakdown(cart, deps.Rules)
	if err != nil {
		return domain.Order{}, f.abandonSubmit(logger, "could not price the cart", fmt.Errorf("pricing.Breakdown: %w", err))
	}

	key := f.chargeKey(logger, breakdown.Total, details.Method)
	logger = logger.With(zap.String("idempotency_key", key))

	receipt, err := deps.Payments.Charge(ctx, port.ChargeRequest{
		IdempotencyKey: key,
		Identity:       f.identity,
		Amount:         breakdown.Total,
		Details:        details,
	})
	if err != nil {
		return domain.Order{}, f.abandonSubmit(logger, "payment failed, please try again", fmt.Errorf("payments.Charge: %w", err))
	}

	f.mu.Lock()
	f.charged = &charge{amount: breakdown.Total, method: details.Method, paymentID: receipt.PaymentID}
	f.mu.Unlock()

	orderID, err := uuid.NewV7()
	if err != nil {
		return domain.Order{}, f.abandonSubmit(logger, "could not create order", fmt.Errorf("uuid.NewV7: %w", err))
	}

	now := f.o.now().UTC()
	order := domain.Order{
		ID:                orderID.String(),
		UserID:            f.identity.UserID,
		Items:             domain.OrderItemsFromCart(cart),
		Price:             breakdown,
		ShippingAddress:   domain.OrderAddressFrom(address),
		PaymentMethod:     details.Method,
		PaymentID:         receipt.PaymentID,
		OrderDate:         now,
		EstimatedDelivery: now.Add(deps.DeliveryEstimate),
	}

	if err := deps.History.Record(ctx, order); err != nil {
		return domain.Order{}, f.abandonSubmit(logger, "could not save order, please try again", fmt.Errorf("history.Record: %w", err))
	}

	if err := deps.Cart.ClearCart(ctx); err != nil {
		logger.Warn("cart not cleared after order", zap.String("order_id", order.ID), zap.Error(err))
	}

	if deps.Confirmations != nil {
		if err := deps.Confirmations.SaveLastOrder(ctx, order); err != nil {
			logger.Warn("order confirmation hand-off failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	f.mu.Lock()
	f.cart = cart
	f.breakdown = breakdown
	f.order = order.Clone()
	err = f.moveTo(StateConfirmed)
	f.mu.Unlock()
	if err != nil {
		return domain.Order{}, err
	}

	logger.Info("order confirmed",
		zap.String("order_id", order.ID),
		zap.String("payment_id", order.PaymentID),
		zap.Stringer("total", order.Price.Total))

	return order, nil
}

// chargeKey returns the idempotency key for charging amount by method. A
// retry reuses the key of an earlier charge only when that charge was for
// the same amount and method.
func (f *Flow) chargeKey(logger *zap.Logger, amount domain.Money, method domain.PaymentMethod) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c := f.charged; c != nil && !c.covers(amount, method) {
		logger.Warn("cart or payment method changed after charge, taking a new payment",
			zap.String("superseded_payment_id", c.paymentID),
			zap.Stringer("charged", c.amount),
			zap.String("charged_method", string(c.method)),
			zap.Stringer("amount", amount))

		f.idempotencyKey = uuid.NewString()
		f.charged = nil
	}

	return f.idempotencyKey
}

// beginSubmit guards re-entry and validates the payment details.
func (f *Flow) beginSubmit(details domain.PaymentDetails) (domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateSubmitting:
		return domain.Address{}, ErrSubmitInProgress
	case StateConfirmed:
		return domain.Address{}, ErrAlreadyConfirmed
	case StateValidatingPayment:
	default:
		return domain.Address{}, fmt.Errorf("submit in %s: %w", f.state, ErrIllegalTransition)
	}

	f.message = ""
	f.fieldErrors = map[string]string{}

	if err := f.o.deps.Validator.Validate(details); err != nil {
		if vErr, ok := domain.AsValidation(err); ok {
			f.fieldErrors = maps.Clone(vErr.Fields)
		}
		return domain.Address{}, err
	}

	if err := f.moveTo(StateSubmitting); err != nil {
		return domain.Address{}, err
	}
	return f.selected, nil
}

// abandonSubmit returns the flow to payment entry, or fails it when the
// session is no longer authenticated.
func (f *Flow) abandonSubmit(logger *zap.Logger, message string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if errors.Is(cause, domain.ErrUnauthenticated) {
		f.fail(domain.ErrUnauthenticated.Error())
		logger.Warn("checkout failed", zap.Error(cause))
		return cause
	}

	f.message = message
	if err := f.moveTo(StateValidatingPayment); err != nil {
		return err
	}

	logger.Warn("order submission failed", zap.Error(cause))
	return cause
}

// replaced fails the flow in favour of a new one. A submitting flow is
// left alone and ErrFlowActive is returned.
func (f *Flow) replaced() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateSubmitting {
		return ErrFlowActive
	}
	f.fail("replaced by a new checkout")
	return nil
}

// moveTo must be called with f.mu held.
func (f *Flow) moveTo(next State) error {
	if !f.state.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", f.state, next, ErrIllegalTransition)
	}
	f.state = next
	return nil
}

// fail must be called with f.mu held.
func (f *Flow) fail(message string) {
	if f.state.IsTerminal() {
		return
	}
	f.state = StateFailed
	f.message = message
}
