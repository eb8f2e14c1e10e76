package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"go.uber.org/zap"
)

// ErrIdempotencyConflict is returned when a known idempotency key arrives
// with a different amount or payment method.
var ErrIdempotencyConflict = errors.New("idempotency key reused for a different charge")

// Simulator stands in for a payment gateway. Charges with the same
// idempotency key, amount and method return the first receipt.
type Simulator struct {
	delay  time.Duration
	logger *zap.Logger

	// FailWith, when set, decides whether a charge is declined.
	FailWith func(req port.ChargeRequest) error

	mu       sync.Mutex
	receipts map[string]chargeRecord
	charges  int
}

type chargeRecord struct {
	receipt port.ChargeReceipt
	amount  domain.Money
	method  domain.PaymentMethod
}

func (r chargeRecord) replay(req port.ChargeRequest) (port.ChargeReceipt, error) {
	if r.amount.Minor != req.Amount.Minor || !r.amount.SameCurrency(req.Amount) || r.method != req.Details.Method {
		return port.ChargeReceipt{}, fmt.Errorf("key[%s] charged %s by %s: %w",
			req.IdempotencyKey, r.amount, r.method, ErrIdempotencyConflict)
	}
	return r.receipt, nil
}

func NewSimulator(delay time.Duration, logger *zap.Logger) *Simulator {
	return &Simulator{
		delay:    delay,
		logger:   logger,
		receipts: map[string]chargeRecord{},
	}
}

func (s *Simulator) Charge(ctx context.Context, req port.ChargeRequest) (port.ChargeReceipt, error) {
	if req.IdempotencyKey == "" {
		return port.ChargeReceipt{}, fmt.Errorf("idempotency key is empty")
	}

	s.mu.Lock()
	if record, ok := s.receipts[req.IdempotencyKey]; ok {
		s.mu.Unlock()
		return record.replay(req)
	}
	s.mu.Unlock()

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return port.ChargeReceipt{}, ctx.Err()
		case <-timer.C:
		}
	}

	if s.FailWith != nil {
		if err := s.FailWith(req); err != nil {
			return port.ChargeReceipt{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.receipts[req.IdempotencyKey]; ok {
		return record.replay(req)
	}

	receipt := port.ChargeReceipt{PaymentID: "pay_" + uuid.NewString()}
	s.receipts[req.IdempotencyKey] = chargeRecord{
		receipt: receipt,
		amount:  req.Amount,
		method:  req.Details.Method,
	}
	s.charges++

	s.logger.Info("payment charged",
		zap.Int64("user_id", req.Identity.UserID),
		zap.String("method", string(req.Details.Method)),
		zap.Stringer("amount", req.Amount),
		zap.String("payment_id", receipt.PaymentID))

	return receipt, nil
}

// Charges is the number of distinct payments taken.
func (s *Simulator) Charges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.charges
}
