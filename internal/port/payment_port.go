package port

import (
	"context"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

type ChargeRequest struct {
	IdempotencyKey string
	Identity       domain.Identity
	Amount         domain.Money
	Details        domain.PaymentDetails
}

type ChargeReceipt struct {
	PaymentID string
}

type PaymentProcessor interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeReceipt, error)
}
