package domain

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodPayPal PaymentMethod = "paypal"
)

type PaymentDetails struct {
	Method PaymentMethod

	CardNumber string
	Expiry     string
	CVV        string
	CardName   string

	UPIID string
}
