package payment

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

var upiPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+$`)

type cardFields struct {
	CardNumber string `validate:"required,len=16,number"`
	Expiry     string `validate:"required,expiry"`
	CVV        string `validate:"required,len=3,number"`
	CardName   string `validate:"required"`
}

type upiFields struct {
	UPIID string `validate:"required,upi"`
}

var fieldNames = map[string]string{
	"CardNumber": "cardNumber",
	"Expiry":     "expiry",
	"CVV":        "cvv",
	"CardName":   "cardName",
	"UPIID":      "upiId",
}

var fieldReasons = map[string]string{
	"CardNumber": "card number must have 16 digits",
	"Expiry":     "expiry must be MM/YY and not in the past",
	"CVV":        "cvv must have 3 digits",
	"CardName":   "name on card is required",
	"UPIID":      "upi id must look like name@bank",
}

// Validator checks payment details against the rules of their method.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}

	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled()), now: now}
	_ = v.validate.RegisterValidation("upi", func(fl validator.FieldLevel) bool {
		return upiPattern.MatchString(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("expiry", func(fl validator.FieldLevel) bool {
		return !expired(fl.Field().String(), v.now())
	})

	return v
}

// Validate returns a *domain.ValidationError listing every failing field.
func (v *Validator) Validate(details domain.PaymentDetails) error {
	switch details.Method {
	case domain.PaymentMethodCard:
		return v.check(cardFields{
			CardNumber: stripCardNumber(details.CardNumber),
			Expiry:     strings.TrimSpace(details.Expiry),
			CVV:        strings.TrimSpace(details.CVV),
			CardName:   strings.TrimSpace(details.CardName),
		})
	case domain.PaymentMethodUPI:
		return v.check(upiFields{UPIID: strings.TrimSpace(details.UPIID)})
	case domain.PaymentMethodCOD, domain.PaymentMethodPayPal:
		return nil
	default:
		vErr := domain.NewValidationError()
		vErr.Add("method", fmt.Sprintf("payment method %q is not supported", details.Method))
		return vErr
	}
}

func (v *Validator) check(fields any) error {
	err := v.validate.Struct(fields)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate.Struct: %w", err)
	}

	vErr := domain.NewValidationError()
	for _, fe := range fieldErrs {
		vErr.Add(fieldNames[fe.Field()], fieldReasons[fe.Field()])
	}
	return vErr
}

func stripCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// expired reports whether an MM/YY expiry is malformed or before the
// current month.
func expired(expiry string, now time.Time) bool {
	t, err := time.Parse("01/06", expiry)
	if err != nil {
		return true
	}

	year, month, _ := now.Date()
	if t.Year() != year {
		return t.Year() < year
	}
	return t.Month() < month
}
