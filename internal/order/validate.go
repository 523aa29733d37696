package order

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/go-playground/validator/v10"
)

var (
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	upiPattern    = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)
	expiryPattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
)

// fieldMessages are the messages shown next to each checkout field.
var fieldMessages = map[string]string{
	"fullName":      "Please enter your full name",
	"email":         "Please enter a valid email address",
	"phone":         "Please enter a valid phone number",
	"address":       "Please enter your address",
	"city":          "Please enter your city",
	"state":         "Please enter your state",
	"zipCode":       "Please enter a valid postal code",
	"cardNumber":    "Please enter a valid card number",
	"expiryDate":    "Please enter a valid expiry date (MM/YY)",
	"cvv":           "Please enter a valid CVV",
	"cardName":      "Please enter the name on your card",
	"upiId":         "Please enter a valid UPI ID",
	"paymentMethod": "Please select a payment method",
}

// CheckoutInput is what the checkout form submits.
type CheckoutInput struct {
	ShippingInfo   domain.ShippingInfo   `json:"shippingInfo"`
	PaymentMethod  domain.PaymentMethod  `json:"paymentMethod"`
	PaymentDetails domain.PaymentDetails `json:"paymentDetails"`
}

// trimmed returns a copy with surrounding whitespace removed from every
// field, the form the order is stored in.
func (in CheckoutInput) trimmed() CheckoutInput {
	s := &in.ShippingInfo
	for _, f := range []*string{&s.FullName, &s.Email, &s.Phone, &s.Address, &s.City, &s.State, &s.ZipCode} {
		*f = strings.TrimSpace(*f)
	}
	p := &in.PaymentDetails
	for _, f := range []*string{&p.CardNumber, &p.ExpiryDate, &p.CVV, &p.CardName, &p.UPIID} {
		*f = strings.TrimSpace(*f)
	}
	in.PaymentMethod = domain.PaymentMethod(strings.TrimSpace(string(in.PaymentMethod)))
	return in
}

type cardPayment struct {
	CardNumber string `json:"cardNumber" validate:"required,cardnumber"`
	ExpiryDate string `json:"expiryDate" validate:"required,cardexpiry"`
	CVV        string `json:"cvv" validate:"required,min=3"`
	CardName   string `json:"cardName" validate:"required"`
}

type upiPayment struct {
	UPIID string `json:"upiId" validate:"required,upiid"`
}

// CheckoutValidator checks shipping and payment fields. Payment details are
// checked for format only.
type CheckoutValidator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewCheckoutValidator(now func() time.Time) *CheckoutValidator {
	if now == nil {
		now = time.Now
	}
	v := &CheckoutValidator{validate: validator.New(validator.WithRequiredStructEnabled()), now: now}

	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.validate.RegisterValidation("shopemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("upiid", func(fl validator.FieldLevel) bool {
		return upiPattern.MatchString(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("cardnumber", func(fl validator.FieldLevel) bool {
		return validCardNumber(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("cardexpiry", func(fl validator.FieldLevel) bool {
		return validExpiry(fl.Field().String(), v.now())
	})
	return v
}

// Validate returns a *domain.ValidationError naming every bad field, or nil.
func (v *CheckoutValidator) Validate(in CheckoutInput) error {
	verr := domain.NewValidationError()

	v.collect(verr, in.ShippingInfo)

	switch in.PaymentMethod {
	case domain.PaymentCreditCard:
		v.collect(verr, cardPayment{
			CardNumber: in.PaymentDetails.CardNumber,
			ExpiryDate: in.PaymentDetails.ExpiryDate,
			CVV:        in.PaymentDetails.CVV,
			CardName:   in.PaymentDetails.CardName,
		})
	case domain.PaymentUPI:
		v.collect(verr, upiPayment{UPIID: in.PaymentDetails.UPIID})
	case domain.PaymentCOD:
	default:
		verr.Add("paymentMethod", fieldMessages["paymentMethod"])
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func (v *CheckoutValidator) collect(verr *domain.ValidationError, s any) {
	err := v.validate.Struct(s)
	if err == nil {
		return
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		verr.Add("form", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		msg, known := fieldMessages[fe.Field()]
		if !known {
			msg = "Please check this field"
		}
		verr.Add(fe.Field(), msg)
	}
}

func validCardNumber(number string) bool {
	digits := 0
	for _, r := range number {
		switch {
		case unicode.IsSpace(r):
		case r >= '0' && r <= '9':
			digits++
		default:
			return false
		}
	}
	return digits >= 16
}

// validExpiry accepts MM/YY for the current month or later.
func validExpiry(expiry string, now time.Time) bool {
	if !expiryPattern.MatchString(expiry) {
		return false
	}
	month, _ := strconv.Atoi(expiry[:2])
	year, _ := strconv.Atoi(expiry[3:])
	if month < 1 || month > 12 {
		return false
	}

	currentYear := now.Year() % 100
	currentMonth := int(now.Month())
	if year < currentYear || (year == currentYear && month < currentMonth) {
		return false
	}
	return true
}
