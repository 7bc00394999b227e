package checkout

import "errors"

var (
	// -- Validation, rejected before any network call --
	ErrEmptyCart             = errors.New("cart is empty")
	ErrShippingNotSelected   = errors.New("shipping option not selected")
	ErrInvalidAddress        = errors.New("invalid shipping address")
	ErrInvalidLine           = errors.New("invalid cart line")
	ErrShippingQuoteNotFound = errors.New("no shipping quote for the selected option")

	ErrUnauthenticated = errors.New("login required to checkout")
)

// IsValidation reports whether err is fixable by the customer.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrShippingNotSelected) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInvalidLine) ||
		errors.Is(err, ErrShippingQuoteNotFound)
}
