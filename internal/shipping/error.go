package shipping

import "errors"

var (
	ErrQuoteNotFound      = errors.New("shipping quote not found, fetch rates again")
	ErrServiceNotQuoted   = errors.New("selected shipping service is not in the quote")
	ErrRatesUnavailable   = errors.New("shipping rates unavailable")
	ErrInvalidDestination = errors.New("invalid destination")
)
