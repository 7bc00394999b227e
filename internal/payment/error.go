package payment

import "errors"

var (
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayRejected      = errors.New("payment gateway rejected the request")
	ErrTransactionNotFound  = errors.New("transaction not found at payment gateway")
	ErrInvalidSignature     = errors.New("invalid notification signature")
	ErrInvalidAmount        = errors.New("invalid gross amount")
	ErrMissingOrderRef      = errors.New("order reference is required")
	ErrOutcomeNotApplicable = errors.New("payment outcome does not apply to this order")
)
