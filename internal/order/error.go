package order

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden: order belongs to another user")

	// -- Creation invariants --
	ErrEmptyOrder              = errors.New("order has no items")
	ErrInvalidQuantity         = errors.New("item quantity must be greater than zero")
	ErrNegativeAmount          = errors.New("monetary amounts must not be negative")
	ErrDiscountExceedsSubtotal = errors.New("discount exceeds subtotal")
	ErrTotalMismatch           = errors.New("grand total does not match subtotal - discount + shipping fee")
	ErrDuplicateTransaction    = errors.New("transaction already resolved to an order")
	ErrMissingTransactionID    = errors.New("transaction id is required")

	// -- State machine --
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrTerminalStatus         = errors.New("order is in a terminal status")
	ErrTrackingNumberRequired = errors.New("tracking number is required to ship an order")
	ErrShipmentDispatched     = errors.New("order cannot be cancelled after shipment was dispatched")
	ErrTriggerNotAllowed      = errors.New("transition not allowed for this actor")
	ErrConcurrentUpdate       = errors.New("order status changed concurrently")

	// -- Constants (External Systems) --
	PgUniqueViolation = "23505"
)
