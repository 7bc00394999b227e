package tracking

import "errors"

var (
	ErrMissingTrackingNumber = errors.New("order has no tracking number yet")
	ErrShipmentNotFound      = errors.New("shipment not found at any courier")
	ErrTrackingUnavailable   = errors.New("tracking service unavailable")
)
