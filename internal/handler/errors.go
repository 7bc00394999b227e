package handler

import (
	"context"
	"errors"
	"net/http"

	"npcshop-be/internal/checkout"
	"npcshop-be/internal/logger"
	"npcshop-be/internal/order"
	"npcshop-be/internal/payment"
	"npcshop-be/internal/recovery"
	"npcshop-be/internal/shipping"
	"npcshop-be/internal/tracking"
	"npcshop-be/internal/utils"

	"go.uber.org/zap"
)

var statusClasses = []struct {
	code int
	errs []error
}{
	{http.StatusBadRequest, []error{
		errBadRequest,
		shipping.ErrInvalidDestination,
		shipping.ErrQuoteNotFound,
		shipping.ErrServiceNotQuoted,
		payment.ErrMissingOrderRef,
		payment.ErrInvalidAmount,
		payment.ErrOutcomeNotApplicable,
		order.ErrEmptyOrder,
		order.ErrInvalidQuantity,
		order.ErrNegativeAmount,
		order.ErrDiscountExceedsSubtotal,
		order.ErrTotalMismatch,
		order.ErrMissingTransactionID,
	}},
	{http.StatusUnauthorized, []error{
		checkout.ErrUnauthenticated,
		recovery.ErrUnauthenticated,
		order.ErrUnauthorized,
	}},
	{http.StatusForbidden, []error{
		order.ErrForbidden,
	}},
	{http.StatusNotFound, []error{
		order.ErrOrderNotFound,
		tracking.ErrShipmentNotFound,
		payment.ErrTransactionNotFound,
	}},
	{http.StatusConflict, []error{
		order.ErrInvalidTransition,
		order.ErrTerminalStatus,
		order.ErrTrackingNumberRequired,
		order.ErrShipmentDispatched,
		order.ErrTriggerNotAllowed,
		order.ErrConcurrentUpdate,
		tracking.ErrMissingTrackingNumber,
	}},
	{http.StatusBadGateway, []error{
		payment.ErrGatewayUnavailable,
		payment.ErrGatewayRejected,
		shipping.ErrRatesUnavailable,
		tracking.ErrTrackingUnavailable,
	}},
	{http.StatusGatewayTimeout, []error{
		context.DeadlineExceeded,
	}},
	{http.StatusRequestTimeout, []error{
		context.Canceled,
	}},
}

func statusFor(err error) int {
	if checkout.IsValidation(err) {
		return http.StatusBadRequest
	}
	for _, class := range statusClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.code
			}
		}
	}
	return http.StatusInternalServerError
}

// writeError maps a domain error to its HTTP status. Internal errors are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, method string, err error) {
	code := statusFor(err)
	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "handler"),
		zap.String("method", method),
		zap.Int("status", code),
	)

	msg := err.Error()
	if code >= http.StatusInternalServerError && code != http.StatusBadGateway && code != http.StatusGatewayTimeout {
		log.Error("request failed", zap.Error(err))
		msg = "internal server error"
	} else {
		log.Info("request rejected", zap.Error(err))
	}

	utils.WriteJSONError(w, msg, code)
}
