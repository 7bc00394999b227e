package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"npcshop-be/internal/checkout"
	"npcshop-be/internal/order"
	"npcshop-be/internal/payment"
	"npcshop-be/internal/recovery"
	"npcshop-be/internal/shipping"
	"npcshop-be/internal/tracking"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type QuoteFetcher interface {
	FetchQuote(ctx context.Context, userID int64, req shipping.QuoteRequest) (*shipping.Quote, error)
}

type OutcomeConfirmer interface {
	Confirm(ctx context.Context, userID int64, report payment.PaymentOutcome) (*payment.HandleResult, error)
}

type OrderService interface {
	GetOrderDetail(ctx context.Context, id int64) (*order.Order, error)
	GetOrderDetailByNumber(ctx context.Context, number string) (*order.Order, error)
	ListMyOrders(ctx context.Context, filter order.OrderFilter, page order.Pagination) ([]*order.Order, error)
	UpdateStatus(ctx context.Context, id int64, change order.Change) (*order.Order, error)
	ConfirmDelivery(ctx context.Context, id int64) (*order.Order, error)
	ReviewEligibility(ctx context.Context, id int64) (*order.Order, bool, error)
}

type Recoverer interface {
	Resolve(ctx context.Context, userID int64, ref string) (*recovery.Result, error)
}

type OrderTracker interface {
	TrackOrder(ctx context.Context, orderID int64) (*tracking.Result, error)
}

type Handler struct {
	checkout Checkouter
	quotes   QuoteFetcher
	outcomes OutcomeConfirmer
	orders   OrderService
	recovery Recoverer
	tracking OrderTracker
	validate *validator.Validate
}

func New(
	checkout Checkouter,
	quotes QuoteFetcher,
	outcomes OutcomeConfirmer,
	orders OrderService,
	recovery Recoverer,
	tracking OrderTracker,
) *Handler {
	return &Handler{
		checkout: checkout,
		quotes:   quotes,
		outcomes: outcomes,
		orders:   orders,
		recovery: recovery,
		tracking: tracking,
		validate: validator.New(),
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

// validationMessage flattens validator errors into "field: rule" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
