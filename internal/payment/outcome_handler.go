package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"npcshop-be/internal/address"
	"npcshop-be/internal/logger"
	"npcshop-be/internal/metrics"
	"npcshop-be/internal/order"

	"go.uber.org/zap"
)

type OrderService interface {
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	GetByNumber(ctx context.Context, number string) (*order.Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id int64, change order.Change) (*order.Order, error)
	MarkPaymentPending(ctx context.Context, id int64, method string) (*order.Order, error)
}

type CartRemover interface {
	RemoveItems(ctx context.Context, userID int64, productIDs []string) (int64, error)
}

type AddressSaver interface {
	PersistAddress(ctx context.Context, userID int64, addr address.Address) (*address.Address, error)
}

// OutcomeStage is the per-user staging area for widget results.
type OutcomeStage interface {
	SaveOutcome(ctx context.Context, userID int64, outcome PaymentOutcome) error
	ClearOutcome(ctx context.Context, userID int64) error
	TakeSaveAddress(ctx context.Context, orderNumber string) (bool, error)
}

type HandleResult struct {
	Order          *order.Order `json:"order,omitempty"`
	Outcome        string       `json:"outcome"`
	AlreadyApplied bool         `json:"alreadyApplied"`
	Instructions   []string     `json:"instructions,omitempty"`
}

type OutcomeHandler struct {
	orders    OrderService
	gateway   Gateway
	cart      CartRemover
	addresses AddressSaver
	stage     OutcomeStage
	metrics   *metrics.Pipeline
	now       func() time.Time
}

func NewOutcomeHandler(
	orders OrderService,
	gateway Gateway,
	cart CartRemover,
	addresses AddressSaver,
	stage OutcomeStage,
	m *metrics.Pipeline,
) *OutcomeHandler {
	return &OutcomeHandler{
		orders:    orders,
		gateway:   gateway,
		cart:      cart,
		addresses: addresses,
		stage:     stage,
		metrics:   m,
		now:       time.Now,
	}
}

// StageOutcome caches a success-class widget result for the user so recovery
// can still find it after a reload.
func (h *OutcomeHandler) StageOutcome(ctx context.Context, userID int64, p PaymentOutcome) error {
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = h.now()
	}
	return h.stage.SaveOutcome(ctx, userID, p)
}

// Confirm applies a result reported by the storefront widget. The report is
// staged first, then the gateway is asked for the authoritative status and
// that status is what gets applied.
func (h *OutcomeHandler) Confirm(ctx context.Context, userID int64, report PaymentOutcome) (*HandleResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmOutcome"),
		zap.String("order_ref", report.OrderRef),
		zap.String("transaction_status", report.TransactionStatus),
	)

	if report.StatusCode == "" && report.TransactionStatus == "" {
		return h.Handle(ctx, report.OrderRef, Abort{Reason: "payment window closed"})
	}

	if report.IsSuccess() {
		if err := h.StageOutcome(ctx, userID, report); err != nil {
			log.Error("failed to stage payment outcome", zap.Error(err))
		}
	}

	if report.OrderRef == "" {
		return nil, ErrMissingOrderRef
	}

	o, err := h.orders.GetByNumber(ctx, report.OrderRef)
	if err != nil {
		log.Warn("order for reported outcome not found", zap.Error(err))
		return nil, err
	}
	if o.UserID != userID {
		log.Warn("outcome reported for another user's order", zap.Int64("owner_id", o.UserID))
		return nil, order.ErrForbidden
	}

	status, err := h.gateway.GetTransactionStatus(ctx, report.OrderRef)
	if err != nil {
		log.Error("failed to verify outcome with gateway", zap.Error(err))
		return nil, err
	}

	return h.Handle(ctx, report.OrderRef, OutcomeFromStatus(status))
}

// Handle applies outcome to the order identified by orderRef.
func (h *OutcomeHandler) Handle(ctx context.Context, orderRef string, outcome Outcome) (*HandleResult, error) {
	timer := metrics.StartTimer()
	res, err := h.handle(ctx, orderRef, outcome)

	result := "applied"
	switch {
	case err != nil:
		result = "error"
	case res.AlreadyApplied:
		result = "already_applied"
	}
	h.metrics.ObserveOutcome(outcome.Kind(), result, timer.Duration())

	return res, err
}

func (h *OutcomeHandler) handle(ctx context.Context, orderRef string, outcome Outcome) (*HandleResult, error) {
	if _, ok := outcome.(Abort); ok {
		logger.FromCtx(ctx).Info("payment aborted, order left untouched", zap.String("order_ref", orderRef))
		return &HandleResult{Outcome: outcome.Kind()}, nil
	}

	if orderRef == "" {
		return nil, ErrMissingOrderRef
	}

	o, err := h.orders.GetByNumber(ctx, orderRef)
	if err != nil {
		return nil, err
	}

	switch oc := outcome.(type) {
	case Success:
		return h.applySuccess(ctx, o, oc)
	case Pending:
		return h.applyPending(ctx, o, oc)
	case Failure:
		return h.applyFailure(ctx, o, oc)
	}
	return nil, fmt.Errorf("unsupported outcome %T", outcome)
}

func (h *OutcomeHandler) applySuccess(ctx context.Context, o *order.Order, s Success) (*HandleResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ApplySuccess"),
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("transaction_id", s.TransactionID),
	)

	if o.PaymentStatus == order.PaymentPaid {
		log.Info("order already paid, skipping")
		return &HandleResult{Order: o, Outcome: s.Kind(), AlreadyApplied: true}, nil
	}

	if s.GrossAmount > 0 && s.GrossAmount != o.GrandTotal {
		log.Error("paid amount differs from order total",
			zap.Int64("gross_amount", s.GrossAmount),
			zap.Int64("grand_total", o.GrandTotal),
		)
		return nil, fmt.Errorf("%w: paid %d, order total %d", ErrOutcomeNotApplicable, s.GrossAmount, o.GrandTotal)
	}

	change := order.Change{To: order.StatusProcessing, Trigger: order.TriggerPayment}
	if s.TransactionID != "" {
		txID := s.TransactionID
		change.TransactionID = &txID
	}
	if s.Method != "" {
		method := s.Method
		change.PaymentMethod = &method
	}

	updated, err := h.orders.UpdateStatus(ctx, o.ID, change)
	if err != nil {
		if errors.Is(err, order.ErrDuplicateTransaction) && s.TransactionID != "" {
			return h.supersede(ctx, o, s)
		}
		if errors.Is(err, order.ErrInvalidTransition) {
			if cur, rerr := h.orders.GetByID(ctx, o.ID); rerr == nil && cur.PaymentStatus == order.PaymentPaid {
				log.Info("concurrent success already applied")
				return &HandleResult{Order: cur, Outcome: s.Kind(), AlreadyApplied: true}, nil
			}
		}
		log.Error("failed to mark order paid", zap.String("status", string(o.Status)), zap.Error(err))
		return nil, err
	}

	log.Info("order paid", zap.String("payment_method", updated.PaymentMethod))
	h.afterPayment(ctx, updated)

	return &HandleResult{Order: updated, Outcome: s.Kind()}, nil
}

// supersede handles a success whose transaction is already recorded on
// another order, typically a fallback created by recovery. That order keeps
// the payment and the draft is retired.
func (h *OutcomeHandler) supersede(ctx context.Context, o *order.Order, s Success) (*HandleResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "SupersedeDraft"),
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("transaction_id", s.TransactionID),
	)

	owner, err := h.orders.GetByTransactionID(ctx, s.TransactionID)
	if err != nil {
		log.Error("transaction recorded elsewhere but owner not loadable", zap.Error(err))
		return nil, err
	}
	log = log.With(zap.String("owner_order_number", owner.OrderNumber))

	if _, err := h.orders.UpdateStatus(ctx, o.ID, order.Change{
		To:      order.StatusCancelled,
		Trigger: order.TriggerReconcile,
	}); err != nil {
		log.Error("failed to retire superseded draft", zap.Error(err))
	} else {
		log.Warn("draft retired, payment already recorded on another order")
	}

	return &HandleResult{Order: owner, Outcome: s.Kind(), AlreadyApplied: true}, nil
}

// afterPayment runs the side effects of a first successful payment. The
// payment is recorded at this point, so failures are only logged.
func (h *OutcomeHandler) afterPayment(ctx context.Context, o *order.Order) {
	log := logger.FromCtx(ctx).With(
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
	)

	if h.cart != nil {
		if _, err := h.cart.RemoveItems(ctx, o.UserID, o.ProductIDs()); err != nil {
			log.Error("failed to remove purchased items from cart", zap.Error(err))
		}
	}

	saveAddress, err := h.stage.TakeSaveAddress(ctx, o.OrderNumber)
	if err != nil {
		log.Error("failed to read save-address preference", zap.Error(err))
	}
	if saveAddress && h.addresses != nil && o.ShippingAddress.Address != "" {
		a := o.ShippingAddress
		_, err := h.addresses.PersistAddress(ctx, o.UserID, address.Address{
			Name:     a.Name,
			Phone:    a.Phone,
			Address1: a.Address,
			City:     a.City,
			Province: a.Province,
			Postal:   a.PostalCode,
		})
		if err != nil {
			log.Error("failed to save shipping address", zap.Error(err))
		}
	}

	if err := h.stage.ClearOutcome(ctx, o.UserID); err != nil {
		log.Error("failed to clear staged outcome", zap.Error(err))
	}
}

func (h *OutcomeHandler) applyPending(ctx context.Context, o *order.Order, p Pending) (*HandleResult, error) {
	res := &HandleResult{Outcome: p.Kind(), Instructions: InstructionsFor(p)}

	if o.PaymentStatus != order.PaymentUnpaid || o.Status != order.StatusDraft {
		res.Order = o
		res.AlreadyApplied = true
		return res, nil
	}

	updated, err := h.orders.MarkPaymentPending(ctx, o.ID, p.Method)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to mark payment pending",
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
		return nil, err
	}
	res.Order = updated
	return res, nil
}

func (h *OutcomeHandler) applyFailure(ctx context.Context, o *order.Order, f Failure) (*HandleResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ApplyFailure"),
		zap.Int64("order_id", o.ID),
		zap.String("gateway_status", f.Status),
	)

	if o.PaymentStatus == order.PaymentPaid {
		log.Warn("failure outcome for a paid order ignored")
		return &HandleResult{Order: o, Outcome: f.Kind(), AlreadyApplied: true}, nil
	}
	if o.Status != order.StatusDraft {
		return &HandleResult{Order: o, Outcome: f.Kind(), AlreadyApplied: true}, nil
	}

	updated, err := h.orders.UpdateStatus(ctx, o.ID, order.Change{
		To:      order.StatusCancelled,
		Trigger: order.TriggerPayment,
	})
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			if cur, rerr := h.orders.GetByID(ctx, o.ID); rerr == nil &&
				(cur.PaymentStatus == order.PaymentPaid || cur.Status == order.StatusCancelled) {
				return &HandleResult{Order: cur, Outcome: f.Kind(), AlreadyApplied: true}, nil
			}
		}
		log.Error("failed to cancel order", zap.Error(err))
		return nil, err
	}

	log.Info("order cancelled after failed payment")
	return &HandleResult{Order: updated, Outcome: f.Kind()}, nil
}
