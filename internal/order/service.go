package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"npcshop-be/internal/logger"
	"npcshop-be/internal/utils"

	"go.uber.org/zap"
)

type Service interface {
	CreateOrder(ctx context.Context, draft Draft) (*Order, error)
	CreateFallbackOrder(ctx context.Context, draft FallbackDraft) (*Order, error)

	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Order, error)
	GetOrderDetail(ctx context.Context, id int64) (*Order, error)
	GetOrderDetailByNumber(ctx context.Context, number string) (*Order, error)
	ListMyOrders(ctx context.Context, filter OrderFilter, page Pagination) ([]*Order, error)
	LatestForUser(ctx context.Context, userID int64) (*Order, error)

	UpdateStatus(ctx context.Context, id int64, change Change) (*Order, error)
	MarkPaymentPending(ctx context.Context, id int64, method string) (*Order, error)
	ConfirmDelivery(ctx context.Context, id int64) (*Order, error)
	MarkDelivered(ctx context.Context, id int64) (*Order, error)
	ReviewEligibility(ctx context.Context, id int64) (*Order, bool, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) CreateOrder(ctx context.Context, draft Draft) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Int64("user_id", draft.UserID),
		zap.Int("item_count", len(draft.Items)),
	)

	if draft.UserID <= 0 {
		return nil, ErrUnauthorized
	}
	if len(draft.Items) == 0 {
		log.Warn("order without items rejected")
		return nil, ErrEmptyOrder
	}
	if err := ValidateTotals(draft.Subtotal, draft.Discount, draft.ShippingFee, draft.GrandTotal, draft.Items); err != nil {
		log.Warn("order totals rejected",
			zap.Int64("subtotal", draft.Subtotal),
			zap.Int64("discount", draft.Discount),
			zap.Int64("shipping_fee", draft.ShippingFee),
			zap.Int64("grand_total", draft.GrandTotal),
			zap.Error(err),
		)
		return nil, err
	}

	o := &Order{
		OrderNumber:     utils.GenerateOrderNumber(s.now()),
		UserID:          draft.UserID,
		Status:          StatusDraft,
		PaymentStatus:   PaymentUnpaid,
		ShippingCourier: draft.ShippingCourier,
		ShippingService: draft.ShippingService,
		ShippingAddress: draft.ShippingAddress,
		Subtotal:        draft.Subtotal,
		ShippingFee:     draft.ShippingFee,
		Discount:        draft.Discount,
		GrandTotal:      draft.GrandTotal,
		CouponCode:      draft.CouponCode,
		Items:           withLineTotals(draft.Items),
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, err
	}

	log.Info("order drafted",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int64("grand_total", o.GrandTotal),
	)
	return o, nil
}

// CreateFallbackOrder records a paid order reconstructed from a gateway
// outcome. The shipping address is unknown at this point and stays empty.
// Fallback orders carry no discount, so the items plus shipping must add up
// to the paid amount.
func (s *service) CreateFallbackOrder(ctx context.Context, draft FallbackDraft) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateFallbackOrder"),
		zap.Int64("user_id", draft.UserID),
		zap.String("transaction_id", draft.TransactionID),
	)

	if draft.UserID <= 0 {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(draft.TransactionID) == "" {
		return nil, ErrMissingTransactionID
	}
	if len(draft.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	items := withLineTotals(draft.Items)
	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotal
	}

	if err := ValidateTotals(subtotal, 0, draft.ShippingFee, draft.Amount, items); err != nil {
		log.Warn("fallback totals rejected",
			zap.Int64("subtotal", subtotal),
			zap.Int64("shipping_fee", draft.ShippingFee),
			zap.Int64("amount", draft.Amount),
			zap.Error(err),
		)
		return nil, err
	}

	txID := draft.TransactionID
	o := &Order{
		OrderNumber:   utils.GenerateOrderNumber(s.now()),
		UserID:        draft.UserID,
		Status:        StatusProcessing,
		PaymentStatus: PaymentPaid,
		PaymentMethod: draft.PaymentMethod,
		TransactionID: &txID,
		Subtotal:      subtotal,
		ShippingFee:   draft.ShippingFee,
		GrandTotal:    draft.Amount,
		IsFallback:    true,
		Items:         items,
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			log.Info("fallback skipped, transaction already has an order")
			return nil, err
		}
		log.Error("failed to create fallback order", zap.Error(err))
		return nil, err
	}

	log.Info("fallback order created",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
	)
	return o, nil
}

// withLineTotals fills missing line totals. A caller-supplied total below the
// gross line value is a line discount and is kept.
func withLineTotals(items []OrderItem) []OrderItem {
	out := make([]OrderItem, len(items))
	for i, it := range items {
		gross := LineTotal(it.Quantity, it.UnitPrice)
		if it.LineTotal <= 0 || it.LineTotal > gross {
			it.LineTotal = gross
		}
		out[i] = it
	}
	return out
}

func (s *service) GetByID(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

func (s *service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.repo.GetOrderByNumber(ctx, number)
}

func (s *service) GetByTransactionID(ctx context.Context, transactionID string) (*Order, error) {
	return s.repo.GetOrderByTransactionID(ctx, transactionID)
}

// authorize returns o if the caller owns it or is an admin.
func authorize(ctx context.Context, o *Order) (*Order, error) {
	if utils.IsAdmin(ctx) {
		return o, nil
	}
	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) GetOrderDetail(ctx context.Context, id int64) (*Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return authorize(ctx, o)
}

func (s *service) GetOrderDetailByNumber(ctx context.Context, number string) (*Order, error) {
	o, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return authorize(ctx, o)
}

func (s *service) ListMyOrders(ctx context.Context, filter OrderFilter, page Pagination) ([]*Order, error) {
	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	limit, offset := page.Normalize()
	return s.repo.ListOrdersByUser(ctx, userID, filter, limit, offset)
}

func (s *service) LatestForUser(ctx context.Context, userID int64) (*Order, error) {
	return s.repo.GetLatestOrderByUser(ctx, userID)
}

// UpdateStatus applies change to the order. A conditional write that loses a
// race re-reads the row and re-plans once.
func (s *service) UpdateStatus(ctx context.Context, id int64, change Change) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateStatus"),
		zap.Int64("order_id", id),
		zap.String("to", string(change.To)),
		zap.String("trigger", string(change.Trigger)),
	)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		o, err := s.repo.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}

		patch, err := Plan(o, change)
		if err != nil {
			log.Warn("transition rejected",
				zap.String("from", string(o.Status)),
				zap.Error(err),
			)
			return nil, err
		}

		expected := Expectation{Status: o.Status, PaymentStatus: o.PaymentStatus}
		updatedAt, err := s.repo.UpdateOrderStatus(ctx, id, expected, patch)
		if errors.Is(err, ErrConcurrentUpdate) {
			log.Warn("order changed underneath, re-reading", zap.Int("attempt", attempt))
			lastErr = err
			continue
		}
		if err != nil {
			log.Error("failed to update order status", zap.Error(err))
			return nil, err
		}

		patch.Apply(o)
		o.UpdatedAt = updatedAt
		log.Info("order status updated",
			zap.String("from", string(expected.Status)),
			zap.String("payment_status", string(o.PaymentStatus)),
		)
		return o, nil
	}

	return nil, fmt.Errorf("update order %d: %w", id, lastErr)
}

// MarkPaymentPending records that the customer started a payment that has not
// settled yet. The lifecycle status is unchanged.
func (s *service) MarkPaymentPending(ctx context.Context, id int64, method string) (*Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != PaymentUnpaid {
		return o, nil
	}

	patch := Patch{Status: o.Status, PaymentStatus: paymentPtr(PaymentPending)}
	if method != "" {
		patch.PaymentMethod = &method
	}

	updatedAt, err := s.repo.UpdateOrderStatus(ctx, id,
		Expectation{Status: o.Status, PaymentStatus: o.PaymentStatus}, patch)
	if errors.Is(err, ErrConcurrentUpdate) {
		return s.repo.GetOrderByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(o)
	o.UpdatedAt = updatedAt
	return o, nil
}

// ConfirmDelivery lets the owner mark a shipped order as received.
func (s *service) ConfirmDelivery(ctx context.Context, id int64) (*Order, error) {
	o, err := s.GetOrderDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusDelivered {
		return o, nil
	}
	return s.UpdateStatus(ctx, id, Change{To: StatusDelivered, Trigger: TriggerCustomer})
}

// MarkDelivered is used when the courier reports the parcel as delivered.
func (s *service) MarkDelivered(ctx context.Context, id int64) (*Order, error) {
	return s.UpdateStatus(ctx, id, Change{To: StatusDelivered, Trigger: TriggerTracking})
}

func (s *service) ReviewEligibility(ctx context.Context, id int64) (*Order, bool, error) {
	o, err := s.GetOrderDetail(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return o, o.CanReview(), nil
}
