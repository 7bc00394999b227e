package recovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"npcshop-be/internal/logger"
	"npcshop-be/internal/metrics"
	"npcshop-be/internal/order"
	"npcshop-be/internal/payment"
	"npcshop-be/internal/utils"

	"go.uber.org/zap"
)

type OrderService interface {
	GetOrderDetailByNumber(ctx context.Context, number string) (*order.Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*order.Order, error)
	LatestForUser(ctx context.Context, userID int64) (*order.Order, error)
	CreateFallbackOrder(ctx context.Context, draft order.FallbackDraft) (*order.Order, error)
}

// OutcomeStore reads the widget result staged for a user. LoadOutcome
// returns nil, nil when nothing is staged.
type OutcomeStore interface {
	LoadOutcome(ctx context.Context, userID int64) (*payment.PaymentOutcome, error)
	ClearOutcome(ctx context.Context, userID int64) error
}

type StatusVerifier interface {
	GetTransactionStatus(ctx context.Context, orderRef string) (*payment.TransactionStatus, error)
}

// OutcomeApplier records a verified gateway outcome on an existing order.
type OutcomeApplier interface {
	Handle(ctx context.Context, orderRef string, outcome payment.Outcome) (*payment.HandleResult, error)
}

type Service struct {
	orders   OrderService
	outcomes OutcomeStore
	verifier StatusVerifier
	applier  OutcomeApplier
	policy   Policy
	metrics  *metrics.Pipeline

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(
	orders OrderService,
	outcomes OutcomeStore,
	verifier StatusVerifier,
	applier OutcomeApplier,
	policy Policy,
	m *metrics.Pipeline,
) *Service {
	return &Service{
		orders:   orders,
		outcomes: outcomes,
		verifier: verifier,
		applier:  applier,
		policy:   policy.normalized(),
		metrics:  m,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Resolve answers "which order did my payment produce". A confirmed order
// number owned by the caller resolves directly. A temporary, unknown or
// foreign reference goes through Recover.
func (s *Service) Resolve(ctx context.Context, userID int64, ref string) (*Result, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}

	ref = strings.TrimSpace(ref)
	if ref != "" && !utils.IsTemporaryRef(ref) {
		o, err := s.orders.GetOrderDetailByNumber(ctx, ref)
		switch {
		case err == nil:
			s.clearOutcome(ctx, userID)
			s.metrics.IncRecovery("direct")
			return resolved(o, false), nil
		case !errors.Is(err, order.ErrOrderNotFound) && !errors.Is(err, order.ErrForbidden):
			return nil, err
		}
	}

	return s.Recover(ctx, userID)
}

// Recover polls for the user's latest order with exponential backoff. When
// none appears it falls back to the staged gateway result, re-verified with
// the gateway. The payment is applied to the order it names when that order
// exists; otherwise the order is synthesized from it.
func (s *Service) Recover(ctx context.Context, userID int64) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Recover"),
		zap.Int64("user_id", userID),
	)

	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		o, err := s.orders.LatestForUser(ctx, userID)
		switch {
		case err == nil && s.now().Sub(o.CreatedAt) <= s.policy.Freshness:
			log.Info("order found while polling",
				zap.Int("attempt", attempt),
				zap.String("order_number", o.OrderNumber),
			)
			s.clearOutcome(ctx, userID)
			s.metrics.IncRecovery("found")
			return resolved(o, false), nil
		case err != nil && !errors.Is(err, order.ErrOrderNotFound):
			log.Warn("poll failed", zap.Int("attempt", attempt), zap.Error(err))
		}

		if attempt == s.policy.MaxAttempts-1 {
			break
		}
		if err := s.sleep(ctx, s.policy.Delay(attempt)); err != nil {
			log.Info("recovery cancelled while polling", zap.Error(err))
			return nil, err
		}
	}

	return s.fallback(ctx, userID)
}

func (s *Service) fallback(ctx context.Context, userID int64) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "RecoverFallback"),
		zap.Int64("user_id", userID),
	)

	staged, err := s.outcomes.LoadOutcome(ctx, userID)
	if err != nil {
		log.Error("failed to read staged outcome", zap.Error(err))
		s.metrics.IncRecovery("unresolved")
		return unresolved(""), nil
	}
	if staged == nil || !staged.IsSuccess() {
		txID := ""
		if staged != nil {
			txID = staged.TransactionID
		}
		log.Info("no successful staged outcome, recovery unresolved")
		s.metrics.IncRecovery("unresolved")
		return unresolved(txID), nil
	}
	log = log.With(
		zap.String("transaction_id", staged.TransactionID),
		zap.String("order_ref", staged.OrderRef),
	)

	status, err := s.verifier.GetTransactionStatus(ctx, staged.OrderRef)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("could not verify staged outcome", zap.Error(err))
		s.metrics.IncRecovery("unresolved")
		return unresolved(staged.TransactionID), nil
	}
	if !matches(staged, status) {
		log.Error("staged outcome disagrees with gateway",
			zap.String("gateway_status", status.TransactionStatus),
			zap.Int64("gateway_amount", status.GrossAmount),
			zap.Int64("staged_amount", staged.GrossAmount),
		)
		s.metrics.IncRecovery("unresolved")
		return unresolved(staged.TransactionID), nil
	}

	if ref := staged.OrderRef; ref != "" && !utils.IsTemporaryRef(ref) {
		o, err := s.orders.GetOrderDetailByNumber(ctx, ref)
		switch {
		case err == nil && o.UserID == userID:
			return s.applyToExisting(ctx, userID, o, status)
		case err == nil, errors.Is(err, order.ErrForbidden):
			log.Warn("staged outcome names another user's order")
			s.metrics.IncRecovery("unresolved")
			return unresolved(status.TransactionID), nil
		case !errors.Is(err, order.ErrOrderNotFound):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("failed to load order named by staged outcome", zap.Error(err))
			s.metrics.IncRecovery("unresolved")
			return unresolved(status.TransactionID), nil
		}
	}

	items, shippingFee := splitItems(staged.Items)
	if len(items) == 0 {
		log.Error("staged outcome carries no items")
		s.metrics.IncRecovery("unresolved")
		return unresolved(status.TransactionID), nil
	}
	if subtotal := itemsSubtotal(items); shippingFee < 0 || subtotal+shippingFee != status.GrossAmount {
		log.Error("staged items do not add up to the paid amount",
			zap.Int64("items_subtotal", subtotal),
			zap.Int64("shipping_fee", shippingFee),
			zap.Int64("gross_amount", status.GrossAmount),
		)
		s.metrics.IncRecovery("unresolved")
		return unresolved(status.TransactionID), nil
	}

	if err := ctx.Err(); err != nil {
		log.Info("recovery cancelled before fallback write")
		return nil, err
	}

	o, err := s.orders.CreateFallbackOrder(ctx, order.FallbackDraft{
		UserID:        userID,
		TransactionID: status.TransactionID,
		PaymentMethod: payment.NormalizeMethod(status.PaymentType, status.Bank, status.Store),
		Amount:        status.GrossAmount,
		ShippingFee:   shippingFee,
		Items:         items,
	})
	if errors.Is(err, order.ErrDuplicateTransaction) {
		existing, gerr := s.orders.GetByTransactionID(ctx, status.TransactionID)
		if gerr != nil {
			log.Error("duplicate transaction but order not loadable", zap.Error(gerr))
			s.metrics.IncRecovery("unresolved")
			return unresolved(status.TransactionID), nil
		}
		log.Info("transaction already resolved to an order", zap.String("order_number", existing.OrderNumber))
		s.clearOutcome(ctx, userID)
		s.metrics.IncRecovery("duplicate")
		return resolved(existing, false), nil
	}
	if err != nil {
		log.Error("fallback order creation failed", zap.Error(err))
		s.metrics.IncRecovery("unresolved")
		return unresolved(status.TransactionID), nil
	}

	log.Info("fallback order created", zap.String("order_number", o.OrderNumber))
	s.clearOutcome(ctx, userID)
	s.metrics.IncRecovery("fallback")
	return resolved(o, true), nil
}

// applyToExisting records the verified payment on the order the gateway
// transaction was opened for.
func (s *Service) applyToExisting(ctx context.Context, userID int64, o *order.Order, status *payment.TransactionStatus) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "RecoverApply"),
		zap.String("order_number", o.OrderNumber),
		zap.String("transaction_id", status.TransactionID),
	)

	if err := ctx.Err(); err != nil {
		log.Info("recovery cancelled before applying payment")
		return nil, err
	}

	res, err := s.applier.Handle(ctx, o.OrderNumber, payment.Success{
		TransactionID: status.TransactionID,
		Method:        payment.NormalizeMethod(status.PaymentType, status.Bank, status.Store),
		GrossAmount:   status.GrossAmount,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("failed to apply verified payment to order", zap.Error(err))
		s.metrics.IncRecovery("unresolved")
		return unresolved(status.TransactionID), nil
	}

	log.Info("verified payment applied to existing order", zap.Bool("already_applied", res.AlreadyApplied))
	s.clearOutcome(ctx, userID)
	s.metrics.IncRecovery("applied")
	return resolved(res.Order, false), nil
}

// matches reports whether the gateway confirms the staged success for the
// same transaction and amount.
func matches(staged *payment.PaymentOutcome, status *payment.TransactionStatus) bool {
	if payment.Classify(status.StatusCode, status.TransactionStatus, status.FraudStatus) != payment.ClassSuccess {
		return false
	}
	if status.TransactionID == "" {
		return false
	}
	if staged.TransactionID != "" && staged.TransactionID != status.TransactionID {
		return false
	}
	return staged.GrossAmount == status.GrossAmount
}

// splitItems rebuilds order lines from the gateway breakdown. The synthetic
// shipping line becomes the fee; discount lines are dropped.
func splitItems(items []payment.GatewayItem) ([]order.OrderItem, int64) {
	var (
		lines       []order.OrderItem
		shippingFee int64
	)
	for _, it := range items {
		switch it.ID {
		case payment.ItemShippingFee:
			shippingFee += it.Price * int64(it.Quantity)
			continue
		case payment.ItemDiscount:
			continue
		}
		if it.Quantity <= 0 || it.Price < 0 {
			continue
		}
		lines = append(lines, order.OrderItem{
			ProductID:   it.ID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
			LineTotal:   order.LineTotal(it.Quantity, it.Price),
		})
	}
	return lines, shippingFee
}

func itemsSubtotal(items []order.OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal
	}
	return total
}

func (s *Service) clearOutcome(ctx context.Context, userID int64) {
	if err := s.outcomes.ClearOutcome(ctx, userID); err != nil {
		logger.FromCtx(ctx).Warn("failed to clear staged outcome",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
