package tracking

import (
	"context"
	"errors"
	"strings"

	"npcshop-be/internal/logger"
	"npcshop-be/internal/metrics"
	"npcshop-be/internal/order"

	"go.uber.org/zap"
)

type Tracker interface {
	Track(ctx context.Context, trackingNumber, courierHint string) (*Record, error)
}

type OrderService interface {
	GetOrderDetail(ctx context.Context, id int64) (*order.Order, error)
	MarkDelivered(ctx context.Context, id int64) (*order.Order, error)
}

// Cache holds recent records and the per-tracking-number delivered markers.
// LoadTrackingRecord returns nil, nil on a miss.
type Cache interface {
	SaveTrackingRecord(ctx context.Context, rec Record) error
	LoadTrackingRecord(ctx context.Context, trackingNumber string) (*Record, error)
	MarkNotified(ctx context.Context, trackingNumber string) (bool, error)
	ReleaseNotified(ctx context.Context, trackingNumber string) error
}

type Result struct {
	Order        *order.Order `json:"order"`
	Tracking     *Record      `json:"tracking"`
	Transitioned bool         `json:"transitioned"`
}

type Service struct {
	tracker Tracker
	orders  OrderService
	cache   Cache
	metrics *metrics.Pipeline
}

func NewService(tracker Tracker, orders OrderService, cache Cache, m *metrics.Pipeline) *Service {
	return &Service{tracker: tracker, orders: orders, cache: cache, metrics: m}
}

// TrackOrder fetches the shipment of an order the caller may see. A delivered
// record from the primary source moves a shipped order to delivered, once per
// tracking number.
func (s *Service) TrackOrder(ctx context.Context, orderID int64) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "TrackOrder"),
		zap.Int64("order_id", orderID),
	)

	o, err := s.orders.GetOrderDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.TrackingNumber == nil || strings.TrimSpace(*o.TrackingNumber) == "" {
		return nil, ErrMissingTrackingNumber
	}
	number := strings.TrimSpace(*o.TrackingNumber)
	log = log.With(zap.String("tracking_number", number))

	rec, err := s.cache.LoadTrackingRecord(ctx, number)
	if err != nil {
		log.Warn("tracking cache read failed", zap.Error(err))
	}
	if rec == nil {
		rec, err = s.tracker.Track(ctx, number, o.ShippingCourier)
		if err != nil {
			log.Error("tracking lookup failed", zap.Error(err))
			return nil, err
		}
		if err := s.cache.SaveTrackingRecord(ctx, *rec); err != nil {
			log.Warn("tracking cache write failed", zap.Error(err))
		}
	}

	res := &Result{Order: o, Tracking: rec}
	if !rec.Delivered() || o.Status != order.StatusShipped {
		return res, nil
	}

	if rec.Fallback {
		log.Info("delivered per fallback source, not transitioning")
		s.metrics.IncDelivery("informational")
		return res, nil
	}

	first, err := s.cache.MarkNotified(ctx, number)
	if err != nil {
		log.Error("failed to set delivered marker", zap.Error(err))
		return res, nil
	}
	if !first {
		s.metrics.IncDelivery("duplicate")
		return res, nil
	}

	updated, err := s.orders.MarkDelivered(ctx, o.ID)
	if err != nil {
		if errors.Is(err, order.ErrTerminalStatus) {
			s.metrics.IncDelivery("duplicate")
			return res, nil
		}
		log.Error("failed to mark order delivered", zap.Error(err))
		if rerr := s.cache.ReleaseNotified(ctx, number); rerr != nil {
			log.Error("failed to release delivered marker", zap.Error(rerr))
		}
		s.metrics.IncDelivery("failed")
		return res, nil
	}

	log.Info("order delivered per courier")
	s.metrics.IncDelivery("transitioned")
	res.Order = updated
	res.Transitioned = true
	return res, nil
}
