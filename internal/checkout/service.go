package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"npcshop-be/internal/logger"
	"npcshop-be/internal/metrics"
	"npcshop-be/internal/order"
	"npcshop-be/internal/payment"
	"npcshop-be/internal/shipping"
	"npcshop-be/internal/utils"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, draft order.Draft) (*order.Order, error)
}

type QuoteLookup interface {
	Lookup(ctx context.Context, userID int64, postal string, weightGrams int, courier, service string) (shipping.Option, error)
}

type SaveAddressStager interface {
	StageSaveAddress(ctx context.Context, orderNumber string) error
}

type Service struct {
	orders   OrderCreator
	gateway  payment.Gateway
	quotes   QuoteLookup
	stage    SaveAddressStager
	coupons  map[string]int64
	validate *validator.Validate
	metrics  *metrics.Pipeline
}

func NewService(
	orders OrderCreator,
	gateway payment.Gateway,
	quotes QuoteLookup,
	stage SaveAddressStager,
	coupons map[string]int64,
	m *metrics.Pipeline,
) *Service {
	return &Service{
		orders:   orders,
		gateway:  gateway,
		quotes:   quotes,
		stage:    stage,
		coupons:  coupons,
		validate: validator.New(),
		metrics:  m,
	}
}

// Checkout prices the cart, creates the draft order and asks the gateway for
// a payment token. A token failure leaves the draft in place.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Checkout"),
	)

	if err := s.Validate(req); err != nil {
		log.Info("checkout rejected", zap.Error(err))
		s.metrics.IncCheckout("rejected")
		return nil, err
	}

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	log = log.With(zap.Int64("user_id", userID))

	weight := TotalWeight(req.Lines)
	opt, err := s.quotes.Lookup(ctx, userID, req.Address.PostalCode, weight, req.Shipping.Courier, req.Shipping.Service)
	if err != nil {
		if errors.Is(err, shipping.ErrQuoteNotFound) || errors.Is(err, shipping.ErrServiceNotQuoted) {
			s.metrics.IncCheckout("rejected")
			return nil, fmt.Errorf("%w: %w", ErrShippingQuoteNotFound, err)
		}
		log.Error("shipping quote lookup failed", zap.Error(err))
		s.metrics.IncCheckout("failed")
		return nil, err
	}

	price := Price(req.Lines, req.CouponCode, s.coupons, opt.Fee)
	if price.Rejection != nil {
		log.Info("coupon rejected", zap.String("coupon", price.Rejection.Code))
	}

	items := make([]order.OrderItem, 0, len(req.Lines))
	for _, l := range req.Lines {
		items = append(items, order.OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   LineTotal(l),
		})
	}

	created, err := s.orders.CreateOrder(ctx, order.Draft{
		UserID:          userID,
		ShippingCourier: strings.ToLower(opt.Courier),
		ShippingService: opt.Service,
		ShippingAddress: req.Address,
		Subtotal:        price.Subtotal,
		ShippingFee:     price.ShippingFee,
		Discount:        price.Discount,
		GrandTotal:      price.GrandTotal,
		CouponCode:      price.CouponCode,
		Items:           items,
	})
	if err != nil {
		log.Error("failed to create order", zap.Error(err))
		s.metrics.IncCheckout("failed")
		return nil, err
	}
	log = log.With(zap.String("order_number", created.OrderNumber))

	token, err := s.gateway.RequestToken(ctx, payment.TokenRequest{
		OrderRef: created.OrderNumber,
		Amount:   created.GrandTotal,
		Items:    GatewayItems(req.Lines, price),
		Customer: payment.Customer{
			Name:  req.Address.Name,
			Email: utils.GetUserEmailFromContext(ctx),
			Phone: req.Address.Phone,
		},
	})
	if err != nil {
		log.Error("failed to request payment token, order left as draft", zap.Error(err))
		s.metrics.IncCheckout("failed")
		return nil, err
	}

	if req.SaveAddress {
		if err := s.stage.StageSaveAddress(ctx, created.OrderNumber); err != nil {
			log.Warn("failed to stage save-address preference", zap.Error(err))
		}
	}

	log.Info("checkout completed", zap.Int64("grand_total", created.GrandTotal))
	s.metrics.IncCheckout("created")

	return &Result{
		Order:           created,
		Token:           token.Token,
		RedirectURL:     token.RedirectURL,
		CouponRejection: price.Rejection,
	}, nil
}

// Validate checks the request shape. It never touches the network.
func (s *Service) Validate(req Request) error {
	if len(req.Lines) == 0 {
		return ErrEmptyCart
	}
	if req.Shipping == nil ||
		strings.TrimSpace(req.Shipping.Courier) == "" ||
		strings.TrimSpace(req.Shipping.Service) == "" {
		return ErrShippingNotSelected
	}
	if err := s.validate.Struct(req.Address); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidAddress, strings.ToLower(verrs[0].Field()))
		}
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	for i, l := range req.Lines {
		switch {
		case strings.TrimSpace(l.ProductID) == "":
			return fmt.Errorf("%w: line %d has no product", ErrInvalidLine, i)
		case l.Quantity <= 0:
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLine, i)
		case l.UnitPrice < 0 || l.Discount < 0 || l.WeightGrams < 0:
			return fmt.Errorf("%w: line %d has a negative amount", ErrInvalidLine, i)
		case l.Discount > l.UnitPrice*int64(l.Quantity):
			return fmt.Errorf("%w: line %d discount exceeds its price", ErrInvalidLine, i)
		}
	}
	return nil
}

// GatewayItems builds the breakdown sent with the token request. A shipping
// line and a negative discount line make it sum to the grand total.
func GatewayItems(lines []Line, p Pricing) []payment.GatewayItem {
	items := make([]payment.GatewayItem, 0, len(lines)+2)
	for _, l := range lines {
		items = append(items, payment.GatewayItem{
			ID:       l.ProductID,
			Name:     l.ProductName,
			Price:    l.UnitPrice,
			Quantity: l.Quantity,
		})
	}
	if p.ShippingFee > 0 {
		items = append(items, payment.GatewayItem{
			ID:       payment.ItemShippingFee,
			Name:     "Shipping Fee",
			Price:    p.ShippingFee,
			Quantity: 1,
		})
	}
	if off := p.Discount + p.LineDiscounts; off > 0 {
		name := "Discount"
		if p.CouponCode != nil {
			name += " " + *p.CouponCode
		}
		items = append(items, payment.GatewayItem{
			ID:       payment.ItemDiscount,
			Name:     name,
			Price:    -off,
			Quantity: 1,
		})
	}
	return items
}
