package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusDraft      OrderStatus = "draft"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusProcessing, StatusShipped, StatusDelivered,
		StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type ShippingAddress struct {
	Name       string `json:"name" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,numeric,min=8,max=15"`
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required,numeric,len=5"`
}

type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          int64           `json:"userId"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	TransactionID   *string         `json:"transactionId,omitempty"`
	TrackingNumber  *string         `json:"trackingNumber,omitempty"`
	ShippingCourier string          `json:"shippingCourier"`
	ShippingService string          `json:"shippingService"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Subtotal        int64           `json:"subtotal"`
	ShippingFee     int64           `json:"shippingFee"`
	Discount        int64           `json:"discount"`
	GrandTotal      int64           `json:"grandTotal"`
	CouponCode      *string         `json:"couponCode,omitempty"`
	IsFallback      bool            `json:"isFallback"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Items           []OrderItem     `json:"items"`
}

// CanReview is derived, never stored: items become reviewable once the order arrived.
func (o *Order) CanReview() bool {
	return o.Status == StatusDelivered || o.Status == StatusCompleted
}

func (o *Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"orderId"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

// Draft is what the checkout hands to CreateOrder.
type Draft struct {
	UserID          int64
	ShippingCourier string
	ShippingService string
	ShippingAddress ShippingAddress
	Subtotal        int64
	ShippingFee     int64
	Discount        int64
	GrandTotal      int64
	CouponCode      *string
	Items           []OrderItem
}

// FallbackDraft is synthesized from a cached gateway outcome when the
// authoritative creation response never reached the customer.
type FallbackDraft struct {
	UserID        int64
	TransactionID string
	PaymentMethod string
	Amount        int64
	ShippingFee   int64
	Items         []OrderItem
}

// Patch is the set of columns a status change writes. Nil fields are left as is.
type Patch struct {
	Status         OrderStatus
	PaymentStatus  *PaymentStatus
	PaymentMethod  *string
	TrackingNumber *string
	TransactionID  *string
}

type OrderFilter struct {
	Status *OrderStatus
}

type Pagination struct {
	Limit int32
	Page  int32
}

// Normalize clamps to 1..100 per page, defaulting to 20.
func (p Pagination) Normalize() (limit, offset int32) {
	limit = p.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// totalTolerance is the largest accepted drift, in Rupiah, between the stored
// grand total and subtotal - discount + shipping.
var totalTolerance = decimal.NewFromInt(1)

// ValidateTotals checks the monetary invariants of a draft.
func ValidateTotals(subtotal, discount, shippingFee, grandTotal int64, items []OrderItem) error {
	if subtotal < 0 || discount < 0 || shippingFee < 0 || grandTotal < 0 {
		return ErrNegativeAmount
	}
	if discount > subtotal {
		return ErrDiscountExceedsSubtotal
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return ErrNegativeAmount
		}
	}

	expected := decimal.NewFromInt(subtotal).
		Sub(decimal.NewFromInt(discount)).
		Add(decimal.NewFromInt(shippingFee))
	if expected.Sub(decimal.NewFromInt(grandTotal)).Abs().GreaterThan(totalTolerance) {
		return ErrTotalMismatch
	}
	return nil
}

func LineTotal(quantity int, unitPrice int64) int64 {
	return decimal.NewFromInt(unitPrice).Mul(decimal.NewFromInt(int64(quantity))).IntPart()
}
