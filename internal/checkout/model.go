package checkout

import (
	"npcshop-be/internal/order"
)

type Line struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Discount    int64  `json:"discount"`
	WeightGrams int    `json:"weightGrams"`
}

type ShippingOption struct {
	Courier string `json:"courier"`
	Service string `json:"service"`
}

type Request struct {
	Lines       []Line                `json:"lines"`
	Address     order.ShippingAddress `json:"address"`
	Shipping    *ShippingOption       `json:"shipping"`
	CouponCode  *string               `json:"couponCode,omitempty"`
	SaveAddress bool                  `json:"saveAddress"`
}

// CouponRejection tells the storefront why a code gave no discount.
type CouponRejection struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type Result struct {
	Order           *order.Order     `json:"order"`
	Token           string           `json:"token"`
	RedirectURL     string           `json:"redirectUrl"`
	CouponRejection *CouponRejection `json:"couponRejection,omitempty"`
}
