package checkout

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Pricing struct {
	Subtotal      int64
	LineDiscounts int64
	Discount      int64
	ShippingFee   int64
	GrandTotal    int64
	CouponCode    *string
	Rejection     *CouponRejection
}

var hundred = decimal.NewFromInt(100)

func lineGross(l Line) decimal.Decimal {
	return decimal.NewFromInt(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineTotal is quantity times unit price less the line's own discount.
func LineTotal(l Line) int64 {
	return lineGross(l).Sub(decimal.NewFromInt(l.Discount)).IntPart()
}

func TotalWeight(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.WeightGrams * l.Quantity
	}
	return total
}

// CouponDiscount looks code up in the allow-list. The discount is the coupon
// percent of subtotal rounded half up to whole Rupiah. An unknown code gives
// zero and a rejection.
func CouponDiscount(coupons map[string]int64, code string, subtotal int64) (int64, *CouponRejection) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return 0, nil
	}

	pct, ok := coupons[normalized]
	if !ok {
		return 0, &CouponRejection{Code: code, Reason: "coupon code is not valid"}
	}
	if subtotal <= 0 {
		return 0, &CouponRejection{Code: code, Reason: "nothing to discount"}
	}

	discount := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(pct)).
		Div(hundred).
		Round(0).
		IntPart()
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}

// Price computes the order totals. Lines must already be validated.
func Price(lines []Line, couponCode *string, coupons map[string]int64, shippingFee int64) Pricing {
	subtotal := decimal.Zero
	lineDiscounts := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(lineGross(l)).Sub(decimal.NewFromInt(l.Discount))
		lineDiscounts = lineDiscounts.Add(decimal.NewFromInt(l.Discount))
	}

	p := Pricing{
		Subtotal:      subtotal.IntPart(),
		LineDiscounts: lineDiscounts.IntPart(),
		ShippingFee:   shippingFee,
	}

	if couponCode != nil {
		p.Discount, p.Rejection = CouponDiscount(coupons, *couponCode, p.Subtotal)
		if p.Discount > 0 {
			applied := strings.ToUpper(strings.TrimSpace(*couponCode))
			p.CouponCode = &applied
		}
	}

	p.GrandTotal = subtotal.
		Sub(decimal.NewFromInt(p.Discount)).
		Add(decimal.NewFromInt(shippingFee)).
		IntPart()
	return p
}
