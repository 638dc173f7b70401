package services

import (
	"time"

	"github.com/tuinawx/booking-api/models"
)

// PriceBreakdown is the stored pricing of an order. All amounts are minor units.
type PriceBreakdown struct {
	BasePrice      int64 `json:"basePrice"`
	UrgentFee      int64 `json:"urgentFee"`
	DistanceFee    int64 `json:"distanceFee"`
	CouponDiscount int64 `json:"couponDiscount"`
	TotalPrice     int64 `json:"totalPrice"`
}

// CouponDiscount returns the discount a coupon grants on basePrice at now.
// A nil, used, expired or below-threshold coupon yields zero; the discount
// never exceeds basePrice.
func CouponDiscount(coupon *models.Coupon, basePrice int64, now time.Time) int64 {
	if coupon == nil || coupon.Used {
		return 0
	}
	if !coupon.ExpireTime.After(now) {
		return 0
	}
	if basePrice < coupon.MinAmount {
		return 0
	}
	if coupon.DiscountAmount <= 0 {
		return 0
	}
	return min(coupon.DiscountAmount, basePrice)
}

// Quote computes the order total. The total is clamped at zero.
func Quote(basePrice, urgentFee, distanceFee, discount int64) PriceBreakdown {
	total := basePrice + urgentFee + distanceFee - discount
	if total < 0 {
		total = 0
	}
	return PriceBreakdown{
		BasePrice:      basePrice,
		UrgentFee:      urgentFee,
		DistanceFee:    distanceFee,
		CouponDiscount: discount,
		TotalPrice:     total,
	}
}
