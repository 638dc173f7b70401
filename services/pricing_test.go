package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tuinawx/booking-api/models"
)

func TestCouponDiscount(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name      string
		coupon    *models.Coupon
		basePrice int64
		want      int64
	}{
		{"no coupon", nil, 20000, 0},
		{"reduction above threshold", &models.Coupon{DiscountAmount: 5000, MinAmount: 10000, ExpireTime: future}, 20000, 5000},
		{"price equal to threshold", &models.Coupon{DiscountAmount: 5000, MinAmount: 10000, ExpireTime: future}, 10000, 5000},
		{"price below threshold", &models.Coupon{DiscountAmount: 5000, MinAmount: 10000, ExpireTime: future}, 8000, 0},
		{"expired coupon", &models.Coupon{DiscountAmount: 5000, ExpireTime: now.Add(-time.Minute)}, 20000, 0},
		{"expiring exactly now", &models.Coupon{DiscountAmount: 5000, ExpireTime: now}, 20000, 0},
		{"used coupon", &models.Coupon{DiscountAmount: 5000, ExpireTime: future, Used: true}, 20000, 0},
		{"discount capped at price", &models.Coupon{DiscountAmount: 9000, ExpireTime: future}, 6000, 6000},
		{"non positive discount", &models.Coupon{DiscountAmount: -100, ExpireTime: future}, 6000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CouponDiscount(tt.coupon, tt.basePrice, now)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, tt.basePrice, "discount must never exceed the base price")
		})
	}
}

func TestQuote(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("price 200 urgent 20 coupon 50 over 100", func(t *testing.T) {
		coupon := &models.Coupon{Type: "reduction", DiscountAmount: 5000, MinAmount: 10000, ExpireTime: now.Add(time.Hour)}
		discount := CouponDiscount(coupon, 20000, now)
		quote := Quote(20000, 2000, 0, discount)
		assert.Equal(t, int64(17000), quote.TotalPrice)
		assert.Equal(t, int64(5000), quote.CouponDiscount)
	})

	t.Run("price 80 below coupon threshold", func(t *testing.T) {
		coupon := &models.Coupon{DiscountAmount: 5000, MinAmount: 10000, ExpireTime: now.Add(time.Hour)}
		discount := CouponDiscount(coupon, 8000, now)
		quote := Quote(8000, 1000, 500, discount)
		assert.Equal(t, int64(0), quote.CouponDiscount)
		assert.Equal(t, int64(9500), quote.TotalPrice)
	})

	t.Run("total clamped at zero", func(t *testing.T) {
		quote := Quote(1000, 0, 0, 1500)
		assert.Equal(t, int64(0), quote.TotalPrice)
	})
}
