package models

import "time"

// Coupon is a single-use discount owned by one customer
type Coupon struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;index" json:"userId"`
	Name           string     `json:"name"`
	Type           string     `gorm:"not null;default:'reduction'" json:"type"`
	DiscountAmount int64      `gorm:"not null" json:"discountAmount"`
	MinAmount      int64      `gorm:"not null;default:0" json:"minAmount"`
	ExpireTime     time.Time  `gorm:"not null" json:"expireTime"`
	Used           bool       `gorm:"not null;default:false;index" json:"used"`
	UsedAt         *time.Time `json:"usedAt"`
	OrderID        *string    `gorm:"size:26" json:"orderId"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for the Coupon model
func (Coupon) TableName() string {
	return "user_coupons"
}
