package models

import "time"

// OrderComment is the customer's review of a completed order
type OrderComment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderID      string    `gorm:"size:26;not null;uniqueIndex" json:"orderId"` // one review per order
	UserID       uint      `gorm:"not null;index" json:"userId"`
	TechnicianID uint      `gorm:"not null;index" json:"technicianId"`
	Rating       int       `gorm:"not null" json:"rating"`
	Content      string    `gorm:"type:text" json:"content"`
	Tags         []string  `gorm:"serializer:json;type:text" json:"tags"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName specifies the table name for the OrderComment model
func (OrderComment) TableName() string {
	return "order_comments"
}
