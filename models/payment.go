package models

import "time"

// Payment records a charge made against an order
type Payment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrderID        string    `gorm:"size:26;not null;index" json:"orderId"`
	Amount         int64     `gorm:"not null" json:"amount"`
	Provider       string    `gorm:"not null" json:"provider"`
	ProviderRef    string    `json:"providerRef"`
	IdempotencyKey string    `gorm:"size:36;not null;uniqueIndex" json:"idempotencyKey"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// RefundStatus tracks a refund through the payment provider.
type RefundStatus string

const (
	RefundProcessing RefundStatus = "processing"
	RefundSucceeded  RefundStatus = "succeeded"
	RefundFailed     RefundStatus = "failed"
)

// Refund records an attempt to return a payment to the customer
type Refund struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	OrderID     string       `gorm:"size:26;not null;index" json:"orderId"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Reason      string       `json:"reason"`
	Status      RefundStatus `gorm:"type:varchar(20);not null" json:"status"`
	ProviderRef string       `json:"providerRef"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// TableName specifies the table name for the Refund model
func (Refund) TableName() string {
	return "refunds"
}
