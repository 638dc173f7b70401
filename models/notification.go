package models

import "time"

// Notification is an inbox entry addressed to a customer or a technician
type Notification struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RecipientID   uint      `gorm:"not null;index:idx_notifications_recipient,priority:1" json:"recipientId"`
	RecipientType Role      `gorm:"type:varchar(20);not null;index:idx_notifications_recipient,priority:2" json:"recipientType"`
	Type          string    `gorm:"not null" json:"type"`
	Content       string    `gorm:"type:text" json:"content"` // JSON encoded event payload
	Read          bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}
