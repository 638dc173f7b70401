package models

import (
	"time"

	"gorm.io/gorm"
)

// TechnicianStatus is the technician's current availability.
type TechnicianStatus string

const (
	TechnicianAvailable TechnicianStatus = "available"
	TechnicianBusy      TechnicianStatus = "busy"
	TechnicianOffline   TechnicianStatus = "offline"
)

// Technician represents a massage therapist who fulfils orders
type Technician struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	Name           string           `gorm:"not null" json:"name"`
	Avatar         string           `json:"avatar"`
	Phone          string           `json:"phone"`
	Bio            string           `gorm:"type:text" json:"bio"`
	Skills         []string         `gorm:"serializer:json;type:text" json:"skills"`
	Status         TechnicianStatus `gorm:"type:varchar(20);not null;default:'available'" json:"status"`
	CurrentOrderID *string          `gorm:"size:26" json:"currentOrderId"` // set while an order is in progress
	OrderCount     int              `gorm:"not null;default:0" json:"orderCount"`
	Rating         float64          `gorm:"not null;default:0" json:"rating"`
	CommentCount   int              `gorm:"not null;default:0" json:"commentCount"`
	Latitude       *float64         `json:"latitude,omitempty"`
	Longitude      *float64         `json:"longitude,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Technician model
func (Technician) TableName() string {
	return "technicians"
}
