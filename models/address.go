package models

import (
	"time"

	"gorm.io/gorm"
)

// Address is an entry of a customer's address book
type Address struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"userId"`
	ContactName string         `gorm:"not null" json:"contactName"`
	Phone       string         `gorm:"not null" json:"phone"`
	Province    string         `json:"province"`
	City        string         `json:"city"`
	District    string         `json:"district"`
	Detail      string         `gorm:"not null" json:"detail"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	IsDefault   bool           `gorm:"not null;default:false" json:"isDefault"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Address model
func (Address) TableName() string {
	return "user_addresses"
}

// Snapshot copies the address into the value stored on an order.
func (a Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		ContactName: a.ContactName,
		Phone:       a.Phone,
		Province:    a.Province,
		City:        a.City,
		District:    a.District,
		Detail:      a.Detail,
		Latitude:    a.Latitude,
		Longitude:   a.Longitude,
	}
}

// AddressSnapshot is the service location owned by an order. It never
// references the address book, so later edits there do not leak into orders.
type AddressSnapshot struct {
	ContactName string   `json:"contactName"`
	Phone       string   `json:"phone"`
	Province    string   `json:"province,omitempty"`
	City        string   `json:"city,omitempty"`
	District    string   `json:"district,omitempty"`
	Detail      string   `json:"detail"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// IsZero reports whether no usable location was supplied.
func (s AddressSnapshot) IsZero() bool {
	return s.Detail == "" && s.Latitude == nil && s.Longitude == nil
}
