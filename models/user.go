package models

import (
	"time"

	"gorm.io/gorm"
)

// Role identifies which kind of account an actor holds.
type Role string

const (
	RoleCustomer   Role = "user"
	RoleTechnician Role = "technician"
)

// User represents a customer account of the mini-program
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Nickname  string         `gorm:"not null;default:''" json:"nickname"`
	Phone     string         `gorm:"index" json:"phone"`
	Avatar    string         `json:"avatar"`
	Gender    int            `gorm:"not null;default:0" json:"gender"` // 0 unknown, 1 male, 2 female
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
