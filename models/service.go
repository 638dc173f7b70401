package models

import "time"

// Service is an entry of the treatment catalog (e.g. a 60 minute full body massage)
type Service struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Price       int64     `gorm:"not null" json:"price"`    // minor units
	Duration    int       `gorm:"not null" json:"duration"` // minutes
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName specifies the table name for the Service model
func (Service) TableName() string {
	return "services"
}

// DurationTime returns the service duration as a time.Duration.
func (s Service) DurationTime() time.Duration {
	return time.Duration(s.Duration) * time.Minute
}
