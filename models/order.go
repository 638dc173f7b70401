package models

import "time"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// orderTransitions lists every edge of the order lifecycle. cancelled -> refunded
// is only taken by the refund of a paid order.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusCompleted},
	OrderStatusCancelled:  {OrderStatusRefunded},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusInProgress,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether the order has left the active part of its lifecycle.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// PaymentStatus is the payment axis of an order, independent from OrderStatus.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusUnpaid:        {PaymentStatusPaid},
	PaymentStatusPaid:          {PaymentStatusRefunded, PaymentStatusPartialRefund},
	PaymentStatusPartialRefund: {PaymentStatusRefunded},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, candidate := range paymentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Order represents a booked service engagement between a customer and a technician.
// Orders are never deleted; cancelled and refunded are terminal states.
type Order struct {
	ID                string          `gorm:"primaryKey;size:26" json:"id"`
	OrderNo           string          `gorm:"uniqueIndex;size:32;not null" json:"orderNo"`
	UserID            uint            `gorm:"not null;index" json:"userId"`
	User              *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TechnicianID      uint            `gorm:"not null;index:idx_orders_technician_slot,priority:1" json:"technicianId"`
	Technician        *Technician     `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`
	ServiceID         uint            `gorm:"not null;index" json:"serviceId"`
	Service           *Service        `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	AppointmentTime   time.Time       `gorm:"not null;index:idx_orders_technician_slot,priority:2" json:"appointmentTime"`
	EstimatedDuration int             `gorm:"not null" json:"estimatedDuration"` // minutes, copied from the service
	Address           AddressSnapshot `gorm:"serializer:json;type:text" json:"address"`
	Note              string          `gorm:"type:text" json:"note"`
	CouponID          *uint           `json:"couponId"`

	BasePrice      int64 `gorm:"not null" json:"basePrice"`
	UrgentFee      int64 `gorm:"not null;default:0" json:"urgentFee"`
	DistanceFee    int64 `gorm:"not null;default:0" json:"distanceFee"`
	CouponDiscount int64 `gorm:"not null;default:0" json:"couponDiscount"`
	TotalPrice     int64 `gorm:"not null" json:"totalPrice"`

	Status        OrderStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;default:'unpaid'" json:"paymentStatus"`
	Version       int           `gorm:"not null;default:1" json:"version"` // bumped on every write

	ServicePhotos    []string      `gorm:"serializer:json;type:text" json:"servicePhotos"`
	ServicePhotoURLs []string      `gorm:"-" json:"servicePhotoUrls,omitempty"` // computed, presigned
	TechnicianNote   string        `gorm:"type:text" json:"technicianNote"`
	CancelReason     string        `json:"cancelReason,omitempty"`
	CommentID        *uint         `json:"commentId"`
	Comment          *OrderComment `gorm:"foreignKey:CommentID" json:"comment,omitempty"`
	OriginalOrderID  *string       `gorm:"size:26;index" json:"originalOrderId,omitempty"` // set when reordered

	ActualStartTime *time.Time `json:"actualStartTime,omitempty"`
	ActualEndTime   *time.Time `json:"actualEndTime,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	RefundedAt      *time.Time `json:"refundedAt,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// EndTime is the scheduled end of the appointment.
func (o Order) EndTime() time.Time {
	return o.AppointmentTime.Add(time.Duration(o.EstimatedDuration) * time.Minute)
}
