package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/utils"
)

const (
	maxNoteLength     = 500
	maxServicePhotos  = 9
	defaultPageSize   = 10
	maxPageSize       = 50
	orderNoPrefix     = "TU"
	orderNoMaxAttempt = 3
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	DB                *gorm.DB
	Notifier          Notifier
	Payments          PaymentGateway
	Images            ImageService
	Distance          DistanceEstimator
	Availability      AvailabilityChecker
	Logger            *zap.Logger
	Clock             func() time.Time
	IDGenerator       func() string
	IdempotencyKeyGen func() uuid.UUID
}

// OrderService implements the order lifecycle: creation with pricing and
// conflict checks, guarded status transitions and their side effects.
type OrderService struct {
	db           *gorm.DB
	notifier     Notifier
	payments     PaymentGateway
	images       ImageService
	distance     DistanceEstimator
	availability AvailabilityChecker
	logger       *zap.Logger
	clock        func() time.Time
	newID        func() string
	newKey       func() uuid.UUID
}

var orderServiceInstance *OrderService

// NewOrderService constructs the order service, filling in defaults for
// optional collaborators.
func NewOrderService(deps OrderServiceDeps) *OrderService {
	svc := &OrderService{
		db:           deps.DB,
		notifier:     deps.Notifier,
		payments:     deps.Payments,
		images:       deps.Images,
		distance:     deps.Distance,
		availability: deps.Availability,
		logger:       deps.Logger,
		clock:        deps.Clock,
		newID:        deps.IDGenerator,
		newKey:       deps.IdempotencyKeyGen,
	}
	if svc.distance == nil {
		svc.distance = NoDistanceFee{}
	}
	if svc.availability.Buffer == 0 {
		svc.availability = NewAvailabilityChecker(0)
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.clock == nil {
		svc.clock = func() time.Time { return time.Now().UTC() }
	}
	if svc.newID == nil {
		svc.newID = func() string { return ulid.Make().String() }
	}
	if svc.newKey == nil {
		svc.newKey = uuid.New
	}
	return svc
}

// InitOrderService builds the shared order service instance
func InitOrderService(deps OrderServiceDeps) *OrderService {
	orderServiceInstance = NewOrderService(deps)
	return orderServiceInstance
}

// GetOrderService returns the shared order service instance
func GetOrderService() *OrderService {
	return orderServiceInstance
}

// SetOrderService sets the shared order service instance (primarily for testing)
func SetOrderService(svc *OrderService) {
	orderServiceInstance = svc
}

// CreateOrderRequest is the input of the create action.
type CreateOrderRequest struct {
	TechnicianID    uint                    `json:"technicianId"`
	ServiceID       uint                    `json:"serviceId"`
	AppointmentTime time.Time               `json:"appointmentTime"`
	AddressID       *uint                   `json:"addressId"`
	Address         *models.AddressSnapshot `json:"address"`
	Note            string                  `json:"note"`
	CouponID        *uint                   `json:"couponId"`
	UrgentFee       int64                   `json:"urgentFee"`
}

// StartOrderRequest is the input of the start action.
type StartOrderRequest struct {
	ActualStartTime *time.Time `json:"actualStartTime"`
}

// CompleteOrderRequest is the input of the complete action.
type CompleteOrderRequest struct {
	ActualEndTime  *time.Time `json:"actualEndTime"`
	ServicePhotos  []string   `json:"servicePhotos"`
	TechnicianNote string     `json:"technicianNote"`
}

// CancelOrderRequest is the input of the cancel action.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CommentOrderRequest is the input of the comment action.
type CommentOrderRequest struct {
	Rating  int      `json:"rating"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// UpdateOrderRequest is the input of the update action. Nil fields are left unchanged.
type UpdateOrderRequest struct {
	Note      *string                 `json:"note"`
	AddressID *uint                   `json:"addressId"`
	Address   *models.AddressSnapshot `json:"address"`
}

// PayOrderRequest is the input of the pay action.
type PayOrderRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

// RefundOrderRequest is the input of the refund action.
type RefundOrderRequest struct {
	Reason string `json:"reason"`
}

// ReorderRequest is the input of the reorder action.
type ReorderRequest struct {
	AppointmentTime time.Time `json:"appointmentTime"`
}

// ListOrdersRequest filters and paginates the list action.
type ListOrdersRequest struct {
	Status    string     `json:"status" form:"status"`
	StartTime *time.Time `json:"startTime" form:"startTime" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime   *time.Time `json:"endTime" form:"endTime" time_format:"2006-01-02T15:04:05Z07:00"`
	Page      int        `json:"page" form:"page"`
	PageSize  int        `json:"pageSize" form:"pageSize"`
}

// OrderPage is one page of the list action.
type OrderPage struct {
	List     []models.Order `json:"list"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// Create books a new order for the customer.
func (s *OrderService) Create(ctx context.Context, actor Actor, req CreateOrderRequest) (*models.Order, error) {
	return s.create(ctx, actor, req, nil)
}

func (s *OrderService) create(ctx context.Context, actor Actor, req CreateOrderRequest, originalOrderID *string) (*models.Order, error) {
	if req.TechnicianID == 0 || req.ServiceID == 0 || req.AppointmentTime.IsZero() {
		return nil, validationError("technicianId, serviceId and appointmentTime are required")
	}
	if req.AddressID == nil && (req.Address == nil || req.Address.IsZero()) {
		return nil, validationError("address is required")
	}
	if req.UrgentFee < 0 {
		return nil, validationError("urgentFee must not be negative")
	}
	if len(req.Note) > maxNoteLength {
		return nil, validationError(fmt.Sprintf("note must be at most %d characters", maxNoteLength))
	}
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}

	now := s.clock()
	appointment := req.AppointmentTime.UTC().Truncate(time.Second)

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var technician models.Technician
		technicianQuery := tx
		if tx.Dialector.Name() == "postgres" {
			// Serialises concurrent bookings of the same technician.
			technicianQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := technicianQuery.First(&technician, req.TechnicianID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("technician not found")
			}
			return fmt.Errorf("load technician: %w", err)
		}

		var service models.Service
		if err := tx.Where("active = ?", true).First(&service, req.ServiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("service not found")
			}
			return fmt.Errorf("load service: %w", err)
		}

		if !appointment.After(now) {
			return validationError("appointment time must be in the future")
		}

		address, err := s.resolveAddress(tx, actor, req.AddressID, req.Address)
		if err != nil {
			return err
		}

		conflict, err := s.availability.FindConflict(ctx, tx, technician.ID, appointment, service.DurationTime())
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflictError("the technician already has an appointment in this time slot")
		}

		distanceFee, err := s.distance.DistanceFee(ctx, &technician, address)
		if err != nil {
			return fmt.Errorf("estimate distance fee: %w", err)
		}

		var coupon *models.Coupon
		if req.CouponID != nil {
			var found models.Coupon
			err := tx.Where("id = ? AND user_id = ? AND used = ?", *req.CouponID, actor.ID, false).First(&found).Error
			switch {
			case err == nil:
				coupon = &found
			case errors.Is(err, gorm.ErrRecordNotFound):
				// A missing or used coupon simply grants nothing.
			default:
				return fmt.Errorf("load coupon: %w", err)
			}
		}
		discount := CouponDiscount(coupon, service.Price, now)
		price := Quote(service.Price, req.UrgentFee, distanceFee, discount)

		orderNo, err := s.uniqueOrderNo(tx, now)
		if err != nil {
			return err
		}

		order = models.Order{
			ID:                s.newID(),
			OrderNo:           orderNo,
			UserID:            actor.ID,
			TechnicianID:      technician.ID,
			ServiceID:         service.ID,
			AppointmentTime:   appointment,
			EstimatedDuration: service.Duration,
			Address:           address,
			Note:              req.Note,
			BasePrice:         price.BasePrice,
			UrgentFee:         price.UrgentFee,
			DistanceFee:       price.DistanceFee,
			CouponDiscount:    price.CouponDiscount,
			TotalPrice:        price.TotalPrice,
			Status:            models.OrderStatusPending,
			PaymentStatus:     models.PaymentStatusUnpaid,
			Version:           1,
			ServicePhotos:     []string{},
			OriginalOrderID:   originalOrderID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if coupon != nil {
			order.CouponID = &coupon.ID
		}

		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		// A supplied coupon is consumed even when it grants nothing on this order.
		if coupon != nil {
			res := tx.Model(&models.Coupon{}).
				Where("id = ? AND used = ?", coupon.ID, false).
				Updates(map[string]interface{}{"used": true, "used_at": now, "order_id": order.ID})
			if res.Error != nil {
				return fmt.Errorf("mark coupon used: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return conflictError("coupon has already been used")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("orderId", order.ID),
		zap.String("orderNo", order.OrderNo),
		zap.Uint("userId", order.UserID),
		zap.Uint("technicianId", order.TechnicianID),
		zap.Int64("totalPrice", order.TotalPrice),
	)
	s.notify(ctx, order.TechnicianID, models.RoleTechnician, NotifyNewOrder, map[string]any{
		"orderId":         order.ID,
		"orderNo":         order.OrderNo,
		"userId":          order.UserID,
		"appointmentTime": order.AppointmentTime,
	})
	return &order, nil
}

// Confirm accepts a pending order on behalf of its technician.
func (s *OrderService) Confirm(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	order, err := s.transition(ctx, actor, orderID, transition{
		action:   "confirm",
		from:     []models.OrderStatus{models.OrderStatusPending},
		to:       models.OrderStatusConfirmed,
		operator: models.RoleTechnician,
		mutate: func(o *models.Order, now time.Time) []string {
			o.ConfirmedAt = &now
			return []string{"confirmed_at"}
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, order.UserID, models.RoleCustomer, NotifyOrderConfirmed, map[string]any{
		"orderId":      order.ID,
		"technicianId": order.TechnicianID,
	})
	return order, nil
}

// Start begins the service and marks the technician busy.
func (s *OrderService) Start(ctx context.Context, actor Actor, orderID string, req StartOrderRequest) (*models.Order, error) {
	order, err := s.transition(ctx, actor, orderID, transition{
		action:   "start",
		from:     []models.OrderStatus{models.OrderStatusConfirmed},
		to:       models.OrderStatusInProgress,
		operator: models.RoleTechnician,
		mutate: func(o *models.Order, now time.Time) []string {
			actual := now
			if req.ActualStartTime != nil {
				actual = req.ActualStartTime.UTC()
			}
			o.StartedAt = &now
			o.ActualStartTime = &actual
			return []string{"started_at", "actual_start_time"}
		},
		inTx: func(tx *gorm.DB, o *models.Order, now time.Time) error {
			err := tx.Model(&models.Technician{}).Where("id = ?", o.TechnicianID).
				Updates(map[string]interface{}{
					"status":           models.TechnicianBusy,
					"current_order_id": o.ID,
					"updated_at":       now,
				}).Error
			if err != nil {
				return fmt.Errorf("mark technician busy: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, order.UserID, models.RoleCustomer, NotifyServiceStarted, map[string]any{
		"orderId":      order.ID,
		"technicianId": order.TechnicianID,
	})
	return order, nil
}

// Complete finishes the service, frees the technician and bumps their order count.
func (s *OrderService) Complete(ctx context.Context, actor Actor, orderID string, req CompleteOrderRequest) (*models.Order, error) {
	if len(req.ServicePhotos) > maxServicePhotos {
		return nil, validationError(fmt.Sprintf("at most %d service photos are allowed", maxServicePhotos))
	}
	for _, key := range req.ServicePhotos {
		if !strings.HasPrefix(key, photoPrefix(orderID)) {
			return nil, validationError("service photos must be uploaded for this order")
		}
	}
	if len(req.TechnicianNote) > maxNoteLength {
		return nil, validationError(fmt.Sprintf("technicianNote must be at most %d characters", maxNoteLength))
	}

	order, err := s.transition(ctx, actor, orderID, transition{
		action:   "complete",
		from:     []models.OrderStatus{models.OrderStatusInProgress},
		to:       models.OrderStatusCompleted,
		operator: models.RoleTechnician,
		mutate: func(o *models.Order, now time.Time) []string {
			actual := now
			if req.ActualEndTime != nil {
				actual = req.ActualEndTime.UTC()
			}
			photos := req.ServicePhotos
			if photos == nil {
				photos = []string{}
			}
			o.CompletedAt = &now
			o.ActualEndTime = &actual
			o.ServicePhotos = photos
			o.TechnicianNote = req.TechnicianNote
			return []string{"completed_at", "actual_end_time", "service_photos", "technician_note"}
		},
		inTx: func(tx *gorm.DB, o *models.Order, now time.Time) error {
			err := tx.Model(&models.Technician{}).Where("id = ?", o.TechnicianID).
				Updates(map[string]interface{}{
					"status":           models.TechnicianAvailable,
					"current_order_id": nil,
					"order_count":      gorm.Expr("order_count + ?", 1),
					"updated_at":       now,
				}).Error
			if err != nil {
				return fmt.Errorf("release technician: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, order.UserID, models.RoleCustomer, NotifyServiceCompleted, map[string]any{
		"orderId":      order.ID,
		"technicianId": order.TechnicianID,
	})
	return order, nil
}

// Cancel cancels a pending or confirmed order. A paid order is refunded on a
// best-effort basis; a failed refund can be retried with Refund.
func (s *OrderService) Cancel(ctx context.Context, actor Actor, orderID string, req CancelOrderRequest) (*models.Order, error) {
	if len(req.Reason) > maxNoteLength {
		return nil, validationError(fmt.Sprintf("reason must be at most %d characters", maxNoteLength))
	}

	order, err := s.transition(ctx, actor, orderID, transition{
		action:   "cancel",
		from:     []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed},
		to:       models.OrderStatusCancelled,
		operator: models.RoleCustomer,
		mutate: func(o *models.Order, now time.Time) []string {
			o.CancelReason = req.Reason
			o.CancelledAt = &now
			return []string{"cancel_reason", "cancelled_at"}
		},
	})
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == models.PaymentStatusPaid {
		refunded, err := s.refund(ctx, order, "customer cancelled the order")
		if err != nil {
			s.logger.Warn("automatic refund failed",
				zap.String("orderId", order.ID),
				zap.Error(err),
			)
		} else {
			order = refunded
		}
	}

	s.notify(ctx, order.TechnicianID, models.RoleTechnician, NotifyOrderCancelled, map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
		"reason":  req.Reason,
	})
	return order, nil
}

// Comment records the customer's review of a completed order and refreshes
// the technician's aggregate rating.
func (s *OrderService) Comment(ctx context.Context, actor Actor, orderID string, req CommentOrderRequest) (*models.OrderComment, error) {
	if orderID == "" || req.Rating == 0 {
		return nil, validationError("orderId and rating are required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, validationError("rating must be between 1 and 5")
	}
	if len(req.Content) > maxNoteLength {
		return nil, validationError(fmt.Sprintf("content must be at most %d characters", maxNoteLength))
	}
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}

	var comment models.OrderComment
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != actor.ID {
			return forbiddenError("you are not allowed to operate on this order")
		}
		if o.Status != models.OrderStatusCompleted {
			return conflictError("only completed orders can be reviewed")
		}
		if o.CommentID != nil {
			return conflictError("order has already been reviewed")
		}

		now := s.clock()
		tags := req.Tags
		if tags == nil {
			tags = []string{}
		}
		comment = models.OrderComment{
			OrderID:      o.ID,
			UserID:       actor.ID,
			TechnicianID: o.TechnicianID,
			Rating:       req.Rating,
			Content:      req.Content,
			Tags:         tags,
			CreatedAt:    now,
		}
		if err := tx.Create(&comment).Error; err != nil {
			if isUniqueViolation(err) {
				return conflictError("order has already been reviewed")
			}
			return fmt.Errorf("insert comment: %w", err)
		}

		prevStatus, prevVersion := o.Status, o.Version
		o.CommentID = &comment.ID
		if err := s.compareAndSwap(tx, o, prevStatus, prevVersion, now, "comment_id"); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshTechnicianRating(ctx, order.TechnicianID)
	s.notify(ctx, order.TechnicianID, models.RoleTechnician, NotifyOrderCommented, map[string]any{
		"orderId": order.ID,
		"rating":  comment.Rating,
	})
	return &comment, nil
}

// Update edits the note or address of a pending order.
func (s *OrderService) Update(ctx context.Context, actor Actor, orderID string, req UpdateOrderRequest) (*models.Order, error) {
	if orderID == "" {
		return nil, validationError("orderId is required")
	}
	if req.Note == nil && req.AddressID == nil && req.Address == nil {
		return nil, validationError("nothing to update")
	}
	if req.Note != nil && len(*req.Note) > maxNoteLength {
		return nil, validationError(fmt.Sprintf("note must be at most %d characters", maxNoteLength))
	}
	if req.AddressID == nil && req.Address != nil && req.Address.IsZero() {
		return nil, validationError("address must not be empty")
	}
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != actor.ID {
			return forbiddenError("you are not allowed to operate on this order")
		}
		if o.Status != models.OrderStatusPending {
			return conflictError("only pending orders can be updated")
		}

		prevStatus, prevVersion := o.Status, o.Version
		var columns []string
		if req.Note != nil {
			o.Note = *req.Note
			columns = append(columns, "note")
		}
		if req.AddressID != nil || req.Address != nil {
			if o.PaymentStatus != models.PaymentStatusUnpaid {
				return conflictError("the address of a paid order cannot be changed")
			}
			address, err := s.resolveAddress(tx, actor, req.AddressID, req.Address)
			if err != nil {
				return err
			}

			var technician models.Technician
			if err := tx.First(&technician, o.TechnicianID).Error; err != nil {
				return fmt.Errorf("load technician: %w", err)
			}
			distanceFee, err := s.distance.DistanceFee(ctx, &technician, address)
			if err != nil {
				return fmt.Errorf("estimate distance fee: %w", err)
			}
			price := Quote(o.BasePrice, o.UrgentFee, distanceFee, o.CouponDiscount)

			o.Address = address
			o.DistanceFee = price.DistanceFee
			o.TotalPrice = price.TotalPrice
			columns = append(columns, "address", "distance_fee", "total_price")
		}
		if err := s.compareAndSwap(tx, o, prevStatus, prevVersion, s.clock(), columns...); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Pay charges the order total through the payment gateway.
func (s *OrderService) Pay(ctx context.Context, actor Actor, orderID string, req PayOrderRequest) (*models.Order, error) {
	if orderID == "" {
		return nil, validationError("orderId is required")
	}
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}

	order, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID {
		return nil, forbiddenError("you are not allowed to operate on this order")
	}
	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusConfirmed {
		return nil, conflictError(fmt.Sprintf("order status %s does not allow payment", order.Status))
	}
	if !order.PaymentStatus.CanTransitionTo(models.PaymentStatusPaid) {
		return nil, conflictError("order has already been paid")
	}

	key := s.newKey()
	provider := freeProvider
	var charge ChargeResult
	if order.TotalPrice > 0 {
		if s.payments == nil {
			return nil, errors.New("payment gateway is not configured")
		}
		charge, err = s.payments.Charge(ctx, ChargeRequest{
			OrderID:        order.ID,
			OrderNo:        order.OrderNo,
			Amount:         order.TotalPrice,
			PaymentMethod:  req.PaymentMethod,
			IdempotencyKey: key,
		})
		if err != nil {
			if errors.Is(err, ErrPaymentDeclined) {
				return nil, conflictError("payment declined")
			}
			return nil, fmt.Errorf("charge order %s: %w", order.ID, err)
		}
		provider = s.payments.Name()
	}

	now := s.clock()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prevStatus, prevVersion := order.Status, order.Version
		order.PaymentStatus = models.PaymentStatusPaid
		order.PaidAt = &now
		if err := s.compareAndSwap(tx, order, prevStatus, prevVersion, now, "payment_status", "paid_at"); err != nil {
			return err
		}
		payment := models.Payment{
			OrderID:        order.ID,
			Amount:         order.TotalPrice,
			Provider:       provider,
			ProviderRef:    charge.Reference,
			IdempotencyKey: key.String(),
			CreatedAt:      now,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		if provider == freeProvider {
			return nil, err
		}
		// The money moved but the order did not; give it back.
		if _, refundErr := s.payments.Refund(ctx, RefundRequest{
			OrderID:   order.ID,
			Reference: charge.Reference,
			Amount:    order.TotalPrice,
			Reason:    "order changed while paying",
		}); refundErr != nil {
			s.logger.Error("failed to reverse charge",
				zap.String("orderId", order.ID),
				zap.String("reference", charge.Reference),
				zap.Error(refundErr),
			)
		}
		return nil, err
	}

	s.logger.Info("order paid", zap.String("orderId", order.ID), zap.Int64("amount", order.TotalPrice))
	s.notify(ctx, order.TechnicianID, models.RoleTechnician, NotifyOrderPaid, map[string]any{
		"orderId": order.ID,
		"amount":  order.TotalPrice,
	})
	return order, nil
}

// Refund returns the payment of a cancelled order whose automatic refund did not go through.
func (s *OrderService) Refund(ctx context.Context, actor Actor, orderID string, req RefundOrderRequest) (*models.Order, error) {
	if orderID == "" {
		return nil, validationError("orderId is required")
	}
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}

	order, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID {
		return nil, forbiddenError("you are not allowed to operate on this order")
	}
	if order.Status != models.OrderStatusCancelled {
		return nil, conflictError("only cancelled orders can be refunded")
	}
	if order.PaymentStatus != models.PaymentStatusPaid {
		return nil, conflictError("order has no payment to refund")
	}

	reason := req.Reason
	if reason == "" {
		reason = "customer requested refund"
	}
	return s.refund(ctx, order, reason)
}

// Reorder books a fresh order with the technician, service and address of a finished one.
func (s *OrderService) Reorder(ctx context.Context, actor Actor, orderID string, req ReorderRequest) (*models.Order, error) {
	if orderID == "" || req.AppointmentTime.IsZero() {
		return nil, validationError("orderId and appointmentTime are required")
	}
	if err := requireCustomer(actor); err != nil {
		return nil, err
	}

	source, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if source.UserID != actor.ID {
		return nil, forbiddenError("you are not allowed to operate on this order")
	}
	if !source.Status.IsFinal() {
		return nil, conflictError("only finished orders can be reordered")
	}

	address := source.Address
	return s.create(ctx, actor, CreateOrderRequest{
		TechnicianID:    source.TechnicianID,
		ServiceID:       source.ServiceID,
		AppointmentTime: req.AppointmentTime,
		Address:         &address,
		Note:            source.Note,
	}, &source.ID)
}

// List returns one page of the actor's orders, newest first.
func (s *OrderService) List(ctx context.Context, actor Actor, req ListOrdersRequest) (*OrderPage, error) {
	if actor.ID == 0 {
		return nil, unauthenticatedError("unauthenticated")
	}
	if req.Status != "" && !models.OrderStatus(req.Status).Valid() {
		return nil, validationError(fmt.Sprintf("unknown order status %q", req.Status))
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.Order{})
	switch actor.Role {
	case models.RoleCustomer:
		query = query.Where("user_id = ?", actor.ID)
	case models.RoleTechnician:
		query = query.Where("technician_id = ?", actor.ID)
	default:
		return nil, unauthenticatedError("unauthenticated")
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.StartTime != nil {
		query = query.Where("created_at >= ?", req.StartTime.UTC())
	}
	if req.EndTime != nil {
		query = query.Where("created_at <= ?", req.EndTime.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	orders := []models.Order{}
	err := query.
		Preload("Technician").
		Preload("Service").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return &OrderPage{List: orders, Total: total, Page: page, PageSize: pageSize}, nil
}

// Detail returns an order visible to its customer or its technician.
func (s *OrderService) Detail(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, validationError("orderId is required")
	}
	if actor.ID == 0 {
		return nil, unauthenticatedError("unauthenticated")
	}

	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Technician").
		Preload("Service").
		Preload("Comment").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("order not found")
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if !canView(&order, actor) {
		return nil, forbiddenError("you are not allowed to view this order")
	}

	if s.images != nil && len(order.ServicePhotos) > 0 {
		urls := make([]string, 0, len(order.ServicePhotos))
		for _, key := range order.ServicePhotos {
			url, err := s.images.GetImageURL(key)
			if err != nil {
				s.logger.Warn("failed to presign service photo", zap.String("key", key), zap.Error(err))
				continue
			}
			urls = append(urls, url)
		}
		order.ServicePhotoURLs = urls
	}
	return &order, nil
}

// UploadPhoto stores a completion photo for an in-progress order of the
// technician and returns its storage key and a URL for viewing it.
func (s *OrderService) UploadPhoto(ctx context.Context, actor Actor, orderID string, fileHeader *multipart.FileHeader) (string, string, error) {
	if orderID == "" || fileHeader == nil {
		return "", "", validationError("orderId and image are required")
	}
	if err := requireTechnician(actor); err != nil {
		return "", "", err
	}
	if s.images == nil {
		return "", "", errors.New("image storage is not configured")
	}

	order, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return "", "", err
	}
	if order.TechnicianID != actor.ID {
		return "", "", forbiddenError("you are not allowed to operate on this order")
	}
	if order.Status != models.OrderStatusInProgress {
		return "", "", conflictError("photos can only be uploaded while the service is in progress")
	}

	key, err := s.images.UploadImage(ctx, fileHeader, photoPrefix(order.ID))
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			return "", "", validationError(uploadErr.Message)
		}
		return "", "", err
	}
	url, err := s.images.GetImageURL(key)
	if err != nil {
		return "", "", err
	}

	s.logger.Info("service photo uploaded", zap.String("orderId", order.ID), zap.String("key", key))
	return key, url, nil
}

type transition struct {
	action   string
	from     []models.OrderStatus
	to       models.OrderStatus
	operator models.Role
	// mutate applies transition fields to the order and names the columns it touched.
	mutate func(o *models.Order, now time.Time) []string
	// inTx runs further writes inside the transition's transaction.
	inTx func(tx *gorm.DB, o *models.Order, now time.Time) error
}

// transition applies one guarded status change: existence, actor authority,
// current status, then a compare-and-swap write.
func (s *OrderService) transition(ctx context.Context, actor Actor, orderID string, t transition) (*models.Order, error) {
	if orderID == "" {
		return nil, validationError("orderId is required")
	}
	switch t.operator {
	case models.RoleTechnician:
		if err := requireTechnician(actor); err != nil {
			return nil, err
		}
	default:
		if err := requireCustomer(actor); err != nil {
			return nil, err
		}
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !isOperator(o, actor) {
			return forbiddenError("you are not allowed to operate on this order")
		}
		if !statusIn(o.Status, t.from) || !o.Status.CanTransitionTo(t.to) {
			return conflictError(fmt.Sprintf("order status %s does not allow %s", o.Status, t.action))
		}

		now := s.clock()
		prevStatus, prevVersion := o.Status, o.Version
		o.Status = t.to
		columns := []string{"status"}
		if t.mutate != nil {
			columns = append(columns, t.mutate(o, now)...)
		}
		if err := s.compareAndSwap(tx, o, prevStatus, prevVersion, now, columns...); err != nil {
			return err
		}
		if t.inTx != nil {
			if err := t.inTx(tx, o, now); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("orderId", order.ID),
		zap.String("action", t.action),
		zap.String("status", string(order.Status)),
		zap.Stringer("actor", actor),
	)
	return order, nil
}

// compareAndSwap writes columns of o only if the stored row still has the
// status and version it was read with. The version is bumped on success.
func (s *OrderService) compareAndSwap(tx *gorm.DB, o *models.Order, prevStatus models.OrderStatus, prevVersion int, now time.Time, columns ...string) error {
	o.Version = prevVersion + 1
	o.UpdatedAt = now
	columns = append(columns, "version", "updated_at")

	res := tx.Model(o).
		Where("status = ? AND version = ?", prevStatus, prevVersion).
		Select(columns).
		Updates(o)
	if res.Error != nil {
		return fmt.Errorf("update order %s: %w", o.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return conflictError("order was modified concurrently, please retry")
	}
	return nil
}

// refund returns the order total through the gateway and moves the order to refunded.
// The order is claimed before the gateway is called, so a concurrent refund of the
// same order loses with a conflict instead of paying out twice.
func (s *OrderService) refund(ctx context.Context, order *models.Order, reason string) (*models.Order, error) {
	if order.TotalPrice > 0 && s.payments == nil {
		return nil, errors.New("payment gateway is not configured")
	}

	now := s.clock()
	record := models.Refund{
		OrderID:   order.ID,
		Amount:    order.TotalPrice,
		Reason:    reason,
		Status:    models.RefundProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	db := s.db.WithContext(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.Refund{}).
			Where("order_id = ? AND status IN ?", order.ID, []models.RefundStatus{models.RefundProcessing, models.RefundSucceeded}).
			Count(&open).Error; err != nil {
			return fmt.Errorf("count refunds: %w", err)
		}
		if open > 0 {
			return conflictError("a refund is already in progress for this order")
		}
		if err := s.compareAndSwap(tx, order, order.Status, order.Version, now); err != nil {
			return err
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("insert refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result RefundResult
	if order.TotalPrice > 0 {
		var payment models.Payment
		if err := db.Where("order_id = ?", order.ID).Order("created_at DESC").First(&payment).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load payment: %w", err)
		}

		result, err = s.payments.Refund(ctx, RefundRequest{
			OrderID:   order.ID,
			Reference: payment.ProviderRef,
			Amount:    order.TotalPrice,
			Reason:    reason,
		})
		if err != nil {
			if updateErr := db.Model(&record).Updates(map[string]interface{}{"status": models.RefundFailed, "updated_at": s.clock()}).Error; updateErr != nil {
				s.logger.Error("failed to record refund failure", zap.Uint("refundId", record.ID), zap.Error(updateErr))
			}
			return nil, fmt.Errorf("refund order %s: %w", order.ID, err)
		}
	}

	now = s.clock()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&record).Updates(map[string]interface{}{
			"status":       models.RefundSucceeded,
			"provider_ref": result.Reference,
			"updated_at":   now,
		}).Error; err != nil {
			return fmt.Errorf("update refund: %w", err)
		}

		current, err := loadOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(models.OrderStatusRefunded) || !current.PaymentStatus.CanTransitionTo(models.PaymentStatusRefunded) {
			return conflictError("order can no longer be refunded")
		}
		prevStatus, prevVersion := current.Status, current.Version
		current.Status = models.OrderStatusRefunded
		current.PaymentStatus = models.PaymentStatusRefunded
		current.RefundedAt = &now
		if err := s.compareAndSwap(tx, current, prevStatus, prevVersion, now, "status", "payment_status", "refunded_at"); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order refunded", zap.String("orderId", order.ID), zap.Int64("amount", record.Amount))
	s.notify(ctx, order.UserID, models.RoleCustomer, NotifyOrderRefunded, map[string]any{
		"orderId": order.ID,
		"amount":  record.Amount,
	})
	return order, nil
}

// refreshTechnicianRating recomputes the mean rating of all the technician's
// reviews. Failures are logged and never surface to the caller.
func (s *OrderService) refreshTechnicianRating(ctx context.Context, technicianID uint) {
	var stats struct {
		Average float64
		Count   int64
	}
	db := s.db.WithContext(ctx)
	err := db.Model(&models.OrderComment{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("technician_id = ?", technicianID).
		Scan(&stats).Error
	if err == nil && stats.Count > 0 {
		err = db.Model(&models.Technician{}).Where("id = ?", technicianID).
			Updates(map[string]interface{}{
				"rating":        stats.Average,
				"comment_count": stats.Count,
				"updated_at":    s.clock(),
			}).Error
	}
	if err != nil {
		s.logger.Warn("failed to refresh technician rating", zap.Uint("technicianId", technicianID), zap.Error(err))
	}
}

// notify emits a best-effort notification; delivery errors are logged and dropped.
func (s *OrderService) notify(ctx context.Context, recipientID uint, recipientType models.Role, eventType string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	notification, err := NewNotification(recipientID, recipientType, eventType, payload)
	if err == nil {
		notification.CreatedAt = s.clock()
		err = s.notifier.Notify(ctx, notification)
	}
	if err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("type", eventType),
			zap.Uint("recipientId", recipientID),
			zap.String("recipientType", string(recipientType)),
			zap.Error(err),
		)
	}
}

// resolveAddress copies either an address book entry of the actor or an
// inline address into the value stored on the order.
func (s *OrderService) resolveAddress(tx *gorm.DB, actor Actor, addressID *uint, inline *models.AddressSnapshot) (models.AddressSnapshot, error) {
	if addressID != nil {
		var address models.Address
		if err := tx.Where("id = ? AND user_id = ?", *addressID, actor.ID).First(&address).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.AddressSnapshot{}, notFoundError("address not found")
			}
			return models.AddressSnapshot{}, fmt.Errorf("load address: %w", err)
		}
		return address.Snapshot(), nil
	}
	if inline == nil || inline.IsZero() {
		return models.AddressSnapshot{}, validationError("address is required")
	}
	return *inline, nil
}

func (s *OrderService) uniqueOrderNo(tx *gorm.DB, now time.Time) (string, error) {
	for attempt := 0; attempt < orderNoMaxAttempt; attempt++ {
		orderNo := GenerateOrderNo(now)
		var count int64
		if err := tx.Model(&models.Order{}).Where("order_no = ?", orderNo).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check order number: %w", err)
		}
		if count == 0 {
			return orderNo, nil
		}
	}
	return "", conflictError("could not allocate an order number, please retry")
}

// GenerateOrderNo builds the human readable order number: TU, the date, the
// last six digits of the millisecond clock and four random digits.
func GenerateOrderNo(now time.Time) string {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	return fmt.Sprintf("%s%s%s%04d", orderNoPrefix, now.Format("20060102"), millis, rand.IntN(10000))
}

func loadOrder(db *gorm.DB, orderID string) (*models.Order, error) {
	var order models.Order
	if err := db.First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("order not found")
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &order, nil
}

func isOperator(order *models.Order, actor Actor) bool {
	switch actor.Role {
	case models.RoleCustomer:
		return order.UserID == actor.ID
	case models.RoleTechnician:
		return order.TechnicianID == actor.ID
	}
	return false
}

func canView(order *models.Order, actor Actor) bool {
	return isOperator(order, actor)
}

func statusIn(status models.OrderStatus, allowed []models.OrderStatus) bool {
	for _, candidate := range allowed {
		if status == candidate {
			return true
		}
	}
	return false
}

func photoPrefix(orderID string) string {
	return "orders/" + orderID + "/"
}
