package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tuinawx/booking-api/models"
)

// DefaultBookingBuffer is the margin kept free around every appointment.
const DefaultBookingBuffer = time.Hour

// maxServiceDuration bounds how far back the conflict scan looks for orders
// that started earlier but may still be running.
const maxServiceDuration = 24 * time.Hour

// blockingStatuses are the order states that occupy a technician's calendar.
var blockingStatuses = []string{
	string(models.OrderStatusConfirmed),
	string(models.OrderStatusInProgress),
}

// AvailabilityChecker detects technician double-booking. An existing order
// occupies [start, start+duration) widened by Buffer on both sides.
type AvailabilityChecker struct {
	Buffer time.Duration
}

// NewAvailabilityChecker returns a checker using buffer, or the default one hour
// when buffer is zero.
func NewAvailabilityChecker(buffer time.Duration) AvailabilityChecker {
	if buffer == 0 {
		buffer = DefaultBookingBuffer
	}
	return AvailabilityChecker{Buffer: buffer}
}

// Overlaps reports whether a candidate slot collides with an existing order.
// Touching the buffer edge exactly is not a collision.
func (a AvailabilityChecker) Overlaps(candidateStart time.Time, duration time.Duration, existing models.Order) bool {
	candidateEnd := candidateStart.Add(duration)
	return existing.AppointmentTime.Before(candidateEnd.Add(a.Buffer)) &&
		existing.EndTime().Add(a.Buffer).After(candidateStart)
}

// FindConflict returns the first confirmed or in-progress order of the
// technician colliding with the candidate slot, or nil when the slot is free.
func (a AvailabilityChecker) FindConflict(ctx context.Context, db *gorm.DB, technicianID uint, start time.Time, duration time.Duration) (*models.Order, error) {
	end := start.Add(duration)

	var candidates []models.Order
	err := db.WithContext(ctx).
		Where("technician_id = ? AND status IN ?", technicianID, blockingStatuses).
		Where("appointment_time < ? AND appointment_time > ?", end.Add(a.Buffer).UTC(), start.Add(-a.Buffer-maxServiceDuration).UTC()).
		Order("appointment_time ASC").
		Find(&candidates).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("scan technician schedule: %w", err)
	}

	for i := range candidates {
		if a.Overlaps(start, duration, candidates[i]) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}
