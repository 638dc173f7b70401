package services

import (
	"fmt"

	"github.com/tuinawx/booking-api/models"
)

// Actor is the authenticated caller of a service operation. It is always
// passed explicitly; services never look identity up from shared state.
type Actor struct {
	Role models.Role
	ID   uint
}

// Customer builds a customer actor.
func Customer(id uint) Actor {
	return Actor{Role: models.RoleCustomer, ID: id}
}

// TechnicianActor builds a technician actor.
func TechnicianActor(id uint) Actor {
	return Actor{Role: models.RoleTechnician, ID: id}
}

// IsCustomer reports whether the actor is an authenticated customer.
func (a Actor) IsCustomer() bool {
	return a.Role == models.RoleCustomer && a.ID != 0
}

// IsTechnician reports whether the actor is an authenticated technician.
func (a Actor) IsTechnician() bool {
	return a.Role == models.RoleTechnician && a.ID != 0
}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%d", a.Role, a.ID)
}

func requireCustomer(actor Actor) error {
	if actor.ID == 0 {
		return unauthenticatedError("unauthenticated")
	}
	if !actor.IsCustomer() {
		return forbiddenError("a customer account is required")
	}
	return nil
}

func requireTechnician(actor Actor) error {
	if actor.ID == 0 {
		return unauthenticatedError("unauthenticated")
	}
	if !actor.IsTechnician() {
		return forbiddenError("a technician account is required")
	}
	return nil
}
