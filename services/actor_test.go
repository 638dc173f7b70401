package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuinawx/booking-api/models"
)

func TestRoleChecks(t *testing.T) {
	tests := []struct {
		name       string
		actor      Actor
		customer   error
		technician error
	}{
		{name: "customer", actor: Customer(7), technician: ErrForbidden},
		{name: "technician", actor: TechnicianActor(3), customer: ErrForbidden},
		{name: "anonymous", actor: Actor{}, customer: ErrUnauthenticated, technician: ErrUnauthenticated},
		{name: "role without id", actor: Actor{Role: models.RoleCustomer}, customer: ErrUnauthenticated, technician: ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := func(err, want error) {
				if want == nil {
					assert.NoError(t, err)
					return
				}
				assertKind(t, err, want)
			}
			check(requireCustomer(tt.actor), tt.customer)
			check(requireTechnician(tt.actor), tt.technician)
		})
	}
}
