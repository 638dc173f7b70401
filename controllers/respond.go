package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tuinawx/booking-api/middleware"
	"github.com/tuinawx/booking-api/services"
	"github.com/tuinawx/booking-api/utils"
)

const internalErrorMessage = "internal server error"

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Internal errors are logged and
// reduced to a generic message.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		utils.Fail(c, status, internalErrorMessage)
		return
	}
	utils.Fail(c, status, err.Error())
}

// currentActor returns the authenticated caller, or the zero Actor which
// every service rejects as unauthenticated.
func currentActor(c *gin.Context) services.Actor {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return services.Actor{}
	}
	return actor
}

// requireCustomerActor writes a 401 for anonymous callers, a 403 for other
// roles, and returns false unless the caller is a customer.
func requireCustomerActor(c *gin.Context) (services.Actor, bool) {
	actor := currentActor(c)
	switch {
	case actor.ID == 0:
		utils.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return actor, false
	case !actor.IsCustomer():
		utils.Fail(c, http.StatusForbidden, "a customer account is required")
		return actor, false
	}
	return actor, true
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		utils.Fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(value), true
}

func orderService() *services.OrderService {
	return services.GetOrderService()
}
