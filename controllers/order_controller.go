package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tuinawx/booking-api/services"
	"github.com/tuinawx/booking-api/utils"
)

// bindOptionalJSON binds the request body into dst, accepting an empty body.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// CreateOrder handles POST /api/v1/orders - books a new order (customers only)
func CreateOrder(c *gin.Context) {
	var req services.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := orderService().Create(c.Request.Context(), currentActor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Respond(c, http.StatusCreated, "order created", order)
}

// ListOrders handles GET /api/v1/orders - lists the caller's orders, newest first
func ListOrders(c *gin.Context) {
	var req services.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	page, err := orderService().List(c.Request.Context(), currentActor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "ok", page)
}

// GetOrder handles GET /api/v1/orders/:id - order detail for its customer or technician
func GetOrder(c *gin.Context) {
	order, err := orderService().Detail(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "ok", order)
}

// UpdateOrder handles PATCH /api/v1/orders/:id - edits note or address of a pending order
func UpdateOrder(c *gin.Context) {
	var req services.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := orderService().Update(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "order updated", order)
}

// ConfirmOrder handles POST /api/v1/orders/:id/confirm
func ConfirmOrder(c *gin.Context) {
	order, err := orderService().Confirm(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "order confirmed", order)
}

// StartOrder handles POST /api/v1/orders/:id/start
func StartOrder(c *gin.Context) {
	var req services.StartOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	order, err := orderService().Start(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "service started", order)
}

// CompleteOrder handles POST /api/v1/orders/:id/complete
func CompleteOrder(c *gin.Context) {
	var req services.CompleteOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	order, err := orderService().Complete(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "service completed", order)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func CancelOrder(c *gin.Context) {
	var req services.CancelOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	order, err := orderService().Cancel(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "order cancelled", order)
}

// CommentOrder handles POST /api/v1/orders/:id/comment
func CommentOrder(c *gin.Context) {
	var req services.CommentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	comment, err := orderService().Comment(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "comment submitted", comment)
}

// PayOrder handles POST /api/v1/orders/:id/pay
func PayOrder(c *gin.Context) {
	var req services.PayOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	order, err := orderService().Pay(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "payment succeeded", order)
}

// RefundOrder handles POST /api/v1/orders/:id/refund
func RefundOrder(c *gin.Context) {
	var req services.RefundOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	order, err := orderService().Refund(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, "order refunded", order)
}

// ReorderOrder handles POST /api/v1/orders/:id/reorder
func ReorderOrder(c *gin.Context) {
	var req services.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := orderService().Reorder(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Respond(c, http.StatusCreated, "order created", order)
}
