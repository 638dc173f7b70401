package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/services"
)

// orderRouter mounts every REST order route for one caller.
func orderRouter(actor services.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	orders := router.Group("/orders", withActor(actor))
	orders.POST("", CreateOrder)
	orders.GET("", ListOrders)
	orders.GET("/:id", GetOrder)
	orders.PATCH("/:id", UpdateOrder)
	orders.POST("/:id/confirm", ConfirmOrder)
	orders.POST("/:id/start", StartOrder)
	orders.POST("/:id/complete", CompleteOrder)
	orders.POST("/:id/cancel", CancelOrder)
	orders.POST("/:id/comment", CommentOrder)
	orders.POST("/:id/pay", PayOrder)
	orders.POST("/:id/refund", RefundOrder)
	orders.POST("/:id/reorder", ReorderOrder)
	return router
}

func TestCreateOrder(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name           string
		actor          services.Actor
		body           interface{}
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:           "customer books an order",
			actor:          env.customerActor(),
			body:           env.createOrderBody(14),
			expectedStatus: http.StatusCreated,
			expectedMsg:    "order created",
		},
		{
			name:           "malformed body",
			actor:          env.customerActor(),
			body:           `{"technicianId": "one"`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "appointment in the past",
			actor:          env.customerActor(),
			body:           env.createOrderBody(8),
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "appointment time must be in the future",
		},
		{
			name:           "technician cannot book",
			actor:          env.technicianActor(),
			body:           env.createOrderBody(18),
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "anonymous caller",
			actor:          services.Actor{},
			body:           env.createOrderBody(18),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doJSON(t, orderRouter(tt.actor), http.MethodPost, "/orders", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedStatus, resp.Code)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, resp.Message)
			}
			if tt.expectedStatus != http.StatusCreated {
				assert.Equal(t, "null", string(resp.Data))
			}
		})
	}

	var orders []models.Order
	require.NoError(t, env.db.Find(&orders).Error)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(20000), orders[0].TotalPrice)
	assert.Equal(t, env.customer.ID, orders[0].UserID)
}

func TestCreateOrder_SlotTaken(t *testing.T) {
	env := setupTestEnv(t)
	id := env.seedOrder(t, 14)
	_, err := services.GetOrderService().Confirm(context.Background(), env.technicianActor(), id)
	require.NoError(t, err)

	body := env.createOrderBody(14)
	body["appointmentTime"] = "2026-03-10T15:20:00Z"
	w, resp := doJSON(t, orderRouter(env.customerActor()), http.MethodPost, "/orders", body)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "the technician already has an appointment in this time slot", resp.Message)
}

func TestOrderWorkflowOverREST(t *testing.T) {
	env := setupTestEnv(t)
	customer := orderRouter(env.customerActor())
	technician := orderRouter(env.technicianActor())

	w, resp := doJSON(t, customer, http.MethodPost, "/orders", env.createOrderBody(14))
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Order
	decodeData(t, resp, &created)
	assert.Equal(t, models.OrderStatusPending, created.Status)
	assert.Len(t, created.OrderNo, 20)
	path := "/orders/" + created.ID

	w, resp = doJSON(t, customer, http.MethodPatch, path, map[string]interface{}{"note": "second floor"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order updated", resp.Message)

	w, resp = doJSON(t, customer, http.MethodPost, path+"/pay", map[string]interface{}{"paymentMethod": "pm_card_visa"})
	require.Equal(t, http.StatusOK, w.Code)
	var paid models.Order
	decodeData(t, resp, &paid)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)

	w, resp = doJSON(t, technician, http.MethodPost, path+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order confirmed", resp.Message)

	w, resp = doJSON(t, technician, http.MethodPost, path+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "order status confirmed does not allow confirm", resp.Message)

	w, _ = doJSON(t, technician, http.MethodPost, path+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, technician, http.MethodPost, path+"/complete", map[string]interface{}{"technicianNote": "all good"})
	require.Equal(t, http.StatusOK, w.Code)
	var completed models.Order
	decodeData(t, resp, &completed)
	assert.Equal(t, models.OrderStatusCompleted, completed.Status)
	assert.Equal(t, "all good", completed.TechnicianNote)

	w, resp = doJSON(t, customer, http.MethodPost, path+"/comment", map[string]interface{}{"rating": 5, "content": "great"})
	require.Equal(t, http.StatusOK, w.Code)
	var comment models.OrderComment
	decodeData(t, resp, &comment)
	assert.Equal(t, 5, comment.Rating)

	w, resp = doJSON(t, customer, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail models.Order
	decodeData(t, resp, &detail)
	require.NotNil(t, detail.Comment)
	assert.Equal(t, "great", detail.Comment.Content)
	assert.Equal(t, "second floor", detail.Note)

	w, resp = doJSON(t, customer, http.MethodPost, path+"/reorder", map[string]interface{}{"appointmentTime": "2026-03-11T10:00:00Z"})
	require.Equal(t, http.StatusCreated, w.Code)
	var reordered models.Order
	decodeData(t, resp, &reordered)
	require.NotNil(t, reordered.OriginalOrderID)
	assert.Equal(t, created.ID, *reordered.OriginalOrderID)
}

func TestCancelOrder_PaidOrderIsRefunded(t *testing.T) {
	env := setupTestEnv(t)
	router := orderRouter(env.customerActor())
	id := env.seedOrder(t, 14)

	w, _ := doJSON(t, router, http.MethodPost, "/orders/"+id+"/pay", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := doJSON(t, router, http.MethodPost, "/orders/"+id+"/cancel", map[string]interface{}{"reason": "sick"})
	require.Equal(t, http.StatusOK, w.Code)
	var order models.Order
	decodeData(t, resp, &order)
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
	assert.Equal(t, models.PaymentStatusRefunded, order.PaymentStatus)
	assert.Len(t, env.payments.Refunds(), 1)

	w, resp = doJSON(t, router, http.MethodPost, "/orders/"+id+"/refund", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "only cancelled orders can be refunded", resp.Message)
}

func TestGetOrder_Access(t *testing.T) {
	env := setupTestEnv(t)
	id := env.seedOrder(t, 14)

	tests := []struct {
		name           string
		actor          services.Actor
		path           string
		expectedStatus int
	}{
		{name: "owner", actor: env.customerActor(), path: "/orders/" + id, expectedStatus: http.StatusOK},
		{name: "assigned technician", actor: env.technicianActor(), path: "/orders/" + id, expectedStatus: http.StatusOK},
		{name: "another customer", actor: services.Customer(env.stranger.ID), path: "/orders/" + id, expectedStatus: http.StatusForbidden},
		{name: "unknown order", actor: env.customerActor(), path: "/orders/unknown", expectedStatus: http.StatusNotFound},
		{name: "anonymous", actor: services.Actor{}, path: "/orders/" + id, expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doJSON(t, orderRouter(tt.actor), http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedStatus, resp.Code)
		})
	}
}

func TestListOrders(t *testing.T) {
	env := setupTestEnv(t)
	env.seedOrder(t, 11)
	env.seedOrder(t, 14)
	env.seedOrder(t, 18)

	w, resp := doJSON(t, orderRouter(env.customerActor()), http.MethodGet, "/orders?page=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page services.OrderPage
	decodeData(t, resp, &page)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.List, 2)
	assert.Equal(t, 2, page.PageSize)

	w, resp = doJSON(t, orderRouter(env.customerActor()), http.MethodGet, "/orders?status=confirmed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, resp, &page)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.List)

	w, _ = doJSON(t, orderRouter(env.customerActor()), http.MethodGet, "/orders?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, orderRouter(env.customerActor()), http.MethodGet, "/orders?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = doJSON(t, orderRouter(services.Customer(env.stranger.ID)), http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, resp, &page)
	assert.Zero(t, page.Total)
}

func TestStartOrder_RejectsMalformedBody(t *testing.T) {
	env := setupTestEnv(t)
	id := env.seedOrder(t, 14)

	w, _ := doJSON(t, orderRouter(env.technicianActor()), http.MethodPost, "/orders/"+id+"/start", `{"actualStartTime": 12}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommentOrder_Validation(t *testing.T) {
	env := setupTestEnv(t)
	id := env.seedOrder(t, 14)
	router := orderRouter(env.customerActor())

	w, resp := doJSON(t, router, http.MethodPost, "/orders/"+id+"/comment", map[string]interface{}{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "rating must be between 1 and 5", resp.Message)

	w, resp = doJSON(t, router, http.MethodPost, "/orders/"+id+"/comment", map[string]interface{}{"rating": 4})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "only completed orders can be reviewed", resp.Message)
}
