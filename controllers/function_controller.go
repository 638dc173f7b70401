package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tuinawx/booking-api/services"
	"github.com/tuinawx/booking-api/utils"
)

// actionEnvelope carries the dispatch fields shared by every named action.
type actionEnvelope struct {
	Action  string `json:"action"`
	OrderID string `json:"orderId"`
}

// actionResult is what a named action produces on success.
type actionResult struct {
	message string
	data    interface{}
}

type orderAction func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error)

// decodeInto unmarshals the action body into req, mapping failures to a validation error.
func decodeInto(body []byte, req interface{}) error {
	if err := json.Unmarshal(body, req); err != nil {
		return &services.OrderError{Kind: services.ErrValidation, Message: "invalid request body: " + err.Error()}
	}
	return nil
}

var orderActions = map[string]orderAction{
	"create": func(ctx context.Context, svc *services.OrderService, actor services.Actor, _ string, body []byte) (actionResult, error) {
		var req services.CreateOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Create(ctx, actor, req)
		return actionResult{"order created", order}, err
	},
	"confirm": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, _ []byte) (actionResult, error) {
		order, err := svc.Confirm(ctx, actor, orderID)
		return actionResult{"order confirmed", order}, err
	},
	"start": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.StartOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Start(ctx, actor, orderID, req)
		return actionResult{"service started", order}, err
	},
	"complete": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.CompleteOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Complete(ctx, actor, orderID, req)
		return actionResult{"service completed", order}, err
	},
	"cancel": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.CancelOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Cancel(ctx, actor, orderID, req)
		return actionResult{"order cancelled", order}, err
	},
	"comment": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.CommentOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		comment, err := svc.Comment(ctx, actor, orderID, req)
		return actionResult{"comment submitted", comment}, err
	},
	"getList": func(ctx context.Context, svc *services.OrderService, actor services.Actor, _ string, body []byte) (actionResult, error) {
		var req services.ListOrdersRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		page, err := svc.List(ctx, actor, req)
		return actionResult{"ok", page}, err
	},
	"getDetail": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, _ []byte) (actionResult, error) {
		order, err := svc.Detail(ctx, actor, orderID)
		return actionResult{"ok", order}, err
	},
	"update": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.UpdateOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Update(ctx, actor, orderID, req)
		return actionResult{"order updated", order}, err
	},
	"pay": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.PayOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Pay(ctx, actor, orderID, req)
		return actionResult{"payment succeeded", order}, err
	},
	"refund": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.RefundOrderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Refund(ctx, actor, orderID, req)
		return actionResult{"order refunded", order}, err
	},
	"reorder": func(ctx context.Context, svc *services.OrderService, actor services.Actor, orderID string, body []byte) (actionResult, error) {
		var req services.ReorderRequest
		if err := decodeInto(body, &req); err != nil {
			return actionResult{}, err
		}
		order, err := svc.Reorder(ctx, actor, orderID, req)
		return actionResult{"order created", order}, err
	},
}

// OrderFunction handles POST /api/v1/functions/order - dispatches a named
// action such as {"action": "confirm", "orderId": "..."} to the order service.
func OrderFunction(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		utils.Fail(c, http.StatusBadRequest, "could not read request body")
		return
	}

	var envelope actionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	action, ok := orderActions[envelope.Action]
	if !ok {
		utils.Fail(c, http.StatusBadRequest, "unknown action: "+envelope.Action)
		return
	}

	result, err := action(c.Request.Context(), orderService(), currentActor(c), envelope.OrderID, body)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, result.message, result.data)
}
