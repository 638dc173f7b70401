package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tuinawx/booking-api/config"
	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/utils"
)

// ListNotificationsQuery filters the caller's inbox
type ListNotificationsQuery struct {
	UnreadOnly bool `form:"unreadOnly"`
	Page       int  `form:"page" binding:"omitempty,min=1"`
	PageSize   int  `form:"pageSize" binding:"omitempty,min=1,max=50"`
}

// ListNotifications handles GET /api/v1/notifications - lists the caller's inbox, newest first
func ListNotifications(c *gin.Context) {
	actor := currentActor(c)
	if actor.ID == 0 {
		utils.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var query ListNotificationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}
	if query.Page == 0 {
		query.Page = 1
	}
	if query.PageSize == 0 {
		query.PageSize = 20
	}

	db := config.GetDB().WithContext(c.Request.Context()).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND recipient_type = ?", actor.ID, actor.Role)
	if query.UnreadOnly {
		db = db.Where("read = ?", false)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	notifications := []models.Notification{}
	err := db.Order("created_at DESC").Order("id DESC").
		Offset((query.Page - 1) * query.PageSize).
		Limit(query.PageSize).
		Find(&notifications).Error
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Success(c, "ok", gin.H{
		"list":     notifications,
		"total":    total,
		"page":     query.Page,
		"pageSize": query.PageSize,
	})
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read
func MarkNotificationRead(c *gin.Context) {
	actor := currentActor(c)
	if actor.ID == 0 {
		utils.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())
	var notification models.Notification
	err := db.Where("id = ? AND recipient_id = ? AND recipient_type = ?", id, actor.ID, actor.Role).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Fail(c, http.StatusNotFound, "notification not found")
			return
		}
		respondError(c, err)
		return
	}

	if !notification.Read {
		if err := db.Model(&notification).Update("read", true).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	utils.Success(c, "notification marked as read", notification)
}
