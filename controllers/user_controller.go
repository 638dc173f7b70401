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

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Nickname *string `json:"nickname" binding:"omitempty,max=50"`
	Phone    *string `json:"phone" binding:"omitempty,max=20"`
	Avatar   *string `json:"avatar" binding:"omitempty,max=500"`
	Gender   *int    `json:"gender" binding:"omitempty,oneof=0 1 2"`
}

// GetMyProfile handles GET /api/v1/users/me - gets current customer's profile
func GetMyProfile(c *gin.Context) {
	actor, ok := requireCustomerActor(c)
	if !ok {
		return
	}

	var user models.User
	if err := config.GetDB().WithContext(c.Request.Context()).First(&user, actor.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Fail(c, http.StatusNotFound, "user not found")
			return
		}
		respondError(c, err)
		return
	}

	utils.Success(c, "ok", user)
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current customer's profile
func UpdateMyProfile(c *gin.Context) {
	actor, ok := requireCustomerActor(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Nickname != nil {
		updates["nickname"] = *req.Nickname
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}
	if req.Gender != nil {
		updates["gender"] = *req.Gender
	}
	if len(updates) == 0 {
		utils.Fail(c, http.StatusBadRequest, "nothing to update")
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())
	var user models.User
	if err := db.First(&user, actor.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Fail(c, http.StatusNotFound, "user not found")
			return
		}
		respondError(c, err)
		return
	}

	if err := db.Model(&user).Updates(updates).Error; err != nil {
		respondError(c, err)
		return
	}

	utils.Success(c, "profile updated", user)
}
