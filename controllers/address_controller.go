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

// AddressRequest represents the request body for creating or replacing an address
type AddressRequest struct {
	ContactName string   `json:"contactName" binding:"required,max=50"`
	Phone       string   `json:"phone" binding:"required,max=20"`
	Province    string   `json:"province" binding:"max=50"`
	City        string   `json:"city" binding:"max=50"`
	District    string   `json:"district" binding:"max=50"`
	Detail      string   `json:"detail" binding:"required,max=200"`
	Latitude    *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
	IsDefault   bool     `json:"isDefault"`
}

func (r AddressRequest) apply(address *models.Address) {
	address.ContactName = r.ContactName
	address.Phone = r.Phone
	address.Province = r.Province
	address.City = r.City
	address.District = r.District
	address.Detail = r.Detail
	address.Latitude = r.Latitude
	address.Longitude = r.Longitude
}

// clearDefaultAddress unsets the default flag on every other address of the user
func clearDefaultAddress(tx *gorm.DB, userID, keepID uint) error {
	return tx.Model(&models.Address{}).
		Where("user_id = ? AND id <> ? AND is_default = ?", userID, keepID, true).
		Update("is_default", false).Error
}

// ListAddresses handles GET /api/v1/addresses - default address first
func ListAddresses(c *gin.Context) {
	actor, ok := requireCustomerActor(c)
	if !ok {
		return
	}

	addresses := []models.Address{}
	err := config.GetDB().WithContext(c.Request.Context()).
		Where("user_id = ?", actor.ID).
		Order("is_default DESC").
		Order("updated_at DESC").
		Find(&addresses).Error
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Success(c, "ok", addresses)
}

// CreateAddress handles POST /api/v1/addresses - the first address becomes the default
func CreateAddress(c *gin.Context) {
	actor, ok := requireCustomerActor(c)
	if !ok {
		return
	}

	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	address := models.Address{UserID: actor.ID}
	req.apply(&address)

	err := config.GetDB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Address{}).Where("user_id = ?", actor.ID).Count(&count).Error; err != nil {
			return err
		}
		address.IsDefault = req.IsDefault || count == 0

		if err := tx.Create(&address).Error; err != nil {
			return err
		}
		if address.IsDefault {
			return clearDefaultAddress(tx, actor.ID, address.ID)
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Respond(c, http.StatusCreated, "address created", address)
}

// UpdateAddress handles PUT /api/v1/addresses/:id
func UpdateAddress(c *gin.Context) {
	actor, ok := requireCustomerActor(c)
	if !ok {
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var address models.Address
	err := config.GetDB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, actor.ID).First(&address).Error; err != nil {
			return err
		}
		req.apply(&address)
		if req.IsDefault {
			address.IsDefault = true
		}
		if err := tx.Save(&address).Error; err != nil {
			return err
		}
		if address.IsDefault {
			return clearDefaultAddress(tx, actor.ID, address.ID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Fail(c, http.StatusNotFound, "address not found")
			return
		}
		respondError(c, err)
		return
	}

	utils.Success(c, "address updated", address)
}

// DeleteAddress handles DELETE /api/v1/addresses/:id - orders keep their own copy
func DeleteAddress(c *gin.Context) {
	actor, ok := requireCustomerActor(c)
	if !ok {
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	result := config.GetDB().WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, actor.ID).
		Delete(&models.Address{})
	if result.Error != nil {
		respondError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		utils.Fail(c, http.StatusNotFound, "address not found")
		return
	}

	utils.Success(c, "address deleted", nil)
}

// SetDefaultAddress handles POST /api/v1/addresses/:id/default
func SetDefaultAddress(c *gin.Context) {
	actor, ok := requireCustomerActor(c)
	if !ok {
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var address models.Address
	err := config.GetDB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, actor.ID).First(&address).Error; err != nil {
			return err
		}
		if err := tx.Model(&address).Update("is_default", true).Error; err != nil {
			return err
		}
		return clearDefaultAddress(tx, actor.ID, address.ID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Fail(c, http.StatusNotFound, "address not found")
			return
		}
		respondError(c, err)
		return
	}

	utils.Success(c, "default address updated", address)
}
