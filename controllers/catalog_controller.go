package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tuinawx/booking-api/config"
	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/utils"
)

// ListTechniciansQuery filters the technician catalog
type ListTechniciansQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=available busy offline"`
}

// ListTechnicians handles GET /api/v1/technicians - available technicians first, best rated first
func ListTechnicians(c *gin.Context) {
	var query ListTechniciansQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	technicians := []models.Technician{}
	err := db.
		// One expression: gorm drops an OrderBy expression once plain columns are merged after it.
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN status = ? THEN 0 ELSE 1 END, rating DESC, id",
			Vars:               []interface{}{string(models.TechnicianAvailable)},
			WithoutParentheses: true,
		}}).
		Find(&technicians).Error
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Success(c, "ok", technicians)
}

// GetTechnician handles GET /api/v1/technicians/:id
func GetTechnician(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var technician models.Technician
	if err := config.GetDB().WithContext(c.Request.Context()).First(&technician, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Fail(c, http.StatusNotFound, "technician not found")
			return
		}
		respondError(c, err)
		return
	}

	utils.Success(c, "ok", technician)
}

// ListServices handles GET /api/v1/services - active catalog entries
func ListServices(c *gin.Context) {
	services := []models.Service{}
	err := config.GetDB().WithContext(c.Request.Context()).
		Where("active = ?", true).
		Order("price").
		Find(&services).Error
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Success(c, "ok", services)
}
