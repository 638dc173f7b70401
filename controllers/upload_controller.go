package controllers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/tuinawx/booking-api/utils"
)

// UploadOrderPhoto handles POST /api/v1/orders/:id/photos - stores a service
// photo for an in-progress order (assigned technician only)
func UploadOrderPhoto(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.Fail(c, http.StatusBadRequest, "image file is required")
		return
	}

	key, url, err := orderService().UploadPhoto(c.Request.Context(), currentActor(c), c.Param("id"), fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Respond(c, http.StatusCreated, "photo uploaded", gin.H{
		"key": key,
		"url": url,
	})
}

// GetUploadedImage handles GET /api/v1/uploads/*key - serves photos kept on local storage
func GetUploadedImage(c *gin.Context) {
	key := c.Param("key")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}

	filePath, err := utils.ResolveUploadPath(utils.UploadDir, key)
	if err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid filename")
		return
	}

	contentType := utils.ImageContentType(filePath)
	if contentType == "" {
		utils.Fail(c, http.StatusBadRequest, "only png and jpeg images are served")
		return
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		utils.Fail(c, http.StatusNotFound, "image not found")
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, max-age=86400")
	c.File(filePath)
}
