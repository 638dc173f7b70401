package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with. Code mirrors the HTTP status.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success writes a 200 envelope
func Success(c *gin.Context, message string, data interface{}) {
	Respond(c, http.StatusOK, message, data)
}

// Fail writes an error envelope with no data and aborts the handler chain
func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

// Respond writes an envelope with the given status
func Respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Code: status, Message: message, Data: data})
}
