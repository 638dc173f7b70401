// Package routes wires HTTP paths to controllers.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/tuinawx/booking-api/controllers"
	"github.com/tuinawx/booking-api/middleware"
	"github.com/tuinawx/booking-api/models"
)

// Register mounts the public catalog and every authenticated route under /api/v1.
// auth must store the caller on the context (see middleware.EnsureValidToken).
func Register(v1 *gin.RouterGroup, auth gin.HandlerFunc) {
	v1.GET("/technicians", controllers.ListTechnicians)
	v1.GET("/technicians/:id", controllers.GetTechnician)
	v1.GET("/services", controllers.ListServices)
	v1.GET("/uploads/*key", controllers.GetUploadedImage)

	protected := v1.Group("", auth)
	{
		protected.POST("/functions/order", controllers.OrderFunction)

		orders := protected.Group("/orders")
		{
			orders.GET("", controllers.ListOrders)
			orders.GET("/:id", controllers.GetOrder)

			customer := orders.Group("", middleware.RequireRole(models.RoleCustomer))
			customer.POST("", controllers.CreateOrder)
			customer.PATCH("/:id", controllers.UpdateOrder)
			customer.POST("/:id/cancel", controllers.CancelOrder)
			customer.POST("/:id/comment", controllers.CommentOrder)
			customer.POST("/:id/pay", controllers.PayOrder)
			customer.POST("/:id/refund", controllers.RefundOrder)
			customer.POST("/:id/reorder", controllers.ReorderOrder)

			technician := orders.Group("", middleware.RequireRole(models.RoleTechnician))
			technician.POST("/:id/confirm", controllers.ConfirmOrder)
			technician.POST("/:id/start", controllers.StartOrder)
			technician.POST("/:id/complete", controllers.CompleteOrder)
			technician.POST("/:id/photos", controllers.UploadOrderPhoto)
		}

		protected.GET("/users/me", controllers.GetMyProfile)
		protected.PUT("/users/me", controllers.UpdateMyProfile)

		addresses := protected.Group("/addresses")
		{
			addresses.GET("", controllers.ListAddresses)
			addresses.POST("", controllers.CreateAddress)
			addresses.PUT("/:id", controllers.UpdateAddress)
			addresses.DELETE("/:id", controllers.DeleteAddress)
			addresses.POST("/:id/default", controllers.SetDefaultAddress)
		}

		protected.GET("/notifications", controllers.ListNotifications)
		protected.POST("/notifications/:id/read", controllers.MarkNotificationRead)
	}
}
