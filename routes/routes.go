package routes

import (
	"product-importer/controllers"

	"github.com/gin-gonic/gin"
)

// Controllers groups the handlers mounted by RegisterRoutes.
type Controllers struct {
	Uploads  *controllers.UploadController
	Products *controllers.ProductController
	Webhooks *controllers.WebhookController
	Health   *controllers.HealthController

	// UploadMiddleware runs before the upload handler only.
	UploadMiddleware []gin.HandlerFunc
}

// RegisterRoutes sets up every API route.
func RegisterRoutes(r *gin.Engine, ctrl Controllers) {
	r.GET("/health", ctrl.Health.Health)

	api := r.Group("/api")

	uploads := api.Group("/uploads")
	uploads.POST("", append(ctrl.UploadMiddleware, ctrl.Uploads.Upload)...)
	uploads.GET("/template", ctrl.Uploads.Template)
	uploads.GET("/:task_id", ctrl.Uploads.Status)
	uploads.GET("/:task_id/stream", ctrl.Uploads.Stream)

	products := api.Group("/products")
	products.GET("", ctrl.Products.List)
	products.POST("", ctrl.Products.Create)
	products.DELETE("", ctrl.Products.DeleteAll)
	products.GET("/:id", ctrl.Products.Get)
	products.PUT("/:id", ctrl.Products.Update)
	products.DELETE("/:id", ctrl.Products.Delete)

	webhooks := api.Group("/webhooks")
	webhooks.GET("/events", ctrl.Webhooks.Events)
	webhooks.GET("", ctrl.Webhooks.List)
	webhooks.POST("", ctrl.Webhooks.Create)
	webhooks.GET("/:id", ctrl.Webhooks.Get)
	webhooks.PUT("/:id", ctrl.Webhooks.Update)
	webhooks.DELETE("/:id", ctrl.Webhooks.Delete)
	webhooks.POST("/:id/test", ctrl.Webhooks.Test)
}
