package api

import (
	"llm-arena/backend/pkg/jwt"
	"llm-arena/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterCatalogRoutes mounts the model registry under /models. Reads are
// public; mutations require an admin token.
func RegisterCatalogRoutes(api *gin.RouterGroup, handler *CatalogHandler, auth gin.HandlerFunc) {
	group := api.Group("/models")
	{
		group.GET("", handler.ListModels)
		group.GET("/:id", handler.GetModel)
	}

	admin := group.Group("", auth, middleware.RequireRole(jwt.RoleAdmin))
	{
		admin.POST("", handler.RegisterModel)
		admin.POST("/:id/validation", handler.RecordValidation)
		admin.PUT("/:id/active", handler.SetActive)
	}
}
