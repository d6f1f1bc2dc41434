package api

import (
	"llm-arena/backend/pkg/jwt"
	"llm-arena/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRatingRoutes(api *gin.RouterGroup, handler *RatingHandler, auth gin.HandlerFunc) {
	api.GET("/leaderboard", handler.GetLeaderboard)
	api.GET("/models/:id/rating", handler.GetModelRating)

	admin := api.Group("/admin/ratings", auth, middleware.RequireRole(jwt.RoleAdmin))
	{
		admin.POST("/recompute", handler.Recompute)
	}
}
