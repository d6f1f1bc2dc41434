package api

import "github.com/gin-gonic/gin"

func RegisterFeedbackRoutes(api *gin.RouterGroup, handler *FeedbackHandler, auth gin.HandlerFunc) {
	group := api.Group("/sessions", auth)
	{
		group.POST("/:id/preferences", handler.RecordPreference)
		group.GET("/:id/preferences", handler.ListPreferences)
	}
}
