package api

import "github.com/gin-gonic/gin"

func RegisterConversationRoutes(api *gin.RouterGroup, handler *ConversationHandler, auth gin.HandlerFunc) {
	sessions := api.Group("/sessions", auth)
	{
		sessions.POST("/:id/messages", handler.SendMessage)
		sessions.GET("/:id/history", handler.GetHistory)
	}

	messages := api.Group("/messages", auth)
	{
		messages.GET("/:id", handler.GetMessage)
		messages.GET("/:id/children", handler.GetChildren)
		messages.GET("/:id/tree", handler.GetTree)
		messages.POST("/:id/regenerate", handler.Regenerate)
		messages.POST("/:id/branch", handler.Branch)
	}
}
