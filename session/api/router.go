package api

import "github.com/gin-gonic/gin"

func RegisterSessionRoutes(api *gin.RouterGroup, handler *SessionHandler, auth gin.HandlerFunc) {
	group := api.Group("/sessions", auth)
	{
		group.POST("", handler.CreateSession)
		group.GET("", handler.ListSessions)
		group.GET("/:id", handler.GetSession)
	}
}
