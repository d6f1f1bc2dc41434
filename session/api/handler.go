package api

import (
	"net/http"
	"strconv"

	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/middleware"
	"llm-arena/backend/session/models"
	"llm-arena/backend/session/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	gateway *service.Gateway
}

func NewSessionHandler(gateway *service.Gateway) *SessionHandler {
	return &SessionHandler{gateway: gateway}
}

type createSessionRequest struct {
	Mode       models.Mode `json:"mode" binding:"required"`
	ModelAID   string      `json:"model_a_id"`
	ModelBID   string      `json:"model_b_id"`
	Title      string      `json:"title"`
	Capability string      `json:"capability"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}

	session, err := h.gateway.Create(c.Request.Context(), service.CreateInput{
		UserID:     middleware.CurrentUserID(c),
		Mode:       req.Mode,
		ModelAID:   req.ModelAID,
		ModelBID:   req.ModelBID,
		Title:      req.Title,
		Capability: req.Capability,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.gateway.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.gateway.ListByUser(c.Request.Context(), middleware.CurrentUserID(c), limit)
	if err != nil {
		c.Error(err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}
