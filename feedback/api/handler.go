package api

import (
	"net/http"

	"llm-arena/backend/feedback/models"
	"llm-arena/backend/feedback/service"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type FeedbackHandler struct {
	service *service.Service
}

func NewFeedbackHandler(service *service.Service) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

type preferenceRequest struct {
	MessageID        *string `json:"message_id"`
	PreferredModelID *string `json:"preferred_model_id"`
	Category         *string `json:"category"`
}

// RecordPreference answers 202: ratings are updated in the background
func (h *FeedbackHandler) RecordPreference(c *gin.Context) {
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}

	pref, err := h.service.RecordPreference(c.Request.Context(), service.RecordInput{
		SessionID:        c.Param("id"),
		UserID:           middleware.CurrentUserID(c),
		MessageID:        req.MessageID,
		PreferredModelID: req.PreferredModelID,
		Category:         req.Category,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, pref)
}

func (h *FeedbackHandler) ListPreferences(c *gin.Context) {
	list, err := h.service.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	if list == nil {
		list = []models.Preference{}
	}
	c.JSON(http.StatusOK, gin.H{"preferences": list})
}
