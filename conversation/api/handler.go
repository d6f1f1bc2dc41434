package api

import (
	"io"
	"net/http"

	"llm-arena/backend/conversation/models"
	"llm-arena/backend/conversation/service"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	orchestrator *service.Orchestrator
}

func NewConversationHandler(orchestrator *service.Orchestrator) *ConversationHandler {
	return &ConversationHandler{orchestrator: orchestrator}
}

type sendMessageRequest struct {
	Content   string   `json:"content" binding:"required"`
	ParentIDs []string `json:"parent_ids"`
}

type regenerateRequest struct {
	ModelID string `json:"model_id"`
}

type branchRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage starts a turn. The response is an event stream unless
// ?stream=false, in which case it blocks until every participant finished.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	turn, err := h.orchestrator.StreamTurn(c.Request.Context(), c.Param("id"), req.Content, req.ParentIDs)
	if err != nil {
		c.Error(err)
		return
	}
	h.respond(c, turn)
}

func (h *ConversationHandler) Regenerate(c *gin.Context) {
	var req regenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
			return
		}
	}
	turn, err := h.orchestrator.RegenerateTurn(c.Request.Context(), c.Param("id"), req.ModelID)
	if err != nil {
		c.Error(err)
		return
	}
	h.respond(c, turn)
}

func (h *ConversationHandler) Branch(c *gin.Context) {
	var req branchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	turn, err := h.orchestrator.BranchTurn(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		c.Error(err)
		return
	}
	h.respond(c, turn)
}

func (h *ConversationHandler) respond(c *gin.Context, turn *service.Turn) {
	if c.Query("stream") == "false" {
		h.collect(c, turn)
		return
	}

	log := logger.FromGin(c)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("turn", turn)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-turn.Events
		if !ok {
			c.SSEvent("done", gin.H{})
			return false
		}
		c.SSEvent(string(ev.Kind), ev)
		return true
	})
	log.Debug("Event stream closed", "responses", len(turn.Responses))
}

// collect drains the turn and answers with the final state of every response
func (h *ConversationHandler) collect(c *gin.Context, turn *service.Turn) {
	for range turn.Events {
	}
	if c.Request.Context().Err() != nil {
		return
	}

	responses := make([]models.Message, 0, len(turn.Responses))
	for _, r := range turn.Responses {
		msg, err := h.orchestrator.GetMessage(c.Request.Context(), r.ID)
		if err != nil {
			c.Error(err)
			return
		}
		responses = append(responses, *msg)
	}
	c.JSON(http.StatusOK, gin.H{
		"user_message": turn.UserMessage,
		"responses":    responses,
	})
}

func (h *ConversationHandler) GetHistory(c *gin.Context) {
	history, err := h.orchestrator.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (h *ConversationHandler) GetMessage(c *gin.Context) {
	msg, err := h.orchestrator.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *ConversationHandler) GetChildren(c *gin.Context) {
	children, err := h.orchestrator.GetChildren(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"children": children})
}

func (h *ConversationHandler) GetTree(c *gin.Context) {
	tree, err := h.orchestrator.GetTree(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tree)
}
