package api

import (
	"net/http"
	"strconv"

	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/rating/models"
	"llm-arena/backend/rating/service"

	"github.com/gin-gonic/gin"
)

type RatingHandler struct {
	engine      *service.Engine
	leaderboard *service.Leaderboard
	recomputer  *service.Recomputer
}

func NewRatingHandler(engine *service.Engine, leaderboard *service.Leaderboard, recomputer *service.Recomputer) *RatingHandler {
	return &RatingHandler{engine: engine, leaderboard: leaderboard, recomputer: recomputer}
}

func (h *RatingHandler) GetLeaderboard(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultLeaderboardLimit)))
	if err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "limit must be an integer"))
		return
	}
	category := c.DefaultQuery("category", models.CategoryOverall)
	period := models.Period(c.DefaultQuery("period", string(models.PeriodAllTime)))

	entries, err := h.leaderboard.TopN(c.Request.Context(), category, period, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"period":   period,
		"entries":  entries,
	})
}

func (h *RatingHandler) GetModelRating(c *gin.Context) {
	period := models.Period(c.DefaultQuery("period", string(models.PeriodAllTime)))
	if !period.Valid() {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "unknown period"))
		return
	}
	rec, err := h.engine.GetRating(c.Request.Context(), c.Param("id"), c.Query("category"), period)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rating":   rec,
		"win_rate": rec.WinRate(),
	})
}

type recomputeRequest struct {
	Period models.Period `json:"period" binding:"required"`
}

func (h *RatingHandler) Recompute(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	n, err := h.recomputer.RecomputeAllRatings(c.Request.Context(), req.Period)
	if err != nil {
		c.Error(err)
		return
	}
	h.leaderboard.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"period": req.Period, "records": n})
}
