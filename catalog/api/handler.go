package api

import (
	"net/http"

	"llm-arena/backend/catalog/models"
	"llm-arena/backend/catalog/service"
	apperrors "llm-arena/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	service *service.CatalogService
}

func NewCatalogHandler(service *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListModels returns active models, optionally filtered by ?capability=
func (h *CatalogHandler) ListModels(c *gin.Context) {
	var (
		list []models.Model
		err  error
	)
	if capability := c.Query("capability"); capability != "" {
		list, err = h.service.ListByCapability(c.Request.Context(), capability)
	} else {
		list, err = h.service.List(c.Request.Context(), c.Query("include_inactive") != "true")
	}
	if err != nil {
		c.Error(err)
		return
	}
	if list == nil {
		list = []models.Model{}
	}
	c.JSON(http.StatusOK, gin.H{"models": list})
}

func (h *CatalogHandler) GetModel(c *gin.Context) {
	model, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func (h *CatalogHandler) RegisterModel(c *gin.Context) {
	var in service.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	model, err := h.service.Register(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, model)
}

type validationRequest struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

func (h *CatalogHandler) RecordValidation(c *gin.Context) {
	var req validationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	model, err := h.service.RecordValidation(c.Request.Context(), c.Param("id"), req.OK, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *CatalogHandler) SetActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	model, err := h.service.SetActive(c.Request.Context(), c.Param("id"), req.Active)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model)
}
