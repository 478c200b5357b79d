package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/livechat-service/internal/api/dto"
	"github.com/unifiedui/livechat-service/internal/api/middleware"
	corebusiness "github.com/unifiedui/livechat-service/internal/core/business"
	"github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
	"github.com/unifiedui/livechat-service/internal/services/business"
)

const maxBusinessIDLength = 64

// BusinessesHandler manages business contexts.
type BusinessesHandler struct {
	service business.Service
}

// NewBusinessesHandler creates a new BusinessesHandler.
func NewBusinessesHandler(service business.Service) *BusinessesHandler {
	return &BusinessesHandler{service: service}
}

// ListBusinesses handles GET /businesses
// @Summary List business contexts
// @Tags Businesses
// @Produce json
// @Success 200 {object} dto.ListBusinessContextsResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/chat/businesses [get]
func (h *BusinessesHandler) ListBusinesses(c *gin.Context) {
	businesses, err := h.service.List(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to list business contexts", err))
		return
	}
	if businesses == nil {
		businesses = []models.BusinessContext{}
	}

	c.JSON(http.StatusOK, dto.ListBusinessContextsResponse{
		Businesses: businesses,
		Total:      len(businesses),
	})
}

// GetBusiness handles GET /businesses/{businessId}
// @Summary Get a business context
// @Tags Businesses
// @Produce json
// @Param businessId path string true "Business context ID"
// @Success 200 {object} models.BusinessContext
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/chat/businesses/{businessId} [get]
func (h *BusinessesHandler) GetBusiness(c *gin.Context) {
	id := c.Param("businessId")

	bc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if stderrors.Is(err, corebusiness.ErrNotConfigured) {
			middleware.HandleError(c, errors.NewNotFoundError("business context", id))
			return
		}
		middleware.HandleError(c, errors.NewInternalError("failed to get business context", err))
		return
	}

	c.JSON(http.StatusOK, bc)
}

// SaveBusiness handles PUT /businesses/{businessId}
// @Summary Create or replace a business context
// @Tags Businesses
// @Accept json
// @Produce json
// @Param businessId path string true "Business context ID"
// @Param request body dto.SaveBusinessContextRequest true "Business context"
// @Success 200 {object} models.BusinessContext
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/chat/businesses/{businessId} [put]
func (h *BusinessesHandler) SaveBusiness(c *gin.Context) {
	id := c.Param("businessId")
	if len(id) > maxBusinessIDLength {
		middleware.HandleError(c, errors.NewValidationError("business id is too long", id))
		return
	}

	var req dto.SaveBusinessContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	bc := req.ToModel(id)
	if err := h.service.Save(c.Request.Context(), bc); err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to save business context", err))
		return
	}

	c.JSON(http.StatusOK, bc)
}

// DeleteBusiness handles DELETE /businesses/{businessId}
// @Summary Delete a business context
// @Description Live sessions keep running; new joins for this business are rejected
// @Tags Businesses
// @Param businessId path string true "Business context ID"
// @Success 204 "Deleted"
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/chat/businesses/{businessId} [delete]
func (h *BusinessesHandler) DeleteBusiness(c *gin.Context) {
	id := c.Param("businessId")

	deleted, err := h.service.Delete(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to delete business context", err))
		return
	}
	if !deleted {
		middleware.HandleError(c, errors.NewNotFoundError("business context", id))
		return
	}

	c.Status(http.StatusNoContent)
}
