package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/invigil-api/internal/dto"
	"github.com/campusops/invigil-api/internal/middleware"
	"github.com/campusops/invigil-api/internal/models"
	"github.com/campusops/invigil-api/internal/service"
	appErrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/response"
)

// AllocationHandler wires HTTP endpoints to the allocation engine.
type AllocationHandler struct {
	allocations *service.AllocationService
	conflicts   *service.ConflictService
	policies    *service.PolicyService
}

// NewAllocationHandler creates a new handler.
func NewAllocationHandler(allocations *service.AllocationService, conflicts *service.ConflictService, policies *service.PolicyService) *AllocationHandler {
	return &AllocationHandler{allocations: allocations, conflicts: conflicts, policies: policies}
}

// Allocate runs the allocation pipeline and persists the outcome.
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req dto.AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid allocation payload"))
		return
	}

	result, err := h.allocations.Allocate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Preview runs the allocation pipeline without persisting anything.
func (h *AllocationHandler) Preview(c *gin.Context) {
	var req dto.AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid allocation payload"))
		return
	}

	result, err := h.allocations.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DetectConflicts re-derives the conflict set against persisted allocations.
func (h *AllocationHandler) DetectConflicts(c *gin.Context) {
	conflicts, err := h.allocations.DetectConflicts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// ListConflicts returns stored conflicts, optionally filtered by status.
func (h *AllocationHandler) ListConflicts(c *gin.Context) {
	var statuses []models.ConflictStatus
	for _, raw := range c.QueryArray("status") {
		statuses = append(statuses, models.ConflictStatus(raw))
	}

	conflicts, err := h.conflicts.List(c.Request.Context(), statuses)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// ResolveConflict marks a conflict resolved or ignored.
func (h *AllocationHandler) ResolveConflict(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict payload"))
		return
	}

	resolvedBy := ""
	if claims := middleware.CurrentClaims(c); claims != nil {
		resolvedBy = claims.AccountID
	}

	if err := h.conflicts.Resolve(c.Request.Context(), c.Param("id"), models.ConflictStatus(req.Status), resolvedBy); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetPolicy returns the active allocation policy.
func (h *AllocationHandler) GetPolicy(c *gin.Context) {
	policy, err := h.policies.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// UpdatePolicy replaces the active allocation policy.
func (h *AllocationHandler) UpdatePolicy(c *gin.Context) {
	var req dto.PolicyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid policy payload"))
		return
	}

	updatedBy := ""
	if claims := middleware.CurrentClaims(c); claims != nil {
		updatedBy = claims.AccountID
	}

	policy, err := h.policies.Update(c.Request.Context(), req, updatedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}
