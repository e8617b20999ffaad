package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusops/invigil-api/internal/dto"
	"github.com/campusops/invigil-api/internal/middleware"
	"github.com/campusops/invigil-api/internal/models"
	"github.com/campusops/invigil-api/internal/service"
	appErrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/response"
)

// LifecycleHandler wires HTTP endpoints to duty lifecycle operations.
type LifecycleHandler struct {
	lifecycle *service.LifecycleService
}

// NewLifecycleHandler creates a new handler.
func NewLifecycleHandler(lifecycle *service.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle}
}

// List returns duty allocations filtered by query parameters. Faculty-role
// callers only see their own duties.
func (h *LifecycleHandler) List(c *gin.Context) {
	filter := models.AllocationFilter{
		FacultyID:  c.Query("facultyId"),
		ExamID:     c.Query("examId"),
		Campus:     c.Query("campus"),
		Department: c.Query("department"),
	}
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		filter.Date = &date
	}
	for _, raw := range c.QueryArray("status") {
		filter.Statuses = append(filter.Statuses, models.AllocationStatus(raw))
	}

	if claims := middleware.CurrentClaims(c); claims != nil && claims.Role == models.RoleFaculty {
		if claims.FacultyID == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account has no linked faculty record"))
			return
		}
		filter.FacultyID = *claims.FacultyID
	}

	allocations, err := h.lifecycle.ListAllocations(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, allocations, nil)
}

// Acknowledge records the assignee's confirm/decline decision.
func (h *LifecycleHandler) Acknowledge(c *gin.Context) {
	var req dto.AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid acknowledgment payload"))
		return
	}

	allocation, err := h.lifecycle.Acknowledge(c.Request.Context(), c.Param("id"), callerFacultyID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, allocation, nil)
}

// ReportLiveStatus records a presence report inside the pre-exam window.
func (h *LifecycleHandler) ReportLiveStatus(c *gin.Context) {
	var req dto.LiveStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid live status payload"))
		return
	}

	allocation, err := h.lifecycle.ReportLiveStatus(c.Request.Context(), c.Param("id"), callerFacultyID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, allocation, nil)
}

// ListReserves returns the reserve candidates of an allocation.
func (h *LifecycleHandler) ListReserves(c *gin.Context) {
	reserves, err := h.lifecycle.ListReserves(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reserves, nil)
}

// ActivateReserve replaces the primary assignee with a reserve.
func (h *LifecycleHandler) ActivateReserve(c *gin.Context) {
	var req dto.ActivateReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reserve activation payload"))
		return
	}

	replacement, err := h.lifecycle.ActivateReserve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, replacement)
}

// Cancel removes a duty from the schedule.
func (h *LifecycleHandler) Cancel(c *gin.Context) {
	if err := h.lifecycle.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// callerFacultyID returns the faculty record linked to the caller. Admin and
// coordinator accounts act on behalf of any faculty member.
func callerFacultyID(c *gin.Context) string {
	claims := middleware.CurrentClaims(c)
	if claims == nil || claims.Role != models.RoleFaculty {
		return ""
	}
	if claims.FacultyID == nil {
		return ""
	}
	return *claims.FacultyID
}
