package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusops/invigil-api/internal/service"
	appErrors "github.com/campusops/invigil-api/pkg/errors"
	"github.com/campusops/invigil-api/pkg/response"
)

// RosterHandler serves duty roster exports.
type RosterHandler struct {
	roster *service.RosterService
}

// NewRosterHandler creates a new handler.
func NewRosterHandler(roster *service.RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// Export streams the duty roster for one date as CSV or PDF.
func (h *RosterHandler) Export(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}

	format := c.DefaultQuery("format", service.RosterFormatCSV)
	payload, contentType, err := h.roster.Export(c.Request.Context(), date, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("duty-roster-%s.%s", raw, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
