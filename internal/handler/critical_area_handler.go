package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cyberguard-api/internal/dto"
	"github.com/noah-isme/cyberguard-api/internal/middleware"
	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/internal/service"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
	"github.com/noah-isme/cyberguard-api/pkg/export"
	"github.com/noah-isme/cyberguard-api/pkg/response"
)

type criticalAreaService interface {
	Analyze(ctx context.Context, mode service.GroupingMode) (*models.CriticalAreaAnalysis, bool, error)
}

type escalationService interface {
	EscalateArea(ctx context.Context, mode service.GroupingMode, locationKey string) (*models.EscalationResult, error)
	EscalateReports(ctx context.Context, reportIDs []string, location string) (*models.EscalationResult, error)
}

type exportService interface {
	CriticalAreas(ctx context.Context, mode service.GroupingMode, format export.Format) (*service.ExportFile, error)
}

type requestValidator interface {
	Validate(v interface{}) error
}

// CriticalAreaHandler serves hotspot analysis, escalation and exports.
type CriticalAreaHandler struct {
	areas     criticalAreaService
	escalator escalationService
	exports   exportService
	validator requestValidator
}

// NewCriticalAreaHandler constructs the handler.
func NewCriticalAreaHandler(areas criticalAreaService, escalator escalationService, exports exportService, validator requestValidator) *CriticalAreaHandler {
	return &CriticalAreaHandler{areas: areas, escalator: escalator, exports: exports, validator: validator}
}

// List godoc
// @Summary Critical areas
// @Description Location clusters of at least three reports, largest first. Member reports are included for officers and admins only.
// @Tags Critical Areas
// @Produce json
// @Param mode query string false "city_state (default) or city_type"
// @Success 200 {object} response.Envelope
// @Router /critical-areas [get]
func (h *CriticalAreaHandler) List(c *gin.Context) {
	mode, err := service.ParseGroupingMode(c.Query("mode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	analysis, hit, err := h.areas.Analyze(c.Request.Context(), mode)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := *analysis
	if !viewerFromContext(c).Role.Reviewer() {
		out.Areas = make([]models.CriticalArea, len(analysis.Areas))
		for i, area := range analysis.Areas {
			area.Reports = nil
			out.Areas[i] = area
		}
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, out, nil, middleware.ExtractMeta(c))
}

// Escalate godoc
// @Summary Escalate to cybercrime authorities
// @Description Escalate an area by locationKey or an explicit set of reportIds. A missing critical pattern is reported in the body, not as an error.
// @Tags Critical Areas
// @Accept json
// @Produce json
// @Param payload body dto.EscalateRequest true "Escalation target"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /critical-areas/escalate [post]
func (h *CriticalAreaHandler) Escalate(c *gin.Context) {
	var req dto.EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid escalation payload"))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		response.Error(c, err)
		return
	}

	var (
		result *models.EscalationResult
		err    error
	)
	if strings.TrimSpace(req.LocationKey) != "" {
		mode, parseErr := service.ParseGroupingMode(req.Mode)
		if parseErr != nil {
			response.Error(c, parseErr)
			return
		}
		middleware.SetAuditResource(c, req.LocationKey)
		result, err = h.escalator.EscalateArea(c.Request.Context(), mode, req.LocationKey)
	} else {
		middleware.SetAuditResource(c, strings.Join(req.ReportIDs, ","))
		result, err = h.escalator.EscalateReports(c.Request.Context(), req.ReportIDs, req.Location)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export critical areas
// @Tags Critical Areas
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param mode query string false "city_state (default) or city_type"
// @Param format query string false "csv (default), pdf or xlsx"
// @Success 200 {file} binary
// @Router /critical-areas/export [get]
func (h *CriticalAreaHandler) Export(c *gin.Context) {
	mode, err := service.ParseGroupingMode(c.Query("mode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error()))
		return
	}
	file, err := h.exports.CriticalAreas(c.Request.Context(), mode, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}
