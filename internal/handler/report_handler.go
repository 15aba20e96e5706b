package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cyberguard-api/internal/dto"
	"github.com/noah-isme/cyberguard-api/internal/middleware"
	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/internal/service"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
	"github.com/noah-isme/cyberguard-api/pkg/response"
)

type reportService interface {
	Create(ctx context.Context, viewer service.Viewer, req dto.CreateReportRequest) (*models.Report, error)
	Get(ctx context.Context, viewer service.Viewer, id string) (*models.Report, error)
	List(ctx context.Context, viewer service.Viewer, query dto.ListReportsQuery) ([]models.Report, *models.Pagination, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateReportStatusRequest) (*models.Report, bool, error)
	Stats(ctx context.Context) (*models.ReportStats, error)
	MapMarkers(ctx context.Context) ([]models.MapMarker, int, error)
}

// ReportHandler exposes incident report endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Create godoc
// @Summary Submit a cyberbullying report
// @Description Authenticated callers own the report. Unauthenticated callers may only submit anonymously.
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.CreateReportRequest true "Report"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var req dto.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report payload"))
		return
	}
	viewer := viewerFromContext(c)
	if viewer.UserID == "" && !req.IsAnonymous {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "sign in or submit anonymously"))
		return
	}

	report, err := h.service.Create(c.Request.Context(), viewer, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, report.ID)
	response.Created(c, report)
}

// List godoc
// @Summary List reports
// @Description Users see their own reports; officers and admins see all.
// @Tags Reports
// @Produce json
// @Param status query string false "pending|reported|resolved"
// @Param severity query string false "low|medium|high|critical"
// @Param type query string false "Bullying type"
// @Param city query string false "City"
// @Param state query string false "State"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	var query dto.ListReportsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	reports, pagination, err := h.service.List(c.Request.Context(), viewerFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, toPagination(pagination))
}

// Get godoc
// @Summary Get report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.service.Get(c.Request.Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// UpdateStatus godoc
// @Summary Advance report status
// @Description Status only moves forward: pending, reported, resolved.
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.UpdateReportStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reports/{id}/status [patch]
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateReportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	report, changed, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StatusChangeResponse{Report: *report, Changed: changed}, nil)
}

// Stats godoc
// @Summary Report statistics
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/stats [get]
func (h *ReportHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Map godoc
// @Summary Map markers
// @Description Reports with valid coordinates. meta.skipped counts the rest.
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/map [get]
func (h *ReportHandler) Map(c *gin.Context) {
	markers, skipped, err := h.service.MapMarkers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "skipped", skipped)
	response.JSON(c, http.StatusOK, markers, nil, middleware.ExtractMeta(c))
}
