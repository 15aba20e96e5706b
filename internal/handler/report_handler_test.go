package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cyberguard-api/internal/dto"
	"github.com/noah-isme/cyberguard-api/internal/middleware"
	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/internal/service"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

type fakeReportService struct {
	viewer    service.Viewer
	createReq dto.CreateReportRequest
	query     dto.ListReportsQuery
	statusReq dto.UpdateReportStatusRequest
	changed   bool
	skipped   int
	err       error
}

func (f *fakeReportService) Create(_ context.Context, viewer service.Viewer, req dto.CreateReportRequest) (*models.Report, error) {
	f.viewer, f.createReq = viewer, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Report{ID: "r-new", Status: models.ReportStatusPending, IsAnonymous: req.IsAnonymous}, nil
}

func (f *fakeReportService) Get(_ context.Context, viewer service.Viewer, id string) (*models.Report, error) {
	f.viewer = viewer
	if f.err != nil {
		return nil, f.err
	}
	return &models.Report{ID: id}, nil
}

func (f *fakeReportService) List(_ context.Context, viewer service.Viewer, query dto.ListReportsQuery) ([]models.Report, *models.Pagination, error) {
	f.viewer, f.query = viewer, query
	return []models.Report{{ID: "r1"}}, &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11}, f.err
}

func (f *fakeReportService) UpdateStatus(_ context.Context, id string, req dto.UpdateReportStatusRequest) (*models.Report, bool, error) {
	f.statusReq = req
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.Report{ID: id, Status: models.ReportStatus(req.Status)}, f.changed, nil
}

func (f *fakeReportService) Stats(context.Context) (*models.ReportStats, error) {
	return &models.ReportStats{Total: 4, Pending: 4}, f.err
}

func (f *fakeReportService) MapMarkers(context.Context) ([]models.MapMarker, int, error) {
	return []models.MapMarker{{ReportID: "r1"}}, f.skipped, f.err
}

func validReportBody(anonymous bool) map[string]interface{} {
	return map[string]interface{}{
		"name":         "Asha",
		"location":     map[string]string{"city": "Mumbai", "state": "Maharashtra"},
		"bullyingType": "Harassment",
		"isAnonymous":  anonymous,
	}
}

func TestReportHandlerCreate(t *testing.T) {
	svc := &fakeReportService{}
	h := NewReportHandler(svc)

	c, rec := newContext(http.MethodPost, "/reports", validReportBody(false), userClaims)
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.Viewer{UserID: "user-1", Role: models.RoleUser}, svc.viewer)
	assert.Equal(t, "Mumbai", svc.createReq.Location.City)
	assert.Equal(t, "r-new", c.GetString("audit_resource_id"))
}

func TestReportHandlerCreateUnauthenticated(t *testing.T) {
	svc := &fakeReportService{}
	h := NewReportHandler(svc)

	c, rec := newContext(http.MethodPost, "/reports", validReportBody(false), nil)
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newContext(http.MethodPost, "/reports", validReportBody(true), nil)
	h.Create(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.Viewer{}, svc.viewer)
}

func TestReportHandlerListPagination(t *testing.T) {
	svc := &fakeReportService{}
	h := NewReportHandler(svc)

	c, rec := newContext(http.MethodGet, "/reports?status=pending&city=Mumbai&page=2&page_size=10", nil, officerClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 11, env.Pagination.TotalCount)
	assert.Equal(t, "pending", svc.query.Status)
	assert.Equal(t, "Mumbai", svc.query.City)
	assert.Equal(t, 2, svc.query.Page)
}

func TestReportHandlerGetNotFound(t *testing.T) {
	h := NewReportHandler(&fakeReportService{err: appErrors.Clone(appErrors.ErrNotFound, "report not found")})
	c, rec := newContext(http.MethodGet, "/reports/missing", nil, userClaims)
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportHandlerUpdateStatus(t *testing.T) {
	svc := &fakeReportService{changed: true}
	h := NewReportHandler(svc)

	c, rec := newContext(http.MethodPatch, "/reports/r1/status", map[string]string{"status": "reported"}, officerClaims)
	h.UpdateStatus(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var body dto.StatusChangeResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	assert.True(t, body.Changed)
	assert.Equal(t, models.ReportStatusReported, body.Report.Status)
}

func TestReportHandlerUpdateStatusRegression(t *testing.T) {
	h := NewReportHandler(&fakeReportService{err: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move report from resolved to pending")})
	c, rec := newContext(http.MethodPatch, "/reports/r1/status", map[string]string{"status": "pending"}, officerClaims)
	h.UpdateStatus(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, decode(t, rec).Error.Code)
}

func TestReportHandlerMapSkippedMeta(t *testing.T) {
	h := NewReportHandler(&fakeReportService{skipped: 3})
	c, rec := newContext(http.MethodGet, "/reports/map", nil, officerClaims)
	middleware.WithResponseMeta()(c)
	h.Map(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec).Meta["skipped"])
}

func TestReportHandlerStats(t *testing.T) {
	h := NewReportHandler(&fakeReportService{})
	c, rec := newContext(http.MethodGet, "/reports/stats", nil, officerClaims)
	h.Stats(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"total":4`)
}
