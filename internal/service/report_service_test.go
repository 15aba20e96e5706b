package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cyberguard-api/internal/dto"
	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/internal/repository"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

func newReportService(t *testing.T) (*ReportService, *repository.MemoryReportStore, *invalidatorStub) {
	t.Helper()
	store := repository.NewMemoryReportStore()
	cache := &invalidatorStub{}
	return NewReportService(store, cache, nil, nil), store, cache
}

func validCreateRequest() dto.CreateReportRequest {
	return dto.CreateReportRequest{
		Name:            "Asha",
		Location:        &dto.LocationInput{City: " Mumbai ", State: "Maharashtra", Lat: floatPtr(19.07), Lng: floatPtr(72.87)},
		BullyingType:    "Harassment",
		PerpetratorInfo: dto.PerpetratorInput{Platform: "Instagram"},
		EvidenceLinks:   []string{"https://example.com/screenshot.png"},
	}
}

func TestReportServiceCreate(t *testing.T) {
	svc, store, cache := newReportService(t)
	viewer := Viewer{UserID: "user-1", Role: models.RoleUser}

	report, err := svc.Create(context.Background(), viewer, validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, report.Status)
	assert.Equal(t, models.SeverityMedium, report.Severity)
	assert.Equal(t, "Mumbai", report.Location.City)
	require.NotNil(t, report.UserID)
	assert.Equal(t, "user-1", *report.UserID)
	assert.Equal(t, []string{criticalAreaCacheGlob}, cache.patterns)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	textual := validCreateRequest()
	textual.EvidenceLinks = []string{"screenshot saved on my phone", "https://example.com/chat.png"}
	report, err = svc.Create(context.Background(), viewer, textual)
	require.NoError(t, err)
	assert.Equal(t, []string{"screenshot saved on my phone", "https://example.com/chat.png"}, []string(report.EvidenceLinks))

	blank := validCreateRequest()
	blank.EvidenceLinks = []string{""}
	_, err = svc.Create(context.Background(), viewer, blank)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReportServiceCreateValidation(t *testing.T) {
	svc, _, _ := newReportService(t)

	req := validCreateRequest()
	req.Severity = "extreme"
	req.Location = nil
	_, err := svc.Create(context.Background(), Viewer{UserID: "u"}, req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "Severity")
	assert.Contains(t, appErr.Details, "Location")

	anon := validCreateRequest()
	anon.Name = ""
	anon.IsAnonymous = true
	report, err := svc.Create(context.Background(), Viewer{UserID: "u"}, anon)
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", report.ReporterName)
}

func TestReportServiceVisibility(t *testing.T) {
	svc, _, _ := newReportService(t)
	ctx := context.Background()
	owner := Viewer{UserID: "owner", Role: models.RoleUser}

	req := validCreateRequest()
	req.IsAnonymous = true
	created, err := svc.Create(ctx, owner, req)
	require.NoError(t, err)

	_, err = svc.Get(ctx, Viewer{UserID: "stranger", Role: models.RoleUser}, created.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	seen, err := svc.Get(ctx, Viewer{UserID: "officer", Role: models.RoleOfficer}, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", seen.ReporterName)
	assert.Nil(t, seen.UserID)

	mine, err := svc.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", mine.ReporterName)

	items, page, err := svc.List(ctx, Viewer{UserID: "stranger", Role: models.RoleUser}, dto.ListReportsQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)

	items, page, err = svc.List(ctx, Viewer{UserID: "officer", Role: models.RoleOfficer}, dto.ListReportsQuery{Status: "PENDING"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
}

func TestReportServiceUpdateStatus(t *testing.T) {
	svc, _, cache := newReportService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, Viewer{UserID: "u"}, validCreateRequest())
	require.NoError(t, err)
	cache.patterns = nil

	updated, changed, err := svc.UpdateStatus(ctx, created.ID, dto.UpdateReportStatusRequest{Status: "reported"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.ReportStatusReported, updated.Status)
	assert.Len(t, cache.patterns, 1)

	_, changed, err = svc.UpdateStatus(ctx, created.ID, dto.UpdateReportStatusRequest{Status: "reported"})
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = svc.UpdateStatus(ctx, created.ID, dto.UpdateReportStatusRequest{Status: "resolved"})
	require.NoError(t, err)

	_, _, err = svc.UpdateStatus(ctx, created.ID, dto.UpdateReportStatusRequest{Status: "pending"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, _, err = svc.UpdateStatus(ctx, "missing", dto.UpdateReportStatusRequest{Status: "reported"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, _, err = svc.UpdateStatus(ctx, created.ID, dto.UpdateReportStatusRequest{Status: "archived"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReportServiceStatsAndMarkers(t *testing.T) {
	svc, _, _ := newReportService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Viewer{UserID: "u"}, validCreateRequest())
	require.NoError(t, err)
	noCoords := validCreateRequest()
	noCoords.Location.Lat, noCoords.Location.Lng = nil, nil
	noCoords.BullyingType = "Trolling"
	_, err = svc.Create(ctx, Viewer{UserID: "u"}, noCoords)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.ByType["Trolling"])

	markers, skipped, err := svc.MapMarkers(ctx)
	require.NoError(t, err)
	assert.Len(t, markers, 1)
	assert.Equal(t, 1, skipped)
}

type failingReportRepo struct {
	*repository.MemoryReportStore
}

func (f failingReportRepo) ListAll(ctx context.Context) ([]models.Report, error) {
	return nil, errors.New("db offline")
}

func TestReportServiceStatsError(t *testing.T) {
	svc := NewReportService(failingReportRepo{repository.NewMemoryReportStore()}, nil, nil, nil)
	_, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
