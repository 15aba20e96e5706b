package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/dto"
	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

type reportRepository interface {
	ReportStore
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Report, error)
}

// Viewer identifies who is asking for report data.
type Viewer struct {
	UserID string
	Role   models.UserRole
}

// ReportService handles report submission, listing and status changes.
type ReportService struct {
	repo      reportRepository
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportRepository, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	RegisterReportValidations(validate)
	return &ReportService{repo: repo, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// RegisterReportValidations installs the report_status, severity and
// grouping_mode tags.
func RegisterReportValidations(v *validator.Validate) {
	_ = v.RegisterValidation("report_status", func(fl validator.FieldLevel) bool {
		return models.ReportStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return models.Severity(strings.ToLower(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("grouping_mode", func(fl validator.FieldLevel) bool {
		_, err := ParseGroupingMode(fl.Field().String())
		return err == nil
	})
}

// Validate runs struct validation with the report tags.
func (s *ReportService) Validate(v interface{}) error {
	if err := s.validator.Struct(v); err != nil {
		return appErrors.FromValidation(err, "")
	}
	return nil
}

// Create stores a new pending report owned by viewer.
func (s *ReportService) Create(ctx context.Context, viewer Viewer, req dto.CreateReportRequest) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid report payload")
	}

	severity := models.Severity(strings.ToLower(req.Severity))
	if severity == "" {
		severity = models.SeverityMedium
	}
	now := s.now().UTC()
	report := &models.Report{
		ID:           uuid.NewString(),
		ReporterName: strings.TrimSpace(req.Name),
		VictimAge:    req.Age,
		Location: &models.Location{
			Lat:      req.Location.Lat,
			Lng:      req.Location.Lng,
			Address:  strings.TrimSpace(req.Location.Address),
			State:    strings.TrimSpace(req.Location.State),
			District: strings.TrimSpace(req.Location.District),
			City:     strings.TrimSpace(req.Location.City),
		},
		BullyingType: strings.TrimSpace(req.BullyingType),
		PerpetratorInfo: models.PerpetratorInfo{
			Platform:          req.PerpetratorInfo.Platform,
			Username:          req.PerpetratorInfo.Username,
			ProfileURL:        req.PerpetratorInfo.ProfileURL,
			RealName:          req.PerpetratorInfo.RealName,
			ApproximateAge:    req.PerpetratorInfo.ApproximateAge,
			AdditionalDetails: req.PerpetratorInfo.AdditionalDetails,
		},
		EvidenceLinks: append([]string{}, req.EvidenceLinks...),
		Description:   req.Description,
		Severity:      severity,
		Status:        models.ReportStatusPending,
		IsAnonymous:   req.IsAnonymous,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if viewer.UserID != "" {
		owner := viewer.UserID
		report.UserID = &owner
	}
	if report.IsAnonymous && report.ReporterName == "" {
		report.ReporterName = "Anonymous"
	}

	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}
	s.invalidate(ctx)
	return report, nil
}

// Get returns one report. Plain users only see their own.
func (s *ReportService) Get(ctx context.Context, viewer Viewer, id string) (*models.Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if !viewer.Role.Reviewer() && (report.UserID == nil || *report.UserID != viewer.UserID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	redacted := report.Redacted(viewer.UserID, viewer.Role)
	return &redacted, nil
}

// List returns a page of reports. Plain users are scoped to their own reports.
func (s *ReportService) List(ctx context.Context, viewer Viewer, query dto.ListReportsQuery) ([]models.Report, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.FromValidation(err, "invalid report filters")
	}
	filter := models.ReportFilter{
		BullyingType: strings.TrimSpace(query.BullyingType),
		City:         strings.TrimSpace(query.City),
		State:        strings.TrimSpace(query.State),
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if query.Status != "" {
		status := models.ReportStatus(strings.ToLower(query.Status))
		filter.Status = &status
	}
	if query.Severity != "" {
		severity := models.Severity(strings.ToLower(query.Severity))
		filter.Severity = &severity
	}
	if !viewer.Role.Reviewer() {
		owner := viewer.UserID
		filter.UserID = &owner
	}

	reports, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	for i := range reports {
		reports[i] = reports[i].Redacted(viewer.UserID, viewer.Role)
	}
	return reports, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UpdateStatus moves a report forward in its lifecycle. Moving to the current
// status is a no-op and reports changed=false.
func (s *ReportService) UpdateStatus(ctx context.Context, id string, req dto.UpdateReportStatusRequest) (*models.Report, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.FromValidation(err, "invalid status payload")
	}
	next := models.ReportStatus(strings.ToLower(req.Status))

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if current.Status == next {
		return current, false, nil
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move report from "+string(current.Status)+" to "+string(next))
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		case errors.Is(err, appErrors.ErrInvalidTransition):
			return nil, false, err
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report status")
	}
	s.invalidate(ctx)

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload report")
	}
	return updated, true, nil
}

// Stats summarises every stored report.
func (s *ReportService) Stats(ctx context.Context) (*models.ReportStats, error) {
	reports, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	stats := ComputeReportStats(reports)
	return &stats, nil
}

// MapMarkers returns plottable reports and how many were left out.
func (s *ReportService) MapMarkers(ctx context.Context) ([]models.MapMarker, int, error) {
	reports, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	markers, skipped := MapMarkers(reports)
	if skipped > 0 {
		s.logger.Debug("reports without coordinates left off the map", zap.Int("skipped", skipped))
	}
	return markers, skipped, nil
}

func (s *ReportService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, criticalAreaCacheGlob)
	}
}
