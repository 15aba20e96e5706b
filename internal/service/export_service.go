package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
	"github.com/noah-isme/cyberguard-api/pkg/export"
)

var criticalAreaHeaders = []string{"Location", "City", "State", "Type", "Reports", "Severity", "Critical Types", "Center", "Report IDs"}

type analysisSource interface {
	Analyze(ctx context.Context, mode GroupingMode) (*models.CriticalAreaAnalysis, bool, error)
}

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders critical area analyses as downloadable documents.
type ExportService struct {
	source    analysisSource
	renderers map[export.Format]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Missing renderers fall back
// to the package defaults.
func NewExportService(source analysisSource, renderers map[export.Format]export.Renderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	all := map[export.Format]export.Renderer{
		export.FormatCSV:  export.NewCSVExporter(),
		export.FormatPDF:  export.NewPDFExporter(),
		export.FormatXLSX: export.NewXLSXExporter(),
	}
	for format, r := range renderers {
		if r != nil {
			all[format] = r
		}
	}
	return &ExportService{source: source, renderers: all, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CriticalAreas renders the analysis for mode in the requested format.
func (s *ExportService) CriticalAreas(ctx context.Context, mode GroupingMode, format export.Format) (*ExportFile, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	analysis, _, err := s.source.Analyze(ctx, mode)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now()
	dataset := CriticalAreaDataset(analysis, generatedAt)
	payload, err := renderer.Render(dataset)
	if err != nil {
		s.logger.Error("failed to render critical area export", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	base := fmt.Sprintf("critical_areas_%s_%s", analysis.Mode, generatedAt.Format("20060102_150405"))
	return &ExportFile{
		Filename:    format.Filename(base),
		ContentType: format.ContentType(),
		Data:        payload,
		Rows:        len(dataset.Rows),
	}, nil
}

// CriticalAreaDataset flattens an analysis into one row per area.
func CriticalAreaDataset(analysis *models.CriticalAreaAnalysis, generatedAt time.Time) export.Dataset {
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Critical Areas (%s) %s", analysis.Mode, generatedAt.Format("2006-01-02 15:04 MST")),
		Headers: criticalAreaHeaders,
		Rows:    make([]map[string]string, 0, len(analysis.Areas)),
	}
	for _, area := range analysis.Areas {
		areaType := ""
		if area.Type != nil {
			areaType = *area.Type
		}
		center := ""
		if area.Center != nil {
			center = fmt.Sprintf("%.5f, %.5f", area.Center.Lat, area.Center.Lng)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Location":       area.Label,
			"City":           area.City,
			"State":          area.State,
			"Type":           areaType,
			"Reports":        strconv.Itoa(area.Count),
			"Severity":       string(area.Severity),
			"Critical Types": breakdownSummary(area.TypeBreakdown),
			"Center":         center,
			"Report IDs":     strings.Join(area.ReportIDs, " "),
		})
	}
	return dataset
}

func breakdownSummary(breakdown []models.TypeCount) string {
	parts := make([]string, 0, len(breakdown))
	for _, tc := range breakdown {
		part := fmt.Sprintf("%s: %d", tc.Type, tc.Count)
		if tc.Critical {
			part += "*"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}
