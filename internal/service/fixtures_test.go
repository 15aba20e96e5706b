package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/cyberguard-api/internal/models"
)

var fixtureTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }

func stringPtr(v string) *string { return &v }

func newReport(id, city, state, bullyingType string) models.Report {
	return models.Report{
		ID:           id,
		ReporterName: "reporter " + id,
		Location:     &models.Location{City: city, State: state},
		BullyingType: bullyingType,
		Severity:     models.SeverityMedium,
		Status:       models.ReportStatusPending,
		CreatedAt:    fixtureTime,
		UpdatedAt:    fixtureTime,
	}
}

func withCoords(r models.Report, lat, lng float64) models.Report {
	loc := *r.Location
	loc.Lat, loc.Lng = floatPtr(lat), floatPtr(lng)
	r.Location = &loc
	return r
}

// reportBatch builds n reports with sequential ids for one city, state and type.
func reportBatch(prefix string, n int, city, state, bullyingType string) []models.Report {
	out := make([]models.Report, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, newReport(fmt.Sprintf("%s-%d", prefix, i), city, state, bullyingType))
	}
	return out
}

// mumbaiReports is three Harassment and two Cyberstalking reports in Mumbai.
func mumbaiReports() []models.Report {
	reports := reportBatch("h", 3, "Mumbai", "Maharashtra", "Harassment")
	return append(reports, reportBatch("c", 2, "Mumbai", "Maharashtra", "Cyberstalking")...)
}
