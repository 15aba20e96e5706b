package service

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

// GroupingMode selects which report attributes define an area.
type GroupingMode string

const (
	// GroupByCityState clusters by city and state regardless of type.
	GroupByCityState GroupingMode = "city_state"
	// GroupByCityType clusters by city and bullying type.
	GroupByCityType GroupingMode = "city_type"
)

const (
	unknownPart           = "unknown"
	keySeparator          = "|"
	defaultMinClusterSize = 3
	defaultMinPatternSize = 3
)

// ParseGroupingMode validates a mode string. Empty input selects city_state.
func ParseGroupingMode(raw string) (GroupingMode, error) {
	switch GroupingMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", GroupByCityState:
		return GroupByCityState, nil
	case GroupByCityType:
		return GroupByCityType, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown grouping mode %q", raw))
	}
}

// AreaKey identifies an area. Key is normalised for equality while the display
// fields keep the spelling of the report that produced them.
type AreaKey struct {
	Key          string
	Label        string
	City         string
	State        string
	BullyingType string
}

// ReportGroup is one bucket produced by Aggregate.
type ReportGroup struct {
	Key     AreaKey
	Reports []models.Report
}

// Keyable is true when the report carries a location to group by.
func Keyable(r *models.Report) bool {
	return r != nil && r.Location != nil
}

// LocationKey derives the area key of r under mode. Missing city, state or
// type collapse to "unknown". Callers filter with Keyable first.
func LocationKey(mode GroupingMode, r *models.Report) AreaKey {
	var city, state string
	if r.Location != nil {
		city, state = r.Location.City, r.Location.State
	}
	cityLabel, stateLabel, typeLabel := displayPart(city), displayPart(state), displayPart(r.BullyingType)

	if mode == GroupByCityType {
		return AreaKey{
			Key:          normalizePart(city) + keySeparator + normalizePart(r.BullyingType),
			Label:        cityLabel,
			City:         cityLabel,
			BullyingType: typeLabel,
		}
	}
	return AreaKey{
		Key:   normalizePart(city) + keySeparator + normalizePart(state),
		Label: cityLabel + ", " + stateLabel,
		City:  cityLabel,
		State: stateLabel,
	}
}

// typeKey groups by bullying type only.
func typeKey(r *models.Report) AreaKey {
	label := displayPart(r.BullyingType)
	return AreaKey{Key: normalizePart(r.BullyingType), Label: label, BullyingType: label}
}

// incidentKey groups by city, state and type together.
func incidentKey(r *models.Report) AreaKey {
	k := LocationKey(GroupByCityState, r)
	k.Key += keySeparator + normalizePart(r.BullyingType)
	k.BullyingType = displayPart(r.BullyingType)
	return k
}

func displayPart(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return unknownPart
	}
	return s
}

func normalizePart(s string) string {
	return strings.ToLower(displayPart(s))
}

// Aggregate buckets reports by keyFn in a single pass. Groups come back in
// first-seen key order and members keep their input order. The first report of
// a group decides its display key.
func Aggregate(reports []models.Report, keyFn func(*models.Report) AreaKey) []ReportGroup {
	groups := make([]ReportGroup, 0)
	index := make(map[string]int)
	for i := range reports {
		k := keyFn(&reports[i])
		pos, ok := index[k.Key]
		if !ok {
			pos = len(groups)
			index[k.Key] = pos
			groups = append(groups, ReportGroup{Key: k})
		}
		groups[pos].Reports = append(groups[pos].Reports, reports[i])
	}
	return groups
}

// SeverityThresholds are the inclusive lower bounds for medium, high and critical.
type SeverityThresholds struct {
	Medium   int
	High     int
	Critical int
}

// DefaultSeverityThresholds maps 0-2 low, 3-6 medium, 7-9 high, 10+ critical.
var DefaultSeverityThresholds = SeverityThresholds{Medium: 3, High: 7, Critical: 10}

// Validate rejects thresholds that would make the mapping non-monotonic.
func (t SeverityThresholds) Validate() error {
	if t.Medium < 1 || t.High < t.Medium || t.Critical < t.High {
		return fmt.Errorf("severity thresholds must satisfy 1 <= medium <= high <= critical, got %d/%d/%d", t.Medium, t.High, t.Critical)
	}
	return nil
}

// Classify maps a cluster size to a severity.
func (t SeverityThresholds) Classify(count int) models.Severity {
	switch {
	case count >= t.Critical:
		return models.SeverityCritical
	case count >= t.High:
		return models.SeverityHigh
	case count >= t.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ClassifySeverity uses DefaultSeverityThresholds.
func ClassifySeverity(count int) models.Severity {
	return DefaultSeverityThresholds.Classify(count)
}

// AnalyzerConfig tunes the critical area analysis.
type AnalyzerConfig struct {
	Thresholds     SeverityThresholds
	MinClusterSize int
	MinPatternSize int
}

// CriticalAreaAnalyzer finds location clusters in a report collection.
type CriticalAreaAnalyzer struct {
	thresholds     SeverityThresholds
	minClusterSize int
	minPatternSize int
	logger         *zap.Logger
}

// NewCriticalAreaAnalyzer builds an analyzer. Invalid settings fall back to defaults.
func NewCriticalAreaAnalyzer(cfg AnalyzerConfig, logger *zap.Logger) *CriticalAreaAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Thresholds == (SeverityThresholds{}) {
		cfg.Thresholds = DefaultSeverityThresholds
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		logger.Sugar().Warnw("invalid severity thresholds, using defaults", "error", err)
		cfg.Thresholds = DefaultSeverityThresholds
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = defaultMinClusterSize
	}
	if cfg.MinPatternSize <= 0 {
		cfg.MinPatternSize = defaultMinPatternSize
	}
	return &CriticalAreaAnalyzer{
		thresholds:     cfg.Thresholds,
		minClusterSize: cfg.MinClusterSize,
		minPatternSize: cfg.MinPatternSize,
		logger:         logger,
	}
}

// Thresholds returns the severity thresholds in use.
func (a *CriticalAreaAnalyzer) Thresholds() SeverityThresholds {
	return a.thresholds
}

// Analyze groups reports by mode and returns clusters of at least the minimum
// size, largest first. Ties keep first-seen order. Reports without a location
// are counted as skipped. The input is not modified.
func (a *CriticalAreaAnalyzer) Analyze(reports []models.Report, mode GroupingMode) models.CriticalAreaAnalysis {
	if mode != GroupByCityType {
		mode = GroupByCityState
	}
	keyable := make([]models.Report, 0, len(reports))
	for i := range reports {
		if !Keyable(&reports[i]) {
			a.logger.Debug("report without location skipped", zap.String("report_id", reports[i].ID))
			continue
		}
		keyable = append(keyable, reports[i])
	}

	groups := Aggregate(keyable, func(r *models.Report) AreaKey { return LocationKey(mode, r) })
	areas := make([]models.CriticalArea, 0)
	for _, g := range groups {
		if len(g.Reports) < a.minClusterSize {
			continue
		}
		areas = append(areas, a.buildArea(mode, g))
	}
	sort.SliceStable(areas, func(i, j int) bool { return areas[i].Count > areas[j].Count })

	return models.CriticalAreaAnalysis{
		Mode:            string(mode),
		Areas:           areas,
		TotalReports:    len(reports),
		AnalyzedReports: len(keyable),
		SkippedReports:  len(reports) - len(keyable),
	}
}

func (a *CriticalAreaAnalyzer) buildArea(mode GroupingMode, g ReportGroup) models.CriticalArea {
	area := models.CriticalArea{
		LocationKey:   g.Key.Key,
		Label:         g.Key.Label,
		City:          g.Key.City,
		State:         g.Key.State,
		Count:         len(g.Reports),
		Severity:      a.thresholds.Classify(len(g.Reports)),
		ReportIDs:     make([]string, 0, len(g.Reports)),
		Reports:       g.Reports,
		TypeBreakdown: make([]models.TypeCount, 0),
		Center:        centroid(g.Reports),
	}
	if mode == GroupByCityType {
		t := g.Key.BullyingType
		area.Type = &t
	}
	for _, r := range g.Reports {
		area.ReportIDs = append(area.ReportIDs, r.ID)
	}
	for _, tg := range Aggregate(g.Reports, typeKey) {
		n := len(tg.Reports)
		area.TypeBreakdown = append(area.TypeBreakdown, models.TypeCount{
			Type:     tg.Key.Label,
			Count:    n,
			Severity: a.thresholds.Classify(n),
			Critical: n >= a.minPatternSize,
		})
	}
	return area
}

// ShouldEscalate reports whether any city, state and type combination reaches
// the pattern size.
func (a *CriticalAreaAnalyzer) ShouldEscalate(reports []models.Report) bool {
	return shouldEscalate(reports, a.minPatternSize)
}

// ShouldEscalate applies the default pattern size of three.
func ShouldEscalate(reports []models.Report) bool {
	return shouldEscalate(reports, defaultMinPatternSize)
}

func shouldEscalate(reports []models.Report, minPattern int) bool {
	if len(reports) < minPattern {
		return false
	}
	counts := make(map[string]int)
	for i := range reports {
		if !Keyable(&reports[i]) {
			continue
		}
		k := incidentKey(&reports[i]).Key
		counts[k]++
		if counts[k] >= minPattern {
			return true
		}
	}
	return false
}

// MapMarkers returns markers for reports with usable coordinates and the
// number of reports left off the map.
func MapMarkers(reports []models.Report) ([]models.MapMarker, int) {
	markers := make([]models.MapMarker, 0, len(reports))
	for i := range reports {
		r := &reports[i]
		if !r.Location.HasCoordinates() {
			continue
		}
		markers = append(markers, models.MapMarker{
			ReportID:     r.ID,
			Lat:          *r.Location.Lat,
			Lng:          *r.Location.Lng,
			City:         r.Location.City,
			State:        r.Location.State,
			BullyingType: r.BullyingType,
			Severity:     r.Severity,
			Status:       r.Status,
		})
	}
	return markers, len(reports) - len(markers)
}

// ComputeReportStats tallies reports by status, type and self-reported severity.
func ComputeReportStats(reports []models.Report) models.ReportStats {
	stats := models.ReportStats{
		Total:      len(reports),
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
	}
	for _, r := range reports {
		switch r.Status {
		case models.ReportStatusPending:
			stats.Pending++
		case models.ReportStatusReported:
			stats.Reported++
		case models.ReportStatusResolved:
			stats.Resolved++
		}
		stats.ByType[displayPart(r.BullyingType)]++
		if r.Severity.Valid() {
			stats.BySeverity[string(r.Severity)]++
		}
	}
	return stats
}

func centroid(reports []models.Report) *models.Coordinates {
	var sumLat, sumLng float64
	n := 0
	for i := range reports {
		if !reports[i].Location.HasCoordinates() {
			continue
		}
		sumLat += *reports[i].Location.Lat
		sumLng += *reports[i].Location.Lng
		n++
	}
	if n == 0 {
		return nil
	}
	return &models.Coordinates{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}
}
