package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

const (
	noPatternMessage      = "no critical patterns found for cybercrime reporting"
	maxConcurrentUpdates  = 16
	defaultPortalURL      = "https://cybercrime.gov.in/"
	criticalAreaCacheGlob = "critical-areas:*"
)

// ReportStore is the report persistence the analysis engine depends on.
// UpdateStatus returns sql.ErrNoRows for unknown ids and
// errors.ErrInvalidTransition when the move would go backwards.
type ReportStore interface {
	ListAll(ctx context.Context) ([]models.Report, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error
}

type escalationStore interface {
	ReportStore
	ListByIDs(ctx context.Context, ids []string) ([]models.Report, error)
}

type authorityForwarder interface {
	Forward(ctx context.Context, notice AuthorityNotice) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string)
}

// EscalationConfig tunes escalation behaviour.
type EscalationConfig struct {
	PortalURL      string
	MinPatternSize int
}

// EscalationService forwards clusters of reports to the cybercrime authorities.
type EscalationService struct {
	store     escalationStore
	analyzer  *CriticalAreaAnalyzer
	authority authorityForwarder
	cache     cacheInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       EscalationConfig
}

// NewEscalationService wires an escalation service. authority, cache and
// metrics are optional.
func NewEscalationService(store escalationStore, analyzer *CriticalAreaAnalyzer, authority authorityForwarder, cache cacheInvalidator, metrics *MetricsService, logger *zap.Logger, cfg EscalationConfig) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PortalURL == "" {
		cfg.PortalURL = defaultPortalURL
	}
	if cfg.MinPatternSize <= 0 {
		cfg.MinPatternSize = defaultMinPatternSize
	}
	if analyzer == nil {
		analyzer = NewCriticalAreaAnalyzer(AnalyzerConfig{MinPatternSize: cfg.MinPatternSize}, logger)
	}
	return &EscalationService{
		store:     store,
		analyzer:  analyzer,
		authority: authority,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// CriticalPatterns returns the bullying types with at least minSize reports,
// in first-seen order.
func CriticalPatterns(reports []models.Report, minSize int) []models.CriticalPattern {
	patterns := make([]models.CriticalPattern, 0)
	for _, g := range Aggregate(reports, typeKey) {
		if len(g.Reports) < minSize {
			continue
		}
		patterns = append(patterns, models.CriticalPattern{
			Type:      g.Key.Label,
			Count:     len(g.Reports),
			ReportIDs: ids(g.Reports),
		})
	}
	return patterns
}

// Escalate marks every report as reported when at least one bullying type
// reaches the pattern size. The summary depends only on the pattern counts;
// update failures and skipped reports show up in the counters and never stop
// the other updates.
func (s *EscalationService) Escalate(ctx context.Context, reports []models.Report, location string) *models.EscalationResult {
	location = strings.TrimSpace(location)
	if location == "" {
		location = unknownPart
	}
	patterns := CriticalPatterns(reports, s.cfg.MinPatternSize)
	if len(patterns) == 0 {
		result := &models.EscalationResult{Success: false, Message: noPatternMessage, Location: location}
		s.metrics.ObserveEscalation(result)
		return result
	}

	outcomes := s.updateAll(ctx, reports)
	result := &models.EscalationResult{
		Success:          true,
		Message:          "Reported to cybercrime authorities: " + summarize(patterns) + " in " + location,
		PortalURL:        s.cfg.PortalURL,
		CriticalPatterns: patterns,
		Location:         location,
	}
	for i, err := range outcomes {
		switch {
		case err == nil:
			result.ReportedCount++
		case errors.Is(err, appErrors.ErrInvalidTransition):
			result.SkippedCount++
		default:
			result.FailedCount++
			result.FailedReportIDs = append(result.FailedReportIDs, reports[i].ID)
			s.logger.Sugar().Warnw("report status update failed", "report_id", reports[i].ID, "location", location, "error", err)
		}
	}
	if result.ReportedCount > 0 {
		if s.cache != nil {
			s.cache.Invalidate(ctx, criticalAreaCacheGlob)
		}
		result.Forwarded = s.forward(ctx, result, reports, outcomes)
	}
	s.metrics.ObserveEscalation(result)
	return result
}

// EscalateArea re-runs the analysis over the whole store and escalates the
// area identified by locationKey.
func (s *EscalationService) EscalateArea(ctx context.Context, mode GroupingMode, locationKey string) (*models.EscalationResult, error) {
	key := strings.ToLower(strings.TrimSpace(locationKey))
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "locationKey is required")
	}
	reports, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	analysis := s.analyzer.Analyze(reports, mode)
	for _, area := range analysis.Areas {
		if area.LocationKey == key {
			return s.Escalate(ctx, area.Reports, area.Label), nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no critical area %q", locationKey))
}

// EscalateReports escalates an explicit set of reports. Every id must exist.
func (s *EscalationService) EscalateReports(ctx context.Context, reportIDs []string, location string) (*models.EscalationResult, error) {
	unique := dedupe(reportIDs)
	if len(unique) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reportIds must not be empty")
	}
	reports, err := s.store.ListByIDs(ctx, unique)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	if missing := missingIDs(unique, reports); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reports not found: "+strings.Join(missing, ", "))
	}
	if strings.TrimSpace(location) == "" {
		location = deriveLocation(reports)
	}
	return s.Escalate(ctx, reports, location), nil
}

func (s *EscalationService) updateAll(ctx context.Context, reports []models.Report) []error {
	outcomes := make([]error, len(reports))
	sem := make(chan struct{}, maxConcurrentUpdates)
	var wg sync.WaitGroup
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			err := s.store.UpdateStatus(ctx, reports[i].ID, models.ReportStatusReported)
			if errors.Is(err, sql.ErrNoRows) {
				err = appErrors.Clone(appErrors.ErrNotFound, "report not found")
			}
			outcomes[i] = err
		}(i)
	}
	wg.Wait()
	return outcomes
}

func (s *EscalationService) forward(ctx context.Context, result *models.EscalationResult, reports []models.Report, outcomes []error) bool {
	if s.authority == nil {
		return false
	}
	reported := make([]string, 0, result.ReportedCount)
	for i, err := range outcomes {
		if err == nil {
			reported = append(reported, reports[i].ID)
		}
	}
	err := s.authority.Forward(ctx, AuthorityNotice{
		Location:         result.Location,
		Message:          result.Message,
		PortalURL:        result.PortalURL,
		CriticalPatterns: result.CriticalPatterns,
		ReportIDs:        reported,
		EscalatedAt:      time.Now().UTC(),
	})
	if err != nil {
		s.logger.Sugar().Warnw("authority forward failed", "location", result.Location, "error", err)
		return false
	}
	return true
}

func summarize(patterns []models.CriticalPattern) string {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		parts = append(parts, fmt.Sprintf("%d cases of %s", p.Count, p.Type))
	}
	return strings.Join(parts, ", ")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func missingIDs(want []string, found []models.Report) []string {
	have := make(map[string]struct{}, len(found))
	for _, r := range found {
		have[r.ID] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func deriveLocation(reports []models.Report) string {
	for i := range reports {
		if Keyable(&reports[i]) {
			return LocationKey(GroupByCityState, &reports[i]).Label
		}
	}
	return unknownPart
}

func ids(reports []models.Report) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ID)
	}
	return out
}
