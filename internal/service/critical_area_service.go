package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

type analysisCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// CriticalAreaService runs the analyzer over the report store with an
// optional cache in front.
type CriticalAreaService struct {
	store    ReportStore
	analyzer *CriticalAreaAnalyzer
	cache    analysisCache
	metrics  *MetricsService
	logger   *zap.Logger
	ttl      time.Duration
}

// NewCriticalAreaService constructs the service. cache and metrics may be nil.
func NewCriticalAreaService(store ReportStore, analyzer *CriticalAreaAnalyzer, cache analysisCache, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *CriticalAreaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if analyzer == nil {
		analyzer = NewCriticalAreaAnalyzer(AnalyzerConfig{}, logger)
	}
	return &CriticalAreaService{store: store, analyzer: analyzer, cache: cache, metrics: metrics, logger: logger, ttl: ttl}
}

// Analyzer exposes the configured analyzer.
func (s *CriticalAreaService) Analyzer() *CriticalAreaAnalyzer {
	return s.analyzer
}

// Analyze returns the critical areas for mode and whether they came from cache.
func (s *CriticalAreaService) Analyze(ctx context.Context, mode GroupingMode) (*models.CriticalAreaAnalysis, bool, error) {
	key := criticalAreaCacheKey(mode)
	if s.cache != nil {
		var cached models.CriticalAreaAnalysis
		if s.cache.Get(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	reports, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	start := time.Now()
	analysis := s.analyzer.Analyze(reports, mode)
	s.metrics.ObserveAnalysis(analysis.Mode, analysis, time.Since(start))
	if analysis.SkippedReports > 0 {
		s.logger.Sugar().Infow("reports without location excluded from analysis", "mode", analysis.Mode, "skipped", analysis.SkippedReports)
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, analysis, s.ttl)
	}
	return &analysis, false, nil
}

// Invalidate drops every cached analysis.
func (s *CriticalAreaService) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, criticalAreaCacheGlob)
	}
}

func criticalAreaCacheKey(mode GroupingMode) string {
	if mode != GroupByCityType {
		mode = GroupByCityState
	}
	return "critical-areas:" + string(mode)
}
