package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
	"github.com/noah-isme/cyberguard-api/pkg/jobs"
)

// JobTypeEscalateArea is the queue job type handled by EscalationWorker.
const JobTypeEscalateArea = "escalate_area"

type alertPublisher interface {
	PublishJSON(ctx context.Context, suffix string, v interface{}) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// HotspotConfig tunes the monitor.
type HotspotConfig struct {
	Interval             time.Duration
	AlertSeverity        models.Severity
	AutoEscalate         bool
	AutoEscalateSeverity models.Severity
}

// HotspotAlert is the payload published for an area crossing the alert floor.
type HotspotAlert struct {
	LocationKey   string              `json:"locationKey"`
	Location      string              `json:"location"`
	City          string              `json:"city"`
	State         string              `json:"state"`
	Severity      models.Severity     `json:"severity"`
	Count         int                 `json:"count"`
	CriticalTypes []models.TypeCount  `json:"criticalTypes"`
	Center        *models.Coordinates `json:"center,omitempty"`
	DetectedAt    time.Time           `json:"detectedAt"`
}

// HotspotScan summarises one monitor pass.
type HotspotScan struct {
	Areas    int
	Alerts   int
	Enqueued int
}

// EscalationJob is the payload of an escalate_area job.
type EscalationJob struct {
	Mode        GroupingMode
	LocationKey string
}

// HotspotMonitor periodically analyses city_state areas, publishes alerts for
// hot ones and optionally queues them for escalation.
type HotspotMonitor struct {
	source    analysisSource
	publisher alertPublisher
	queue     jobEnqueuer
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       HotspotConfig
	now       func() time.Time

	mu      sync.Mutex
	alerted map[string]models.Severity
}

// NewHotspotMonitor builds a monitor. publisher and queue may be nil.
func NewHotspotMonitor(source analysisSource, publisher alertPublisher, queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger, cfg HotspotConfig) *HotspotMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.AlertSeverity.Valid() {
		cfg.AlertSeverity = models.SeverityHigh
	}
	if !cfg.AutoEscalateSeverity.Valid() {
		cfg.AutoEscalateSeverity = models.SeverityCritical
	}
	return &HotspotMonitor{
		source:    source,
		publisher: publisher,
		queue:     queue,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		alerted:   make(map[string]models.Severity),
	}
}

// Run scans on every tick until ctx is cancelled. A non-positive interval
// disables the monitor.
func (m *HotspotMonitor) Run(ctx context.Context) {
	if m.cfg.Interval <= 0 {
		m.logger.Info("hotspot monitor disabled")
		return
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Sugar().Infow("hotspot monitor started", "interval", m.cfg.Interval.String(), "alert_severity", m.cfg.AlertSeverity)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("hotspot monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.Scan(ctx); err != nil {
				m.logger.Warn("hotspot scan failed", zap.Error(err))
			}
		}
	}
}

// Scan runs a single pass. An area is alerted once per severity level; it is
// alerted again only after its severity rises.
func (m *HotspotMonitor) Scan(ctx context.Context) (HotspotScan, error) {
	analysis, _, err := m.source.Analyze(ctx, GroupByCityState)
	if err != nil {
		return HotspotScan{}, err
	}

	scan := HotspotScan{Areas: len(analysis.Areas)}
	seen := make(map[string]struct{}, len(analysis.Areas))
	for _, area := range analysis.Areas {
		seen[area.LocationKey] = struct{}{}
		if !area.Severity.AtLeast(m.cfg.AlertSeverity) {
			continue
		}
		if m.markAlerted(area.LocationKey, area.Severity) {
			if m.publish(ctx, area) {
				scan.Alerts++
			}
		}
		if m.enqueue(area) {
			scan.Enqueued++
		}
	}
	m.forgetMissing(seen)
	return scan, nil
}

func (m *HotspotMonitor) publish(ctx context.Context, area models.CriticalArea) bool {
	m.metrics.RecordHotspotAlert(area.Severity)
	if m.publisher == nil {
		m.logger.Sugar().Infow("hotspot detected", "location", area.Label, "severity", area.Severity, "count", area.Count)
		return true
	}
	alert := HotspotAlert{
		LocationKey:   area.LocationKey,
		Location:      area.Label,
		City:          area.City,
		State:         area.State,
		Severity:      area.Severity,
		Count:         area.Count,
		CriticalTypes: area.TypeBreakdown,
		Center:        area.Center,
		DetectedAt:    m.now(),
	}
	if err := m.publisher.PublishJSON(ctx, string(area.Severity), alert); err != nil {
		m.logger.Sugar().Warnw("failed to publish hotspot alert", "location", area.Label, "error", err)
		m.unmarkAlerted(area.LocationKey)
		return false
	}
	return true
}

func (m *HotspotMonitor) enqueue(area models.CriticalArea) bool {
	if !m.cfg.AutoEscalate || m.queue == nil {
		return false
	}
	if !area.Severity.AtLeast(m.cfg.AutoEscalateSeverity) || !ShouldEscalate(area.Reports) || !hasPending(area.Reports) {
		return false
	}
	err := m.queue.Enqueue(jobs.Job{
		ID:      "escalate:" + area.LocationKey,
		Type:    JobTypeEscalateArea,
		Payload: EscalationJob{Mode: GroupByCityState, LocationKey: area.LocationKey},
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, jobs.ErrDuplicate):
		return false
	default:
		m.logger.Sugar().Warnw("failed to enqueue escalation", "location", area.Label, "error", err)
		return false
	}
}

func (m *HotspotMonitor) markAlerted(key string, severity models.Severity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.alerted[key]; ok && prev.AtLeast(severity) {
		return false
	}
	m.alerted[key] = severity
	return true
}

func (m *HotspotMonitor) unmarkAlerted(key string) {
	m.mu.Lock()
	delete(m.alerted, key)
	m.mu.Unlock()
}

func (m *HotspotMonitor) forgetMissing(seen map[string]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.alerted {
		if _, ok := seen[key]; !ok {
			delete(m.alerted, key)
		}
	}
}

func hasPending(reports []models.Report) bool {
	for i := range reports {
		if reports[i].Status == models.ReportStatusPending {
			return true
		}
	}
	return false
}

type areaEscalator interface {
	EscalateArea(ctx context.Context, mode GroupingMode, locationKey string) (*models.EscalationResult, error)
}

// EscalationWorker executes escalate_area jobs.
type EscalationWorker struct {
	escalator areaEscalator
	logger    *zap.Logger
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(escalator areaEscalator, logger *zap.Logger) *EscalationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationWorker{escalator: escalator, logger: logger}
}

// Handle satisfies jobs.Handler. Returning an error makes the queue retry.
func (w *EscalationWorker) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeEscalateArea {
		return fmt.Errorf("unexpected job type %q", job.Type)
	}
	payload, ok := job.Payload.(EscalationJob)
	if !ok {
		return fmt.Errorf("invalid payload for job %s", job.ID)
	}

	result, err := w.escalator.EscalateArea(ctx, payload.Mode, payload.LocationKey)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			w.logger.Sugar().Infow("area no longer critical", "location_key", payload.LocationKey)
			return nil
		}
		return err
	}
	if result.FailedCount > 0 && result.ReportedCount == 0 {
		return fmt.Errorf("escalation of %s failed for %d reports", payload.LocationKey, result.FailedCount)
	}
	w.logger.Sugar().Infow("area escalated",
		"location", result.Location,
		"reported", result.ReportedCount,
		"failed", result.FailedCount,
		"forwarded", result.Forwarded,
		"attempt", job.Attempt,
	)
	return nil
}
