package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/internal/repository"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
	"github.com/noah-isme/cyberguard-api/pkg/jobs"
)

type publisherStub struct {
	mu       sync.Mutex
	topics   []string
	payloads []interface{}
	err      error
}

func (p *publisherStub) PublishJSON(_ context.Context, suffix string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, suffix)
	p.payloads = append(p.payloads, v)
	return nil
}

type enqueuerStub struct {
	jobs []jobs.Job
	ids  map[string]struct{}
}

func (q *enqueuerStub) Enqueue(job jobs.Job) error {
	if q.ids == nil {
		q.ids = make(map[string]struct{})
	}
	if _, ok := q.ids[job.ID]; ok {
		return jobs.ErrDuplicate
	}
	q.ids[job.ID] = struct{}{}
	q.jobs = append(q.jobs, job)
	return nil
}

type staticAnalysis struct {
	analyzer *CriticalAreaAnalyzer
	reports  []models.Report
}

func (s *staticAnalysis) Analyze(_ context.Context, mode GroupingMode) (*models.CriticalAreaAnalysis, bool, error) {
	analysis := s.analyzer.Analyze(s.reports, mode)
	return &analysis, false, nil
}

func hotspotReports() []models.Report {
	reports := reportBatch("p", 7, "Pune", "Maharashtra", "Harassment")
	return append(reports, mumbaiReports()...)
}

func TestHotspotMonitorScanPublishesOncePerSeverity(t *testing.T) {
	source := &staticAnalysis{analyzer: NewCriticalAreaAnalyzer(AnalyzerConfig{}, nil), reports: hotspotReports()}
	publisher := &publisherStub{}
	metrics := NewMetricsService()
	monitor := NewHotspotMonitor(source, publisher, nil, metrics, nil, HotspotConfig{AlertSeverity: models.SeverityHigh})
	monitor.now = func() time.Time { return fixtureTime }

	scan, err := monitor.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HotspotScan{Areas: 2, Alerts: 1}, scan)
	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, []string{"high"}, publisher.topics)

	alert := publisher.payloads[0].(HotspotAlert)
	assert.Equal(t, "Pune, Maharashtra", alert.Location)
	assert.Equal(t, 7, alert.Count)
	assert.Equal(t, fixtureTime, alert.DetectedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.hotspotAlerts.WithLabelValues("high")))

	scan, err = monitor.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, scan.Alerts)

	source.reports = append(source.reports, reportBatch("q", 3, "Pune", "Maharashtra", "Doxxing")...)
	scan, err = monitor.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scan.Alerts)
	assert.Equal(t, []string{"high", "critical"}, publisher.topics)
}

func TestHotspotMonitorRetriesFailedPublish(t *testing.T) {
	source := &staticAnalysis{analyzer: NewCriticalAreaAnalyzer(AnalyzerConfig{}, nil), reports: hotspotReports()}
	publisher := &publisherStub{err: errors.New("broker down")}
	monitor := NewHotspotMonitor(source, publisher, nil, nil, nil, HotspotConfig{})

	scan, err := monitor.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, scan.Alerts)

	publisher.err = nil
	scan, err = monitor.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scan.Alerts)
}

func TestHotspotMonitorEnqueuesPendingAreas(t *testing.T) {
	reports := hotspotReports()
	resolved := reportBatch("r", 7, "Nagpur", "Maharashtra", "Harassment")
	for i := range resolved {
		resolved[i].Status = models.ReportStatusResolved
	}
	source := &staticAnalysis{analyzer: NewCriticalAreaAnalyzer(AnalyzerConfig{}, nil), reports: append(reports, resolved...)}
	queue := &enqueuerStub{}
	monitor := NewHotspotMonitor(source, nil, queue, nil, nil, HotspotConfig{
		AlertSeverity:        models.SeverityHigh,
		AutoEscalate:         true,
		AutoEscalateSeverity: models.SeverityHigh,
	})

	scan, err := monitor.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scan.Enqueued)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "escalate:pune|maharashtra", queue.jobs[0].ID)
	assert.Equal(t, JobTypeEscalateArea, queue.jobs[0].Type)
	assert.Equal(t, EscalationJob{Mode: GroupByCityState, LocationKey: "pune|maharashtra"}, queue.jobs[0].Payload)

	scan, err = monitor.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, scan.Enqueued)
}

func TestHotspotMonitorAutoEscalateEndToEnd(t *testing.T) {
	store := repository.NewMemoryReportStore(hotspotReports()...)
	analyzer := NewCriticalAreaAnalyzer(AnalyzerConfig{}, nil)
	areas := NewCriticalAreaService(store, analyzer, nil, nil, nil, time.Minute)
	escalation := NewEscalationService(store, analyzer, nil, nil, nil, nil, EscalationConfig{})

	worker := NewEscalationWorker(escalation, nil)
	queue := jobs.NewQueue("escalations", worker.Handle, jobs.QueueConfig{Workers: 1, RetryDelay: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	monitor := NewHotspotMonitor(areas, nil, queue, nil, nil, HotspotConfig{AutoEscalate: true, AutoEscalateSeverity: models.SeverityHigh})
	scan, err := monitor.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, scan.Enqueued)

	require.Eventually(t, func() bool {
		r, err := store.GetByID(ctx, "p-1")
		return err == nil && r.Status == models.ReportStatusReported
	}, time.Second, 10*time.Millisecond)

	mumbai, err := store.GetByID(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, mumbai.Status)
}

func TestHotspotMonitorRunDisabled(t *testing.T) {
	monitor := NewHotspotMonitor(nil, nil, nil, nil, nil, HotspotConfig{})
	done := make(chan struct{})
	go func() {
		monitor.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return with a zero interval")
	}
}

func TestHotspotMonitorRunStopsOnCancel(t *testing.T) {
	source := &staticAnalysis{analyzer: NewCriticalAreaAnalyzer(AnalyzerConfig{}, nil), reports: hotspotReports()}
	publisher := &publisherStub{}
	monitor := NewHotspotMonitor(source, publisher, nil, nil, nil, HotspotConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		publisher.mu.Lock()
		defer publisher.mu.Unlock()
		return len(publisher.topics) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

type escalatorStub struct {
	result *models.EscalationResult
	err    error
	calls  []string
}

func (e *escalatorStub) EscalateArea(_ context.Context, _ GroupingMode, key string) (*models.EscalationResult, error) {
	e.calls = append(e.calls, key)
	return e.result, e.err
}

func TestEscalationWorkerHandle(t *testing.T) {
	job := jobs.Job{ID: "escalate:pune|maharashtra", Type: JobTypeEscalateArea, Payload: EscalationJob{Mode: GroupByCityState, LocationKey: "pune|maharashtra"}}

	t.Run("success", func(t *testing.T) {
		stub := &escalatorStub{result: &models.EscalationResult{Success: true, ReportedCount: 7}}
		require.NoError(t, NewEscalationWorker(stub, nil).Handle(context.Background(), job))
		assert.Equal(t, []string{"pune|maharashtra"}, stub.calls)
	})

	t.Run("area gone", func(t *testing.T) {
		stub := &escalatorStub{err: appErrors.Clone(appErrors.ErrNotFound, "gone")}
		assert.NoError(t, NewEscalationWorker(stub, nil).Handle(context.Background(), job))
	})

	t.Run("all updates failed", func(t *testing.T) {
		stub := &escalatorStub{result: &models.EscalationResult{Success: true, FailedCount: 7}}
		assert.Error(t, NewEscalationWorker(stub, nil).Handle(context.Background(), job))
	})

	t.Run("partial failure", func(t *testing.T) {
		stub := &escalatorStub{result: &models.EscalationResult{Success: true, ReportedCount: 5, FailedCount: 2}}
		assert.NoError(t, NewEscalationWorker(stub, nil).Handle(context.Background(), job))
	})

	t.Run("bad payload", func(t *testing.T) {
		bad := job
		bad.Payload = "pune"
		assert.Error(t, NewEscalationWorker(&escalatorStub{}, nil).Handle(context.Background(), bad))
	})
}
