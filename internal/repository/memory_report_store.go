package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

// MemoryReportStore keeps reports in process memory. It mirrors the semantics
// of ReportRepository and is used for REPORT_STORE=memory and tests.
type MemoryReportStore struct {
	mu      sync.RWMutex
	order   []string
	reports map[string]models.Report
	now     func() time.Time
}

// NewMemoryReportStore creates an empty store, optionally seeded.
func NewMemoryReportStore(seed ...models.Report) *MemoryReportStore {
	s := &MemoryReportStore{reports: make(map[string]models.Report), now: time.Now}
	for i := range seed {
		_ = s.Create(context.Background(), &seed[i])
	}
	return s
}

// ListAll returns every report in insertion order.
func (s *MemoryReportStore) ListAll(ctx context.Context) ([]models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Report, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneReport(s.reports[id]))
	}
	return out, nil
}

// ListByIDs returns the known reports among ids in insertion order.
func (s *MemoryReportStore) ListByIDs(ctx context.Context, ids []string) ([]models.Report, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Report, 0, len(ids))
	for _, id := range s.order {
		if _, ok := want[id]; ok {
			out = append(out, cloneReport(s.reports[id]))
		}
	}
	return out, nil
}

// GetByID returns one report or sql.ErrNoRows.
func (s *MemoryReportStore) GetByID(ctx context.Context, id string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := cloneReport(r)
	return &clone, nil
}

// List filters and pages reports newest first.
func (s *MemoryReportStore) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	all, _ := s.ListAll(ctx)
	matched := make([]models.Report, 0, len(all))
	for _, r := range all {
		if matchesFilter(r, filter) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []models.Report{}, len(matched), nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

// Create stores a copy of report.
func (s *MemoryReportStore) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = report.CreatedAt
	}
	if report.EvidenceLinks == nil {
		report.EvidenceLinks = pq.StringArray{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[report.ID]; exists {
		return fmt.Errorf("create report: duplicate id %s", report.ID)
	}
	s.reports[report.ID] = cloneReport(*report)
	s.order = append(s.order, report.ID)
	return nil
}

// UpdateStatus follows the same rules as ReportRepository.UpdateStatus.
func (s *MemoryReportStore) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	if !r.Status.CanTransitionTo(status) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("report %s is already %s", id, r.Status))
	}
	r.Status = status
	r.UpdatedAt = s.now().UTC()
	s.reports[id] = r
	return nil
}

func matchesFilter(r models.Report, f models.ReportFilter) bool {
	if f.UserID != nil && (r.UserID == nil || *r.UserID != *f.UserID) {
		return false
	}
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.Severity != nil && r.Severity != *f.Severity {
		return false
	}
	if f.BullyingType != "" && !strings.EqualFold(r.BullyingType, f.BullyingType) {
		return false
	}
	if f.City != "" && (r.Location == nil || !strings.EqualFold(r.Location.City, f.City)) {
		return false
	}
	if f.State != "" && (r.Location == nil || !strings.EqualFold(r.Location.State, f.State)) {
		return false
	}
	return true
}

// cloneReport copies the pointer and slice fields so callers cannot mutate stored state.
func cloneReport(r models.Report) models.Report {
	if r.Location != nil {
		loc := *r.Location
		r.Location = &loc
	}
	if r.UserID != nil {
		id := *r.UserID
		r.UserID = &id
	}
	r.EvidenceLinks = append(pq.StringArray{}, r.EvidenceLinks...)
	return r
}
