package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

const reportColumns = `id, user_id, reporter_name, victim_age, location, bullying_type, perpetrator_info, evidence_links, description, severity, status, is_anonymous, created_at, updated_at`

// ReportRepository stores reports in PostgreSQL. Location and perpetrator
// details live in JSONB columns.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ListAll returns every report oldest first.
func (r *ReportRepository) ListAll(ctx context.Context) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at ASC, id ASC`
	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, query); err != nil {
		return nil, fmt.Errorf("list all reports: %w", err)
	}
	return reports, nil
}

// ListByIDs returns the reports whose ids are in ids, oldest first.
func (r *ReportRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Report, error) {
	if len(ids) == 0 {
		return []models.Report{}, nil
	}
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ANY($1) ORDER BY created_at ASC, id ASC`
	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list reports by ids: %w", err)
	}
	return reports, nil
}

// GetByID returns one report or sql.ErrNoRows.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 LIMIT 1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// List returns a filtered page of reports, newest first, with the total count.
func (r *ReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	baseQuery := `FROM reports WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)+1))
		args = append(args, *filter.Severity)
	}
	if filter.BullyingType != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(bullying_type) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.BullyingType))
	}
	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(location->>'city') = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.City))
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(location->>'state') = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.State))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", reportColumns, baseQuery, pageSize, offset)
	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}
	return reports, total, nil
}

// Create inserts a new report.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = report.CreatedAt
	}
	if report.EvidenceLinks == nil {
		report.EvidenceLinks = pq.StringArray{}
	}

	const query = `INSERT INTO reports (id, user_id, reporter_name, victim_age, location, bullying_type, perpetrator_info, evidence_links, description, severity, status, is_anonymous, created_at, updated_at) VALUES (:id, :user_id, :reporter_name, :victim_age, :location, :bullying_type, :perpetrator_info, :evidence_links, :description, :severity, :status, :is_anonymous, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// UpdateStatus moves a report to status when its current status allows it.
// It returns sql.ErrNoRows for unknown ids and ErrInvalidTransition when the
// stored status is already past status.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	allowed := make([]string, 0, 3)
	for _, s := range status.Predecessors() {
		allowed = append(allowed, string(s))
	}
	const query = `UPDATE reports SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(), pq.Array(allowed))
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report status rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current models.ReportStatus
	if err := r.db.GetContext(ctx, &current, `SELECT status FROM reports WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("check report status: %w", err)
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("report %s is already %s", id, current))
}
