package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
)

// ReportStatus tracks a report through review and escalation.
type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusReported ReportStatus = "reported"
	ReportStatusResolved ReportStatus = "resolved"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank below pending.
func (s ReportStatus) Rank() int {
	switch s {
	case ReportStatusPending:
		return 1
	case ReportStatusReported:
		return 2
	case ReportStatusResolved:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	return s.Rank() > 0
}

// CanTransitionTo is true when next is not behind s in the lifecycle.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	return next.Valid() && next.Rank() >= s.Rank()
}

// Predecessors lists the statuses from which s may be reached, s included.
func (s ReportStatus) Predecessors() []ReportStatus {
	out := make([]ReportStatus, 0, 3)
	for _, from := range []ReportStatus{ReportStatusPending, ReportStatusReported, ReportStatusResolved} {
		if from.CanTransitionTo(s) {
			out = append(out, from)
		}
	}
	return out
}

// Severity is the four level scale shared by reports and critical areas.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is at or above floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() >= floor.Rank()
}

// Location is where the reported incident took place.
type Location struct {
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Address  string   `json:"address"`
	State    string   `json:"state"`
	District string   `json:"district"`
	City     string   `json:"city"`
}

// HasCoordinates is true only when lat and lng are present, finite and in range.
func (l *Location) HasCoordinates() bool {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return false
	}
	lat, lng := *l.Lat, *l.Lng
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Value marshals the location to JSON for persistence.
func (l Location) Value() (driver.Value, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal location: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB location column.
func (l *Location) Scan(value interface{}) error {
	return scanJSON(value, l, "location")
}

// PerpetratorInfo describes the account or person responsible.
type PerpetratorInfo struct {
	Platform          string `json:"platform"`
	Username          string `json:"username,omitempty"`
	ProfileURL        string `json:"profileUrl,omitempty"`
	RealName          string `json:"realName,omitempty"`
	ApproximateAge    string `json:"approximateAge,omitempty"`
	AdditionalDetails string `json:"additionalDetails,omitempty"`
}

// Value marshals perpetrator info to JSON for persistence.
func (p PerpetratorInfo) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal perpetrator info: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB perpetrator column.
func (p *PerpetratorInfo) Scan(value interface{}) error {
	return scanJSON(value, p, "perpetrator info")
}

// Report is a single cyberbullying incident submitted by a user.
type Report struct {
	ID              string          `db:"id" json:"id"`
	UserID          *string         `db:"user_id" json:"userId,omitempty"`
	ReporterName    string          `db:"reporter_name" json:"name"`
	VictimAge       *int            `db:"victim_age" json:"age,omitempty"`
	Location        *Location       `db:"location" json:"location,omitempty"`
	BullyingType    string          `db:"bullying_type" json:"bullyingType"`
	PerpetratorInfo PerpetratorInfo `db:"perpetrator_info" json:"perpetratorInfo"`
	EvidenceLinks   pq.StringArray  `db:"evidence_links" json:"evidenceLinks"`
	Description     *string         `db:"description" json:"description,omitempty"`
	Severity        Severity        `db:"severity" json:"severity"`
	Status          ReportStatus    `db:"status" json:"status"`
	IsAnonymous     bool            `db:"is_anonymous" json:"isAnonymous"`
	CreatedAt       time.Time       `db:"created_at" json:"timestamp"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// Redacted returns a copy safe to show to viewer. Anonymous reports hide the
// reporter from everyone except the owner and admins.
func (r Report) Redacted(viewerID string, viewerRole UserRole) Report {
	if !r.IsAnonymous || viewerRole == RoleAdmin {
		return r
	}
	if r.UserID != nil && *r.UserID == viewerID {
		return r
	}
	r.ReporterName = "Anonymous"
	r.UserID = nil
	return r
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	UserID       *string
	Status       *ReportStatus
	Severity     *Severity
	BullyingType string
	City         string
	State        string
	Page         int
	PageSize     int
}

// ReportStats summarises the report collection.
type ReportStats struct {
	Total      int            `json:"total"`
	Pending    int            `json:"pending"`
	Reported   int            `json:"reported"`
	Resolved   int            `json:"resolved"`
	ByType     map[string]int `json:"byType"`
	BySeverity map[string]int `json:"bySeverity"`
}

// MapMarker is a report positioned on the map.
type MapMarker struct {
	ReportID     string       `json:"reportId"`
	Lat          float64      `json:"lat"`
	Lng          float64      `json:"lng"`
	City         string       `json:"city"`
	State        string       `json:"state"`
	BullyingType string       `json:"bullyingType"`
	Severity     Severity     `json:"severity"`
	Status       ReportStatus `json:"status"`
}

func scanJSON(value interface{}, dest interface{}, label string) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
