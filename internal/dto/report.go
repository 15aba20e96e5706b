package dto

import "github.com/noah-isme/cyberguard-api/internal/models"

// LocationInput is the submitted incident location.
type LocationInput struct {
	Lat      *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng      *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	Address  string   `json:"address" validate:"max=255"`
	State    string   `json:"state" validate:"required,max=100"`
	District string   `json:"district" validate:"max=100"`
	City     string   `json:"city" validate:"required,max=100"`
}

// PerpetratorInput describes the reported account.
type PerpetratorInput struct {
	Platform          string `json:"platform" validate:"required,max=60"`
	Username          string `json:"username" validate:"max=120"`
	ProfileURL        string `json:"profileUrl" validate:"omitempty,url"`
	RealName          string `json:"realName" validate:"max=120"`
	ApproximateAge    string `json:"approximateAge" validate:"max=20"`
	AdditionalDetails string `json:"additionalDetails" validate:"max=2000"`
}

// CreateReportRequest is the POST /reports payload.
type CreateReportRequest struct {
	Name            string           `json:"name" validate:"required_unless=IsAnonymous true,max=120"`
	Age             *int             `json:"age" validate:"omitempty,gte=1,lte=120"`
	Location        *LocationInput   `json:"location" validate:"required"`
	BullyingType    string           `json:"bullyingType" validate:"required,max=60"`
	PerpetratorInfo PerpetratorInput `json:"perpetratorInfo"`
	EvidenceLinks   []string         `json:"evidenceLinks" validate:"max=20,dive,required,max=2048"`
	Description     *string          `json:"description" validate:"omitempty,max=5000"`
	Severity        string           `json:"severity" validate:"omitempty,severity"`
	IsAnonymous     bool             `json:"isAnonymous"`
}

// UpdateReportStatusRequest is the PATCH /reports/:id/status payload.
type UpdateReportStatusRequest struct {
	Status string `json:"status" validate:"required,report_status"`
}

// ListReportsQuery captures GET /reports filters.
type ListReportsQuery struct {
	Status       string `form:"status" validate:"omitempty,report_status"`
	Severity     string `form:"severity" validate:"omitempty,severity"`
	BullyingType string `form:"type"`
	City         string `form:"city"`
	State        string `form:"state"`
	Page         int    `form:"page" validate:"gte=0"`
	PageSize     int    `form:"page_size" validate:"gte=0,lte=200"`
}

// EscalateRequest selects reports for POST /critical-areas/escalate, either by
// area or by explicit ids.
type EscalateRequest struct {
	Mode        string   `json:"mode" validate:"omitempty,grouping_mode"`
	LocationKey string   `json:"locationKey" validate:"required_without=ReportIDs"`
	ReportIDs   []string `json:"reportIds" validate:"required_without=LocationKey,max=500"`
	Location    string   `json:"location" validate:"max=200"`
}

// StatusChangeResponse is returned from a status update.
type StatusChangeResponse struct {
	Report  models.Report `json:"report"`
	Changed bool          `json:"changed"`
}
