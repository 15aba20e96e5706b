package models

// Coordinates is a lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TypeCount is the per bullying type tally inside an area.
type TypeCount struct {
	Type     string   `json:"type"`
	Count    int      `json:"count"`
	Severity Severity `json:"severity"`
	Critical bool     `json:"critical"`
}

// CriticalArea is a location cluster large enough to warrant attention.
type CriticalArea struct {
	LocationKey   string       `json:"locationKey"`
	Label         string       `json:"location"`
	City          string       `json:"city"`
	State         string       `json:"state,omitempty"`
	Type          *string      `json:"type,omitempty"`
	Count         int          `json:"count"`
	Severity      Severity     `json:"severity"`
	ReportIDs     []string     `json:"reportIds"`
	Reports       []Report     `json:"reports,omitempty"`
	TypeBreakdown []TypeCount  `json:"criticalTypes"`
	Center        *Coordinates `json:"center,omitempty"`
}

// CriticalAreaAnalysis is the output of one analysis pass.
type CriticalAreaAnalysis struct {
	Mode            string         `json:"mode"`
	Areas           []CriticalArea `json:"areas"`
	TotalReports    int            `json:"totalReports"`
	AnalyzedReports int            `json:"analyzedReports"`
	SkippedReports  int            `json:"skippedReports"`
}

// CriticalPattern is a bullying type seen often enough to escalate.
type CriticalPattern struct {
	Type      string   `json:"type"`
	Count     int      `json:"count"`
	ReportIDs []string `json:"reportIds"`
}

// EscalationResult summarises an attempt to forward reports to the authorities.
type EscalationResult struct {
	Success          bool              `json:"success"`
	ReportedCount    int               `json:"reportedCount"`
	FailedCount      int               `json:"failedCount"`
	SkippedCount     int               `json:"skippedCount"`
	FailedReportIDs  []string          `json:"failedReportIds,omitempty"`
	Message          string            `json:"message"`
	PortalURL        string            `json:"portalUrl,omitempty"`
	CriticalPatterns []CriticalPattern `json:"criticalPatterns,omitempty"`
	Location         string            `json:"location"`
	Forwarded        bool              `json:"forwarded"`
}
