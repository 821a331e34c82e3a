package database

import (
	"database/sql"
	"time"
)

// EngagementRow is an engagement as stored in the database.
type EngagementRow struct {
	CreatedAt       time.Time
	ID              string
	CompanyName     string
	Industry        string
	TargetCloseDate sql.NullString
	TeamLead        sql.NullString
	Analyst         sql.NullString
	DealValueMM     float64
}

// RunRow is one workflow run as stored in the database. Partial marks runs
// whose aggregation completed with missing stage outputs.
type RunRow struct {
	StartedAt    time.Time
	UpdatedAt    time.Time
	EngagementID string
	RunID        string
	RunDir       string
	State        string
	FailedStage  sql.NullString
	ID           int64
	Partial      bool
}

// RunSummary is one run joined with its engagement and finding counts,
// shaped for listing.
type RunSummary struct {
	StartedAt   time.Time
	UpdatedAt   time.Time
	RunID       string
	RunDir      string
	CompanyName string
	Industry    string
	State       string
	ID          int64
	RedFlags    int
	Partial     bool
}

// FindingRow is one aggregated risk finding as stored in the database.
// AffectedAreas is a JSON array of function names.
type FindingRow struct {
	CreatedAt         time.Time
	FindingID         string
	RiskType          string
	Description       string
	Severity          string
	RecommendedAction string
	Origin            string
	AffectedAreas     string
	ID                int64
	RunID             int64
	CrossFunctional   bool
}

// ReportRow is one generated report as stored in the database. Content is
// the full validated report JSON.
type ReportRow struct {
	CreatedAt         time.Time
	ReportID          string
	ReportDate        sql.NullString
	OverallRiskRating string
	Content           string
	NormalizedEBITDA  float64
	TotalPriceImpact  float64
	ID                int64
	RunID             int64
}

// SeverityCount pairs a severity with its finding count.
type SeverityCount struct {
	Severity string
	Count    int
}
