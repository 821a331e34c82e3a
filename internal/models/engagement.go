package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentRef is an opaque reference to a deal document. The core never
// parses document contents; references exist so the coordinator prompt can
// name what the data room contains.
type DocumentRef struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"` // e.g. "vdr:intralinks" or "upload"
}

// Engagement identifies one due-diligence deal. It is created at setup and
// immutable once analysis begins; re-setup starts a new engagement.
type Engagement struct {
	CreatedAt       time.Time     `json:"created_at"`
	ID              string        `json:"id"`
	CompanyName     string        `json:"company_name"`
	Industry        string        `json:"industry"`
	TargetCloseDate string        `json:"target_close_date,omitempty"`
	TeamLead        string        `json:"team_lead,omitempty"`
	Analyst         string        `json:"analyst,omitempty"`
	Documents       []DocumentRef `json:"documents"`
	DealValueMM     float64       `json:"deal_value_mm,omitempty"`
}

// NewEngagement creates an engagement with a generated ID.
func NewEngagement(companyName, industry string) *Engagement {
	return &Engagement{
		ID:          uuid.NewString(),
		CompanyName: companyName,
		Industry:    industry,
		CreatedAt:   time.Now(),
	}
}

// Validate checks the fields required before analysis can start.
func (e *Engagement) Validate() error {
	if e.CompanyName == "" {
		return fmt.Errorf("engagement missing required field: company_name")
	}
	if len(e.Documents) == 0 {
		return fmt.Errorf("engagement has no documents to analyze")
	}
	return nil
}
