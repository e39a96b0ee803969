package models

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity is a volunteer or event listing.
type Opportunity struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	URL         *string    `json:"url,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	StartTime   *string    `json:"start_time,omitempty"` // HH:MM
	EndTime     *string    `json:"end_time,omitempty"`   // HH:MM
	Audit
}

// OpportunityDetail is an opportunity with its sponsoring organizations and tags.
type OpportunityDetail struct {
	Opportunity
	Organizations []OrganizationSummary `json:"organizations"`
	Tags          []string              `json:"tags"`
}
