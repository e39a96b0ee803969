package models

import (
	"github.com/google/uuid"
)

// Organization sponsors opportunities and groups users.
type Organization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Audit
}

// OrganizationSummary is the short form embedded in other resources.
type OrganizationSummary struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	IsOwner bool      `json:"is_opportunity_owner,omitempty"`
}

// OrganizationDetail is an organization with its members and tags.
type OrganizationDetail struct {
	Organization
	Users []UserPublic `json:"users"`
	Tags  []string     `json:"tags"`
}
