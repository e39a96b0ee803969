package models

import (
	"github.com/google/uuid"
)

// Tag is a name-unique label attached to opportunities and organizations.
type Tag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Audit
}

// TaggableType discriminates the owner of a tag association.
type TaggableType string

const (
	TaggableOpportunity  TaggableType = "opportunity"
	TaggableOrganization TaggableType = "organization"
)
