package models

import (
	"github.com/google/uuid"
)

// PivotState is the lifecycle of an association row.
type PivotState int

const (
	PivotActive PivotState = iota
	PivotRevoked
)

func (s PivotState) String() string {
	if s == PivotRevoked {
		return "revoked"
	}
	return "active"
}

// Pivot is one many-to-many association row. Rows are never physically
// removed: detach revokes, attach restores the same row.
type Pivot struct {
	ID      uuid.UUID `json:"id"`
	LeftID  uuid.UUID `json:"left_id"`
	RightID uuid.UUID `json:"right_id"`
	IsOwner bool      `json:"is_owner,omitempty"`
	Audit
}

// State returns Active when the delete marker is unset.
func (p Pivot) State() PivotState {
	if p.DeletedAt != nil {
		return PivotRevoked
	}
	return PivotActive
}
