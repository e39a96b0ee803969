package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit holds attribution columns shared by every entity and pivot row.
type Audit struct {
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `json:"deleted_by,omitempty"`
}

// Trashed reports whether the row is soft-deleted.
func (a Audit) Trashed() bool {
	return a.DeletedAt != nil
}

// StampCreate sets creation and update attribution.
func (a *Audit) StampCreate(by uuid.UUID, at time.Time) {
	a.CreatedAt, a.UpdatedAt = at, at
	a.CreatedBy, a.UpdatedBy = ref(by), ref(by)
}

// StampUpdate sets update attribution.
func (a *Audit) StampUpdate(by uuid.UUID, at time.Time) {
	a.UpdatedAt = at
	a.UpdatedBy = ref(by)
}

// StampDelete marks the row soft-deleted.
func (a *Audit) StampDelete(by uuid.UUID, at time.Time) {
	a.DeletedAt = &at
	a.DeletedBy = ref(by)
	a.StampUpdate(by, at)
}

// StampRestore clears the soft-delete marker.
func (a *Audit) StampRestore(by uuid.UUID, at time.Time) {
	a.DeletedAt = nil
	a.DeletedBy = nil
	a.StampUpdate(by, at)
}

// ref returns nil for uuid.Nil so system actions stay unattributed.
func ref(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
