package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is one of the fixed platform roles.
type Role string

const (
	RoleAdmin               Role = "admin"
	RoleOrganizationManager Role = "organization_manager"
	RoleUser                Role = "user"
)

// Roles lists every role in display order.
var Roles = []Role{RoleAdmin, RoleOrganizationManager, RoleUser}

// ParseRole converts a role name into a Role.
func ParseRole(name string) (Role, error) {
	for _, r := range Roles {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", name)
}

// User represents a platform user.
type User struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Audit
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID            uuid.UUID             `json:"id"`
	FirstName     string                `json:"first_name"`
	LastName      string                `json:"last_name"`
	Email         string                `json:"email"`
	Organizations []OrganizationSummary `json:"organizations"`
	Roles         []Role                `json:"roles"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Organizations: []OrganizationSummary{},
		Roles:         []Role{},
	}
}
