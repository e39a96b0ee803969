package policy

import (
	"context"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/identity"
)

// ManageUsers gates user administration.
func (e *Engine) ManageUsers(ctx context.Context, a *identity.Actor) error {
	return e.decide(ctx, UserManage, a, nil)
}

// ViewUser allows admins and the user themself.
func (e *Engine) ViewUser(ctx context.Context, a *identity.Actor, userID uuid.UUID) error {
	return e.decide(ctx, UserView, a, func(ctx context.Context, s subject) error {
		if s.actor.UserID == userID {
			return nil
		}
		return deny
	})
}
