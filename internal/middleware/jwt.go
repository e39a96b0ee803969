package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/auth"
	"github.com/evolnow/backend/internal/identity"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/pkg/response"
)

// ContextActor is the key for the authenticated *identity.Actor in gin context.
const ContextActor = "actor"

// UserLookup resolves a token subject to a live user row.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// JWT returns a middleware that validates the bearer token, loads the live
// user and stores the actor in context. Deleted users are rejected.
func JWT(jwtService *auth.JWTService, users UserLookup, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, apperr.MsgUnauthenticated)
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		u, err := users.GetUser(c.Request.Context(), claims.UserID())
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Error("resolve actor", zap.Error(err), zap.String("user_id", claims.UserID().String()))
			}
			response.Unauthorized(c, apperr.MsgUnauthenticated)
			c.Abort()
			return
		}
		c.Set(ContextActor, &identity.Actor{UserID: u.ID, Email: u.Email})
		c.Next()
	}
}

// Actor returns the authenticated actor, or nil.
func Actor(c *gin.Context) *identity.Actor {
	v, ok := c.Get(ContextActor)
	if !ok {
		return nil
	}
	a, _ := v.(*identity.Actor)
	return a
}
