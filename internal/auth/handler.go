package auth

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/pkg/response"
	"github.com/evolnow/backend/pkg/utils"
)

// LoginRequest is the body for POST /login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      models.UserPublic `json:"user"`
}

// Users is the lookup the login flow needs.
type Users interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users  Users
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users Users, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, jwt: jwt, logger: logger}
}

// Login handles POST /login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if user.Password == "" || !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, exp, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	roles, err := h.users.UserRoles(c.Request.Context(), user.ID)
	if err != nil {
		response.Internal(c, "failed to load roles")
		return
	}
	if len(roles) == 0 {
		roles = []models.Role{models.RoleUser}
	}
	pub := user.ToPublic()
	pub.Roles = roles
	h.logger.Info("user logged in", zap.String("user_id", user.ID.String()))
	response.OK(c, TokenResponse{Token: token, ExpiresAt: exp, User: pub})
}
