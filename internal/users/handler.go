package users

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/middleware"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/pkg/response"
)

// Handler handles user HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a users handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// UpsertRequest is the body for POST /admin/users and PUT /admin/users/:id.
type UpsertRequest struct {
	FirstName       string       `json:"first_name" binding:"required,max=255"`
	LastName        string       `json:"last_name" binding:"required,max=255"`
	Email           string       `json:"email" binding:"required,email,max=255"`
	Password        string       `json:"password" binding:"omitempty,min=8"`
	OrganizationIDs *[]uuid.UUID `json:"organization_ids"`
	Roles           *[]string    `json:"roles"`
}

func (r UpsertRequest) input() (Input, error) {
	in := Input{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Password:        r.Password,
		OrganizationIDs: r.OrganizationIDs,
	}
	if r.Roles != nil {
		roles := make([]models.Role, 0, len(*r.Roles))
		for _, name := range *r.Roles {
			role, err := models.ParseRole(name)
			if err != nil {
				return Input{}, err
			}
			roles = append(roles, role)
		}
		in.Roles = &roles
	}
	return in, nil
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	u, err := h.svc.Me(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

// List handles GET /admin/users.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Show handles GET /admin/users/:id.
func (h *Handler) Show(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

// Create handles POST /admin/users.
func (h *Handler) Create(c *gin.Context) {
	in, ok := bind(c)
	if !ok {
		return
	}
	u, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, u)
}

// Update handles PUT /admin/users/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	in, ok := bind(c)
	if !ok {
		return
	}
	u, err := h.svc.Update(c.Request.Context(), middleware.Actor(c), id, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

// Delete handles DELETE /admin/users/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "User deleted."})
}

// AttachOrganization handles POST /admin/users/:id/organizations/:organizationId.
func (h *Handler) AttachOrganization(c *gin.Context) {
	h.membership(c, true)
}

// DetachOrganization handles DELETE /admin/users/:id/organizations/:organizationId.
func (h *Handler) DetachOrganization(c *gin.Context) {
	h.membership(c, false)
}

func (h *Handler) membership(c *gin.Context, add bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	orgID, ok := paramID(c, "organizationId")
	if !ok {
		return
	}
	var (
		u   *models.UserPublic
		err error
	)
	if add {
		u, err = h.svc.AttachOrganization(c.Request.Context(), middleware.Actor(c), id, orgID)
	} else {
		u, err = h.svc.DetachOrganization(c.Request.Context(), middleware.Actor(c), id, orgID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

func bind(c *gin.Context) (Input, bool) {
	var body UpsertRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Unprocessable(c, "invalid request: "+err.Error())
		return Input{}, false
	}
	in, err := body.input()
	if err != nil {
		response.Unprocessable(c, err.Error())
		return Input{}, false
	}
	return in, true
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
