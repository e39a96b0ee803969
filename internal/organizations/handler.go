package organizations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/middleware"
	"github.com/evolnow/backend/pkg/response"
)

// Handler handles organization HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an organizations handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// UpsertRequest is the body for POST /admin/organizations and PUT /admin/organizations/:id.
type UpsertRequest struct {
	Name        string       `json:"name" binding:"required,max=255"`
	Description string       `json:"description"`
	UserIDs     *[]uuid.UUID `json:"user_ids"`
	TagNames    *[]string    `json:"tag_names" binding:"omitempty,dive,max=255"`
}

func (r UpsertRequest) input() Input {
	return Input{Name: r.Name, Description: r.Description, UserIDs: r.UserIDs, TagNames: r.TagNames}
}

// List handles GET /admin/organizations. Returns organizations the actor belongs to, or all for admins.
func (h *Handler) List(c *gin.Context) {
	orgs, err := h.svc.List(c.Request.Context(), middleware.Actor(c), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, orgs)
}

// Show handles GET /admin/organizations/:id.
func (h *Handler) Show(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	org, err := h.svc.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// Create handles POST /admin/organizations.
func (h *Handler) Create(c *gin.Context) {
	var body UpsertRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Unprocessable(c, "invalid request: "+err.Error())
		return
	}
	org, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, org)
}

// Update handles PUT /admin/organizations/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body UpsertRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Unprocessable(c, "invalid request: "+err.Error())
		return
	}
	org, err := h.svc.Update(c.Request.Context(), middleware.Actor(c), id, body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// Delete handles DELETE /admin/organizations/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Organization deleted."})
}

// Restore handles POST /admin/organizations/:id/restore.
func (h *Handler) Restore(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	org, err := h.svc.Restore(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// AttachUser handles POST /admin/organizations/:id/users/:userId.
func (h *Handler) AttachUser(c *gin.Context) {
	h.member(c, true)
}

// DetachUser handles DELETE /admin/organizations/:id/users/:userId.
func (h *Handler) DetachUser(c *gin.Context) {
	h.member(c, false)
}

func (h *Handler) member(c *gin.Context, add bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	var (
		org any
		err error
	)
	if add {
		org, err = h.svc.AttachUser(c.Request.Context(), middleware.Actor(c), id, userID)
	} else {
		org, err = h.svc.DetachUser(c.Request.Context(), middleware.Actor(c), id, userID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
