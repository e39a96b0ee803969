package opportunities

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/middleware"
	"github.com/evolnow/backend/pkg/response"
)

// Handler handles opportunity HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an opportunities handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// UpsertRequest is the body for POST /admin/opportunities and PUT /admin/opportunities/:id.
type UpsertRequest struct {
	Name            string       `json:"name" binding:"required,max=255"`
	Description     string       `json:"description"`
	URL             *string      `json:"url" binding:"omitempty,url,max=2048"`
	StartDate       *string      `json:"start_date"`
	EndDate         *string      `json:"end_date"`
	StartTime       *string      `json:"start_time"`
	EndTime         *string      `json:"end_time"`
	OrganizationIDs *[]uuid.UUID `json:"organization_ids"`
	TagNames        *[]string    `json:"tag_names" binding:"omitempty,dive,max=255"`
}

// TagRequest is the body for the single tag endpoints.
type TagRequest struct {
	TagName string `json:"tag_name" binding:"required,max=255"`
}

// SearchRequest is the body for the public search.
type SearchRequest struct {
	Filters []Filter `json:"filters"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

func (r UpsertRequest) input() (Input, error) {
	in := Input{
		Name:            r.Name,
		Description:     r.Description,
		URL:             r.URL,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		OrganizationIDs: r.OrganizationIDs,
		TagNames:        r.TagNames,
	}
	var err error
	if in.StartDate, err = parseDate(r.StartDate); err != nil {
		return in, err
	}
	if in.EndDate, err = parseDate(r.EndDate); err != nil {
		return in, err
	}
	return in, nil
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List handles GET /admin/opportunities.
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	result, err := h.svc.List(c.Request.Context(), middleware.Actor(c), ListParams{
		Search:      c.Query("search"),
		Name:        c.Query("name"),
		Description: c.Query("description"),
		Sort:        c.DefaultQuery("sort", "created_at"),
		Direction:   c.DefaultQuery("direction", "desc"),
		Page:        page,
		PerPage:     perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Show handles GET /admin/opportunities/:id.
func (h *Handler) Show(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	o, err := h.svc.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// Create handles POST /admin/opportunities.
func (h *Handler) Create(c *gin.Context) {
	var body UpsertRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Unprocessable(c, "invalid request: "+err.Error())
		return
	}
	in, err := body.input()
	if err != nil {
		response.Unprocessable(c, "dates must use the YYYY-MM-DD format")
		return
	}
	o, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, o)
}

// Update handles PUT /admin/opportunities/:id.
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
	in, err := body.input()
	if err != nil {
		response.Unprocessable(c, "dates must use the YYYY-MM-DD format")
		return
	}
	o, err := h.svc.Update(c.Request.Context(), middleware.Actor(c), id, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// Delete handles DELETE /admin/opportunities/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Opportunity deleted."})
}

// Restore handles POST /admin/opportunities/:id/restore.
func (h *Handler) Restore(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	o, err := h.svc.Restore(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// AttachOrganization handles POST /admin/opportunities/:id/organizations/:organizationId.
func (h *Handler) AttachOrganization(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	orgID, ok := paramID(c, "organizationId")
	if !ok {
		return
	}
	o, err := h.svc.AttachOrganization(c.Request.Context(), middleware.Actor(c), id, orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// DetachOrganization handles DELETE /admin/opportunities/:id/organizations/:organizationId.
func (h *Handler) DetachOrganization(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	orgID, ok := paramID(c, "organizationId")
	if !ok {
		return
	}
	o, err := h.svc.DetachOrganization(c.Request.Context(), middleware.Actor(c), id, orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// AddTag handles POST /admin/opportunities/:id/tags.
func (h *Handler) AddTag(c *gin.Context) {
	h.tag(c, true)
}

// RemoveTag handles DELETE /admin/opportunities/:id/tags.
func (h *Handler) RemoveTag(c *gin.Context) {
	h.tag(c, false)
}

func (h *Handler) tag(c *gin.Context, add bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body TagRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Unprocessable(c, "tag_name required")
		return
	}
	var (
		o   any
		err error
	)
	if add {
		o, err = h.svc.AddTag(c.Request.Context(), middleware.Actor(c), id, body.TagName)
	} else {
		o, err = h.svc.RemoveTag(c.Request.Context(), middleware.Actor(c), id, body.TagName)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// Search handles the public GET /opportunities (query filters) and
// POST /opportunities/search (JSON filters).
func (h *Handler) Search(c *gin.Context) {
	var body SearchRequest
	if c.Request.Method == "POST" {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	} else {
		body.Page, _ = strconv.Atoi(c.Query("page"))
		body.PerPage, _ = strconv.Atoi(c.Query("per_page"))
		for _, field := range []string{"name", "description", "organization", "tags"} {
			for _, v := range c.QueryArray(field) {
				body.Filters = append(body.Filters, Filter{Field: field, Value: v})
			}
		}
		if v := c.Query("start_date"); v != "" {
			body.Filters = append(body.Filters, Filter{Field: "start_date", Value: v, Operator: c.Query("start_date_operator")})
		}
	}
	result, err := h.svc.Search(c.Request.Context(), body.Filters, body.Page, body.PerPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
