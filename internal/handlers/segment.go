package handlers

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/services"
	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// SegmentHandler handles segment API requests
type SegmentHandler struct {
	segments *services.SegmentService
}

func NewSegmentHandler(segments *services.SegmentService) *SegmentHandler {
	return &SegmentHandler{segments: segments}
}

type CreateSegmentRequest struct {
	Name        string         `json:"name" validate:"required,max=255"`
	Description *string        `json:"description,omitempty"`
	Criteria    map[string]any `json:"criteria"`
}

type UpdateSegmentRequest struct {
	Name        *string         `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string         `json:"description,omitempty"`
	Criteria    *map[string]any `json:"criteria,omitempty"`
}

// RegisterRoutes registers the segment routes
func (h *SegmentHandler) RegisterRoutes(g *echo.Group) {
	segments := g.Group("/segments")
	segments.POST("", h.Create)
	segments.GET("", h.List)
	segments.GET("/:id", h.Get)
	segments.PUT("/:id", h.Update)
	segments.DELETE("/:id", h.Delete)
	segments.GET("/:id/members", h.Members)
}

// Create handles POST /segments
func (h *SegmentHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[CreateSegmentRequest](c)
	if err != nil {
		return err
	}

	segment, err := h.segments.Create(ctx, tenantID, clover.SegmentCreateInput{
		Name:        req.Name,
		Description: req.Description,
		Criteria:    req.Criteria,
	})
	if err != nil {
		return err
	}

	return CreatedResponse(c, segment)
}

// List handles GET /segments
func (h *SegmentHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	page, err := utils.ParsePage(c)
	if err != nil {
		return err
	}

	segments, err := h.segments.List(ctx, tenantID, page)
	if err != nil {
		return err
	}

	return SuccessResponse(c, segments)
}

// Get handles GET /segments/:id
func (h *SegmentHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	segment, err := h.segments.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, segment)
}

// Update handles PUT /segments/:id
func (h *SegmentHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[UpdateSegmentRequest](c)
	if err != nil {
		return err
	}

	in := clover.SegmentUpdateInput{Name: req.Name, Criteria: req.Criteria}
	if req.Description != nil {
		in.Description = &sql.Null[string]{V: *req.Description, Valid: *req.Description != ""}
	}

	segment, err := h.segments.Update(ctx, tenantID, id, in)
	if err != nil {
		return err
	}

	return SuccessResponse(c, segment)
}

// Delete handles DELETE /segments/:id
func (h *SegmentHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.segments.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// Members handles GET /segments/:id/members
func (h *SegmentHandler) Members(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	page, err := utils.ParsePage(c)
	if err != nil {
		return err
	}

	members, err := h.segments.Members(ctx, tenantID, id, page)
	if err != nil {
		return err
	}

	return SuccessResponse(c, ListResponse[clover.Client]{Data: members.Clients, Total: members.Total, Take: members.Take, Skip: members.Skip})
}
