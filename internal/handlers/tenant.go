package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// TenantHandler manages tenants. Its routes are not tenant scoped.
type TenantHandler struct {
	db     *clover.DB
	logger ectologger.Logger
}

func NewTenantHandler(db *clover.DB, logger ectologger.Logger) *TenantHandler {
	return &TenantHandler{db: db, logger: logger}
}

type CreateTenantRequest struct {
	Name     string         `json:"name" validate:"required,max=255"`
	Slug     string         `json:"slug" validate:"required,max=100"`
	Status   string         `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE SUSPENDED ARCHIVED"`
	Settings map[string]any `json:"settings,omitempty"`
}

type UpdateTenantRequest struct {
	Name     *string         `json:"name,omitempty" validate:"omitempty,max=255"`
	Slug     *string         `json:"slug,omitempty" validate:"omitempty,max=100"`
	Status   *string         `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE SUSPENDED ARCHIVED"`
	Settings *map[string]any `json:"settings,omitempty"`
}

// RegisterRoutes registers the tenant routes
func (h *TenantHandler) RegisterRoutes(g *echo.Group) {
	tenants := g.Group("/tenants")
	tenants.POST("", h.Create)
	tenants.GET("", h.List)
	tenants.GET("/:id", h.Get)
	tenants.PUT("/:id", h.Update)
	tenants.DELETE("/:id", h.Delete)
}

// Create handles POST /tenants
func (h *TenantHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[CreateTenantRequest](c)
	if err != nil {
		return err
	}

	tenant, err := h.db.Tenant.Create(ctx, clover.CreateArgs[clover.Tenant]{
		Data: clover.TenantCreateInput{
			Name:     req.Name,
			Slug:     req.Slug,
			Status:   clover.TenantStatus(req.Status),
			Settings: req.Settings,
		},
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenant.ID, "slug": tenant.Slug}).Info("tenant created")
	return CreatedResponse(c, tenant)
}

// List handles GET /tenants
func (h *TenantHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	page, err := utils.ParsePage(c)
	if err != nil {
		return err
	}

	var where clover.Predicate[clover.Tenant]
	if status := c.QueryParam("status"); status != "" {
		where = clover.TenantFields.Status.Equals(clover.TenantStatus(status))
	}

	tenants, err := h.db.Tenant.FindMany(ctx, clover.FindManyArgs[clover.Tenant]{
		Where:   where,
		OrderBy: []clover.OrderBy[clover.Tenant]{clover.TenantFields.Name.Asc()},
		Take:    page.Take,
		Skip:    page.Skip,
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, tenants)
}

// Get handles GET /tenants/:id
func (h *TenantHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	tenant, err := h.db.Tenant.FindUniqueOrThrow(ctx, clover.FindUniqueArgs[clover.Tenant]{
		Where: clover.TenantWhereUnique{ID: id},
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, tenant)
}

// Update handles PUT /tenants/:id
func (h *TenantHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[UpdateTenantRequest](c)
	if err != nil {
		return err
	}

	in := clover.TenantUpdateInput{Name: req.Name, Slug: req.Slug, Settings: req.Settings}
	if req.Status != nil {
		in.Status = clover.Ptr(clover.TenantStatus(*req.Status))
	}

	tenant, err := h.db.Tenant.Update(ctx, clover.UpdateArgs[clover.Tenant]{
		Where: clover.TenantWhereUnique{ID: id},
		Data:  in,
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, tenant)
}

// Delete handles DELETE /tenants/:id. Tenant data is removed by cascade.
func (h *TenantHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.db.Tenant.Delete(ctx, clover.DeleteArgs[clover.Tenant]{
		Where:  clover.TenantWhereUnique{ID: id},
		Select: []clover.ColumnRef[clover.Tenant]{clover.TenantFields.ID},
	}); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": id}).Info("tenant deleted")
	return NoContentResponse(c)
}
