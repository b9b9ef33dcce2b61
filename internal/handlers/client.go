package handlers

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/services"
	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

const defaultRecentInteractions = 10

// ClientHandler handles client API requests
type ClientHandler struct {
	clients *services.ClientService
}

func NewClientHandler(clients *services.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

type CreateClientRequest struct {
	CompanyName  string         `json:"company_name" validate:"required,max=255"`
	ContactName  *string        `json:"contact_name,omitempty" validate:"omitempty,max=255"`
	Email        *string        `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string        `json:"phone,omitempty" validate:"omitempty,max=50"`
	Status       string         `json:"status,omitempty" validate:"omitempty,oneof=LEAD PROSPECT ACTIVE INACTIVE CHURNED"`
	AssignedToID *string        `json:"assigned_to_id,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// UpdateClientRequest only changes the fields present. An empty string clears a nullable field.
type UpdateClientRequest struct {
	CompanyName  *string         `json:"company_name,omitempty" validate:"omitempty,min=1,max=255"`
	ContactName  *string         `json:"contact_name,omitempty" validate:"omitempty,max=255"`
	Email        *string         `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string         `json:"phone,omitempty" validate:"omitempty,max=50"`
	Status       *string         `json:"status,omitempty" validate:"omitempty,oneof=LEAD PROSPECT ACTIVE INACTIVE CHURNED"`
	AssignedToID *string         `json:"assigned_to_id,omitempty"`
	Tags         *[]string       `json:"tags,omitempty"`
	CustomFields *map[string]any `json:"custom_fields,omitempty"`
}

// RegisterRoutes registers the client routes
func (h *ClientHandler) RegisterRoutes(g *echo.Group) {
	clients := g.Group("/clients")
	clients.POST("", h.Create)
	clients.GET("", h.List)
	clients.GET("/:id", h.Get)
	clients.PUT("/:id", h.Update)
	clients.DELETE("/:id", h.Delete)
}

// Create handles POST /clients
func (h *ClientHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[CreateClientRequest](c)
	if err != nil {
		return err
	}

	assignee, _, err := optionalUUID(req.AssignedToID, "assigned_to_id")
	if err != nil {
		return err
	}

	client, err := h.clients.Create(ctx, tenantID, clover.ClientCreateInput{
		AssignedToID: assignee,
		CompanyName:  req.CompanyName,
		ContactName:  req.ContactName,
		Email:        req.Email,
		Phone:        req.Phone,
		Status:       clover.ClientStatus(req.Status),
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
	})
	if err != nil {
		return err
	}

	return CreatedResponse(c, client)
}

// List handles GET /clients?status=ACTIVE,LEAD&assigned_to=&search=&tag=
func (h *ClientHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	page, err := utils.ParsePage(c)
	if err != nil {
		return err
	}

	filter := services.ClientFilter{
		Search: strings.TrimSpace(c.QueryParam("search")),
		Tag:    c.QueryParam("tag"),
	}
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := clover.ClientStatus(strings.ToUpper(strings.TrimSpace(s)))
			if err := utils.ValidateValue(string(status), "oneof=LEAD PROSPECT ACTIVE INACTIVE CHURNED"); err != nil {
				return BadRequest("invalid status: " + s)
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if raw := c.QueryParam("assigned_to"); raw != "" {
		if filter.AssignedToID, _, err = optionalUUID(&raw, "assigned_to"); err != nil {
			return err
		}
	}

	clients, total, err := h.clients.List(ctx, tenantID, filter, page)
	if err != nil {
		return err
	}

	return SuccessResponse(c, ListResponse[clover.Client]{Data: clients, Total: total, Take: page.Take, Skip: page.Skip})
}

// Get handles GET /clients/:id?interactions=N
func (h *ClientHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	recent := defaultRecentInteractions
	if raw := c.QueryParam("interactions"); raw != "" {
		if recent, err = strconv.Atoi(raw); err != nil || recent < 0 {
			return BadRequest("interactions must be a non-negative integer")
		}
	}

	client, err := h.clients.Get(ctx, tenantID, id, recent)
	if err != nil {
		return err
	}

	return SuccessResponse(c, client)
}

// Update handles PUT /clients/:id
func (h *ClientHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[UpdateClientRequest](c)
	if err != nil {
		return err
	}

	in := clover.ClientUpdateInput{
		CompanyName:  req.CompanyName,
		ContactName:  nullable(req.ContactName),
		Email:        nullable(req.Email),
		Phone:        nullable(req.Phone),
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
	}
	if req.Status != nil {
		in.Status = clover.Ptr(clover.ClientStatus(*req.Status))
	}
	assignee, present, err := optionalUUID(req.AssignedToID, "assigned_to_id")
	if err != nil {
		return err
	}
	if present {
		in.AssignedToID = clover.SetNull[uuid.UUID]()
		if assignee != nil {
			in.AssignedToID = clover.NullOf(*assignee)
		}
	}

	client, err := h.clients.Update(ctx, tenantID, id, in)
	if err != nil {
		return err
	}

	return SuccessResponse(c, client)
}

// Delete handles DELETE /clients/:id
func (h *ClientHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.clients.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

func nullable(s *string) *sql.Null[string] {
	if s == nil {
		return nil
	}
	if *s == "" {
		return clover.SetNull[string]()
	}
	return clover.NullOf(*s)
}
