package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/services"
	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// InteractionHandler handles the interactions of a client
type InteractionHandler struct {
	db *clover.DB
}

func NewInteractionHandler(db *clover.DB) *InteractionHandler {
	return &InteractionHandler{db: db}
}

type CreateInteractionRequest struct {
	Type            string         `json:"type" validate:"required,oneof=CALL EMAIL MEETING NOTE TASK"`
	Subject         string         `json:"subject" validate:"required,max=255"`
	Notes           *string        `json:"notes,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty" validate:"omitempty,min=0"`
	OccurredAt      *time.Time     `json:"occurred_at,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// InteractionStats summarises a client's interactions by type.
type InteractionStats struct {
	Type           clover.InteractionType `json:"type"`
	Count          int64                  `json:"count"`
	AvgDuration    *float64               `json:"avg_duration_minutes,omitempty"`
	LastOccurredAt any                    `json:"last_occurred_at,omitempty"`
}

// RegisterRoutes registers the interaction routes
func (h *InteractionHandler) RegisterRoutes(g *echo.Group) {
	interactions := g.Group("/clients/:client_id/interactions")
	interactions.POST("", h.Create)
	interactions.GET("", h.List)
	interactions.GET("/stats", h.Stats)
}

// Create handles POST /clients/:client_id/interactions. The acting user is recorded as the author.
func (h *InteractionHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	clientID, err := ParseUUID(c, "client_id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[CreateInteractionRequest](c)
	if err != nil {
		return err
	}

	in := clover.InteractionCreateInput{
		TenantID:        tenantID,
		ClientID:        clientID,
		UserID:          userID,
		Type:            clover.InteractionType(req.Type),
		Subject:         req.Subject,
		Notes:           req.Notes,
		DurationMinutes: req.DurationMinutes,
		Metadata:        req.Metadata,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}

	var interaction *clover.Interaction
	err = h.db.Transaction(ctx, func(ctx context.Context) error {
		if err := h.requireClient(ctx, tenantID, clientID); err != nil {
			return err
		}
		if err := services.RequireTenantUser(ctx, h.db, tenantID, userID, "user"); err != nil {
			return err
		}
		interaction, err = h.db.Interaction.Create(ctx, clover.CreateArgs[clover.Interaction]{Data: in})
		return err
	})
	if err != nil {
		return err
	}

	return CreatedResponse(c, interaction)
}

// List handles GET /clients/:client_id/interactions?type=CALL
func (h *InteractionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	clientID, err := ParseUUID(c, "client_id")
	if err != nil {
		return err
	}

	page, err := utils.ParsePage(c)
	if err != nil {
		return err
	}

	where := clover.And(
		clover.InteractionFields.TenantID.Equals(tenantID),
		clover.InteractionFields.ClientID.Equals(clientID),
	)
	if t := c.QueryParam("type"); t != "" {
		where = clover.And(where, clover.InteractionFields.Type.Equals(clover.InteractionType(t)))
	}

	interactions, err := h.db.Interaction.FindMany(ctx, clover.FindManyArgs[clover.Interaction]{
		Where:   where,
		OrderBy: []clover.OrderBy[clover.Interaction]{clover.InteractionFields.OccurredAt.Desc()},
		Take:    page.Take,
		Skip:    page.Skip,
		Include: []clover.Include[clover.Interaction]{
			clover.InteractionRelations.User.Include(clover.IncludeOneArgs[clover.User]{
				Select: []clover.ColumnRef[clover.User]{clover.UserFields.ID, clover.UserFields.FirstName, clover.UserFields.LastName},
			}),
		},
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, interactions)
}

// Stats handles GET /clients/:client_id/interactions/stats
func (h *InteractionHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	clientID, err := ParseUUID(c, "client_id")
	if err != nil {
		return err
	}

	groups, err := h.db.Interaction.GroupBy(ctx, clover.GroupByArgs[clover.Interaction]{
		By: []clover.ColumnRef[clover.Interaction]{clover.InteractionFields.Type},
		Aggregations: clover.Aggregations[clover.Interaction]{
			CountAll: true,
			Avg:      []clover.ColumnRef[clover.Interaction]{clover.InteractionFields.DurationMinutes},
			Max:      []clover.ColumnRef[clover.Interaction]{clover.InteractionFields.OccurredAt},
		},
		Where: clover.And(
			clover.InteractionFields.TenantID.Equals(tenantID),
			clover.InteractionFields.ClientID.Equals(clientID),
		),
		OrderBy: []clover.OrderBy[clover.Interaction]{clover.CountAll[clover.Interaction]().Desc()},
	})
	if err != nil {
		return err
	}

	stats := make([]InteractionStats, 0, len(groups))
	for _, g := range groups {
		t, _ := g.Fields["type"].(string)
		stats = append(stats, InteractionStats{
			Type:           clover.InteractionType(t),
			Count:          g.CountAll(),
			AvgDuration:    g.Avg["duration_minutes"],
			LastOccurredAt: g.Max["occurred_at"],
		})
	}

	return SuccessResponse(c, stats)
}

func (h *InteractionHandler) requireClient(ctx context.Context, tenantID, clientID uuid.UUID) error {
	_, err := h.db.Client.FindUniqueOrThrow(ctx, clover.FindUniqueArgs[clover.Client]{
		Where:  clover.ClientWhereUnique{ID: clientID, And: clover.ClientFields.TenantID.Equals(tenantID)},
		Select: []clover.ColumnRef[clover.Client]{clover.ClientFields.ID},
	})
	return err
}
