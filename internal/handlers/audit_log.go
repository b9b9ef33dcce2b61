package handlers

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// AuditLogHandler exposes the tenant's audit trail
type AuditLogHandler struct {
	db *clover.DB
}

func NewAuditLogHandler(db *clover.DB) *AuditLogHandler {
	return &AuditLogHandler{db: db}
}

// AuditStat counts audit rows per entity and action.
type AuditStat struct {
	Entity string    `json:"entity"`
	Action string    `json:"action"`
	Count  int64     `json:"count"`
	Last   time.Time `json:"last_at"`
}

// RegisterRoutes registers the audit log routes
func (h *AuditLogHandler) RegisterRoutes(g *echo.Group) {
	logs := g.Group("/audit-logs")
	logs.GET("", h.List)
	logs.GET("/stats", h.Stats)
}

// filter reads entity, action, entity_id, user_id and since from the query string.
func (h *AuditLogHandler) filter(c echo.Context) (clover.Predicate[clover.AuditLog], error) {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return nil, err
	}

	preds := []clover.Predicate[clover.AuditLog]{clover.AuditLogFields.TenantID.Equals(tenantID)}
	if v := c.QueryParam("entity"); v != "" {
		preds = append(preds, clover.AuditLogFields.Entity.Equals(v))
	}
	if v := c.QueryParam("action"); v != "" {
		preds = append(preds, clover.AuditLogFields.Action.Equals(v))
	}
	if v := c.QueryParam("entity_id"); v != "" {
		preds = append(preds, clover.AuditLogFields.EntityID.Equals(v))
	}
	if v := c.QueryParam("user_id"); v != "" {
		userID, _, err := optionalUUID(&v, "user_id")
		if err != nil {
			return nil, err
		}
		preds = append(preds, clover.AuditLogFields.UserID.Equals(*userID))
	}
	if v := c.QueryParam("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, BadRequest("since must be an RFC3339 timestamp")
		}
		preds = append(preds, clover.AuditLogFields.CreatedAt.Gte(since))
	}
	return clover.And(preds...), nil
}

// List handles GET /audit-logs
func (h *AuditLogHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	where, err := h.filter(c)
	if err != nil {
		return err
	}

	page, err := utils.ParsePage(c)
	if err != nil {
		return err
	}

	logs, err := h.db.AuditLog.FindMany(ctx, clover.FindManyArgs[clover.AuditLog]{
		Where:   where,
		OrderBy: []clover.OrderBy[clover.AuditLog]{clover.AuditLogFields.CreatedAt.Desc()},
		Take:    page.Take,
		Skip:    page.Skip,
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, logs)
}

// Stats handles GET /audit-logs/stats
func (h *AuditLogHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	where, err := h.filter(c)
	if err != nil {
		return err
	}

	groups, err := h.db.AuditLog.GroupBy(ctx, clover.GroupByArgs[clover.AuditLog]{
		By:    []clover.ColumnRef[clover.AuditLog]{clover.AuditLogFields.Entity, clover.AuditLogFields.Action},
		Where: where,
		Aggregations: clover.Aggregations[clover.AuditLog]{
			CountAll: true,
			Max:      []clover.ColumnRef[clover.AuditLog]{clover.AuditLogFields.CreatedAt},
		},
		OrderBy: []clover.OrderBy[clover.AuditLog]{
			clover.CountAll[clover.AuditLog]().Desc(),
			clover.AuditLogFields.Entity.Asc(),
			clover.AuditLogFields.Action.Asc(),
		},
	})
	if err != nil {
		return err
	}

	stats := make([]AuditStat, 0, len(groups))
	for _, g := range groups {
		stat := AuditStat{Count: g.CountAll()}
		stat.Entity, _ = g.Fields["entity"].(string)
		stat.Action, _ = g.Fields["action"].(string)
		stat.Last, _ = g.Max["created_at"].(time.Time)
		stats = append(stats, stat)
	}

	return SuccessResponse(c, stats)
}
