package handlers

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/services"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// NotificationHandler serves the acting user's notifications
type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// RegisterRoutes registers the notification routes
func (h *NotificationHandler) RegisterRoutes(g *echo.Group) {
	notifications := g.Group("/notifications")
	notifications.GET("", h.List)
	notifications.GET("/unread-count", h.UnreadCount)
	notifications.POST("/read-all", h.MarkAllRead)
	notifications.POST("/:id/read", h.MarkRead)
}

// List handles GET /notifications?unread=true
func (h *NotificationHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	page, err := utils.ParsePage(c)
	if err != nil {
		return err
	}

	var unread bool
	if raw := c.QueryParam("unread"); raw != "" {
		if unread, err = strconv.ParseBool(raw); err != nil {
			return BadRequest("unread must be a boolean")
		}
	}

	notifications, err := h.notifications.List(ctx, tenantID, userID, unread, page)
	if err != nil {
		return err
	}

	return SuccessResponse(c, notifications)
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	n, err := h.notifications.UnreadCount(ctx, tenantID, userID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]int64{"unread": n})
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	notification, err := h.notifications.MarkRead(ctx, tenantID, userID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, notification)
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	n, err := h.notifications.MarkAllRead(ctx, tenantID, userID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]int64{"updated": n})
}
