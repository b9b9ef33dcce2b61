package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// ParseUUID parses a UUID from a path parameter
func ParseUUID(c echo.Context, param string) (uuid.UUID, error) {
	if c.Param(param) == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}
	return utils.ParamUUID(c, param)
}

// GetTenantID extracts the tenant ID from context
func GetTenantID(c echo.Context) (uuid.UUID, error) {
	tenantID, ok, err := appctx.TenantUUID(c.Request().Context())
	if !ok {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if err != nil {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid tenant")
	}
	return tenantID, nil
}

// GetUserID extracts the acting user from context
func GetUserID(c echo.Context) (uuid.UUID, error) {
	userID := appctx.UserUUID(c.Request().Context())
	if userID == nil {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "user required")
	}
	return *userID, nil
}

// ListResponse wraps a page of results
type ListResponse[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
	Take  int   `json:"take"`
	Skip  int   `json:"skip"`
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// optionalUUID parses an optional id. An empty string clears the value.
func optionalUUID(raw *string, field string) (*uuid.UUID, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	if *raw == "" {
		return nil, true, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, true, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a valid UUID", field)
	}
	return &id, true, nil
}
