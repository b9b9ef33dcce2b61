package utils

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	if err := c.Bind(&v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	if v, err := Validate(v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	return v, nil
}

// ParamUUID parses a path parameter as a UUID.
func ParamUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: %q is not a uuid", name, c.Param(name))
	}
	return id, nil
}

// Page is the take/skip window of a list request.
type Page struct {
	Take int
	Skip int
}

// ParsePage reads take and skip from the query string. Take defaults to DefaultPageSize and is capped at MaxPageSize.
func ParsePage(c echo.Context) (Page, error) {
	page := Page{Take: DefaultPageSize}
	if raw := c.QueryParam("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, httperror.NewHTTPErrorf(http.StatusBadRequest, "take must be a positive integer, got %q", raw)
		}
		page.Take = min(n, MaxPageSize)
	}
	if raw := c.QueryParam("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, httperror.NewHTTPErrorf(http.StatusBadRequest, "skip must be a non-negative integer, got %q", raw)
		}
		page.Skip = n
	}
	return page, nil
}
