package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
)

// quietPrefixes are scraped or polled often enough that successful requests are not logged.
var quietPrefixes = []string{"/metrics", "/api/v1/health"}

// Logger writes one line per request once the error handler has set the final status. 5xx
// responses log at error, 4xx at warn. Successful requests to quietPrefixes are skipped.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			if res.Status < http.StatusBadRequest && quiet(req.URL.Path) {
				return nil
			}

			ctx := req.Context()
			fields := map[string]any{
				"request_id":  context.GetRequestID(ctx),
				"method":      req.Method,
				"route":       c.Path(),
				"uri":         req.RequestURI,
				"status":      res.Status,
				"remote_ip":   c.RealIP(),
				"user_agent":  req.UserAgent(),
				"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
				"bytes_in":    req.ContentLength,
				"bytes_out":   res.Size,
			}
			if tenantID := context.GetTenantID(ctx); tenantID != "" {
				fields["tenant_id"] = tenantID
			}
			if userID := context.GetUserID(ctx); userID != "" {
				fields["user_id"] = userID
			}

			entry := logger.WithContext(ctx).WithFields(fields)
			switch {
			case res.Status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case res.Status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}

func quiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
