package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/ctxval"
)

// Identity headers are set by the authenticating gateway in front of the service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"

	userContextKey = "user"
)

type userKey struct{}

// Identity rejects requests without a caller id and exposes the caller
// through CurrentUser.
func Identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			id := strings.TrimSpace(h.Get(HeaderUserID))
			if id == "" {
				// browsers cannot set headers on websocket upgrades
				id = strings.TrimSpace(c.QueryParam("user_id"))
			}
			if id == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderUserID+" header")
			}
			name := strings.TrimSpace(h.Get(HeaderUserName))
			if name == "" {
				name = c.QueryParam("user_name")
			}
			if name == "" {
				name = id
			}

			user := models.User{ID: id, Name: name}
			c.Set(userContextKey, user)
			ctxval.Set(c.Request().Context(), userKey{}, user)
			return next(c)
		}
	}
}

func CurrentUser(c echo.Context) models.User {
	user, _ := c.Get(userContextKey).(models.User)
	return user
}

// GetUserID returns the caller id once Identity has run, including from
// middleware that wraps it.
func GetUserID(c echo.Context) string {
	if user := CurrentUser(c); user.ID != "" {
		return user.ID
	}
	user, _ := ctxval.Get[userKey, models.User](c.Request().Context(), userKey{})
	return user.ID
}
