package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

// HeaderRequestID is accepted from callers and echoed on every response.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 64

type requestIDKey struct{}

// RequestID tags the request context, its log lines and the response with an
// id. A caller supplied id is kept when it is a short token. Browsers opening
// a socket or sending a beacon pass it as ?request_id=.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := pickRequestID(c)
			ctx := context.WithValue(c.Request().Context(), requestIDKey{}, id)
			ctx = log.With(ctx, "request_id", id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(HeaderRequestID, id)
			return next(c)
		}
	}
}

func pickRequestID(c echo.Context) string {
	for _, id := range []string{c.Request().Header.Get(HeaderRequestID), c.QueryParam("request_id")} {
		if validRequestID(id) {
			return id
		}
	}
	return uuid.NewString()
}

// validRequestID accepts ids that are safe to log and echo back verbatim.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// RequestIDFrom returns the id RequestID put on ctx. Detached contexts keep it.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func GetRequestID(c echo.Context) string {
	return RequestIDFrom(c.Request().Context())
}
