package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
)

// OriginPattern compiles allowed origins into one pattern. "*" matches any
// origin and a leading "*." matches any subdomain.
func OriginPattern(origins []string) *regexp.Regexp {
	parts := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
			continue
		case o == "*":
			return regexp.MustCompile(`^.+$`)
		case strings.Contains(o, "*."):
			parts = append(parts, strings.Replace(regexp.QuoteMeta(o), `\*\.`, `([a-z0-9-]+\.)+`, 1))
		default:
			parts = append(parts, regexp.QuoteMeta(o))
		}
	}
	if len(parts) == 0 {
		return regexp.MustCompile(`$^`)
	}
	return regexp.MustCompile(`^(` + strings.Join(parts, "|") + `)$`)
}

// CORS return echo middleware that handle cors with regexp pattern
func CORS(pattern *regexp.Regexp) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			respHeader := c.Response().Header()
			respHeader.Set("Vary", "Origin")

			origin := c.Request().Header.Get("Origin")
			if origin == "" || !pattern.MatchString(origin) {
				return next(c)
			}

			respHeader.Set("Access-Control-Allow-Origin", origin)
			if c.Request().Method == http.MethodOptions {
				respHeader.Set("Access-Control-Allow-Headers", strings.Join([]string{
					echo.HeaderContentType, HeaderUserID, HeaderUserName, HeaderRequestID,
				}, ", "))
				respHeader.Set("Access-Control-Allow-Methods", "OPTIONS, POST, PUT, DELETE, GET")
				respHeader.Set("Access-Control-Expose-Headers", HeaderRequestID)
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
