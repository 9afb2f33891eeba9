package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandler renders every error as a ResponseError body.
func ErrorHandler(log Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		var resp *ResponseError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &resp):
		case errors.As(err, &he):
			resp = &ResponseError{
				Status:       he.Code,
				Err:          err,
				ErrorMessage: fmt.Sprint(he.Message),
			}
		default:
			resp = NewResponseError(err)
		}

		// quoted back by users reporting a failure
		resp.RequestID = GetRequestID(c)
		if resp.Status == http.StatusNotFound && isNotFoundHandler(c.Handler()) {
			resp.ErrorMessage = "no route matched"
		}
		if resp.Status >= http.StatusInternalServerError {
			log.Errorw("request failed", "uri", c.Request().RequestURI, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(resp.Status)
		} else {
			err = c.JSON(resp.Status, resp)
		}
		if err != nil {
			log.Errorw("could not response", "code", resp.Status, "response_body", resp)
		}
	}
}
