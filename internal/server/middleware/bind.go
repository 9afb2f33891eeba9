package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

// BindAndValidate binds path params, query and body into req and validates it.
// Failures come back as 400 ResponseErrors listing the offending fields.
func BindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return &ResponseError{
				Status:       http.StatusBadRequest,
				Err:          err,
				ErrorCode:    "InvalidArgument",
				ErrorMessage: fmt.Sprint(he.Message),
			}
		}
		return err
	}
	if err := c.Validate(req); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) *ResponseError {
	resp := NewResponseError(fmt.Errorf("%w: %s", models.ErrValidation, err.Error()))

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
		resp.ErrorMessage = strings.Join(msgs, "; ")
		resp.ErrorData = fields
	}
	return resp
}
