package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

var (
	DefaultSkipper = func(c echo.Context) bool {
		return false
	}
)

type Skipper func(c echo.Context) bool

type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
	Debugw(template string, args ...any)
	Infow(template string, args ...any)
	Warnw(template string, args ...any)
	Errorw(template string, args ...any)
}

type Response struct {
	Status       int    `json:"-"`
	Success      bool   `json:"success"`
	Data         any    `json:"data,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorData    any    `json:"error_data,omitempty"`
}

type ResponseError struct {
	Status       int    `json:"-"`
	Err          error  `json:"-"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorData    any    `json:"error_data,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("status: %d, code: %s; message: %+v", e.Status, e.ErrorCode, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

var codeStatus = map[codes.Code]int{
	codes.InvalidArgument:  http.StatusBadRequest,
	codes.NotFound:         http.StatusNotFound,
	codes.PermissionDenied: http.StatusForbidden,
	codes.Unauthenticated:  http.StatusUnauthorized,
	codes.AlreadyExists:    http.StatusConflict,
	codes.DeadlineExceeded: http.StatusGatewayTimeout,
	codes.Canceled:         499,
}

// NewResponseError maps a domain error to its HTTP status. Internal errors
// keep their detail out of the body.
func NewResponseError(err error) *ResponseError {
	code := models.Code(err)
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	resp := &ResponseError{
		Status:    status,
		Err:       err,
		ErrorCode: code.String(),
	}
	if status == http.StatusInternalServerError {
		resp.ErrorMessage = http.StatusText(status)
	} else {
		resp.ErrorMessage = errorMessage(err)
	}
	return resp
}

// errorMessage drops the rpc prefix of the status error in err's chain.
func errorMessage(err error) string {
	msg := err.Error()
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		st := se.GRPCStatus()
		msg = strings.Replace(msg, st.Err().Error(), st.Message(), 1)
	}
	return msg
}
