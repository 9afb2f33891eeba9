package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/mindmap-chat/pkg/ctxval"
)

const defaultMaxLoggedBody = 4 << 10

type (
	// LogRequestConfig store middleware configuration
	LogRequestConfig struct {
		Logger  Logger
		Skipper Skipper
		// SkipBody disables body capture, for hijacked connections.
		SkipBody func(c echo.Context) bool
		// MaxBodyBytes caps each logged body. Bodies are only logged for
		// failed requests.
		MaxBodyBytes int
	}
	bodyDumpWriter struct {
		http.ResponseWriter
		buf *cappedBuffer
	}
	cappedBuffer struct {
		bytes.Buffer
		limit     int
		truncated bool
	}
)

// LogRequest writes one line per request with its route params, caller and
// request id. The caller is read back from the context bag, so Identity may
// run on a route group inside this middleware.
func LogRequest(config LogRequestConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		panic("Logger is required to use LogRequest")
	}
	if config.Skipper == nil {
		config.Skipper = DefaultSkipper
	}
	if config.SkipBody == nil {
		config.SkipBody = isUpgrade
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxLoggedBody
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			start := time.Now()
			c.SetRequest(c.Request().WithContext(ctxval.Wrap(c.Request().Context())))
			req := c.Request()
			res := c.Response()

			captureBody := !config.SkipBody(c)
			reqBody := &cappedBuffer{limit: config.MaxBodyBytes}
			resBody := &cappedBuffer{limit: config.MaxBodyBytes}
			if captureBody {
				if isJSON(req.Header) && req.Body != nil {
					raw, _ := io.ReadAll(req.Body)
					_, _ = reqBody.Write(raw)
					req.Body = io.NopCloser(bytes.NewReader(raw))
				}
				res.Writer = &bodyDumpWriter{ResponseWriter: res.Writer, buf: resBody}
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			args := make([]any, 0, 32)
			args = append(args,
				"status", res.Status,
				"method", req.Method,
				"route", c.Path(),
				"uri", req.RequestURI,
				"latency_ms", time.Since(start).Milliseconds(),
				"real_ip", c.RealIP(),
				"user_agent", req.UserAgent(),
				"request_id", GetRequestID(c),
			)
			if userID := GetUserID(c); userID != "" {
				args = append(args, "user_id", userID)
			}
			// chat_id, run_id and session_id become top level fields
			for i, name := range c.ParamNames() {
				if values := c.ParamValues(); i < len(values) && values[i] != "" {
					args = append(args, name, values[i])
				}
			}
			if captureBody && res.Status >= http.StatusBadRequest {
				args = reqBody.appendTo(args, "request_body")
				if isJSON(res.Header()) {
					args = resBody.appendTo(args, "response_body")
				}
			}

			const message = "http request"
			switch {
			case res.Status >= 500:
				if err != nil {
					args = append(args, "error", err.Error())
				}
				config.Logger.Errorw(message, args...)
			case res.Status >= 400:
				config.Logger.Warnw(message, args...)
			default:
				config.Logger.Infow(message, args...)
			}
			return err
		}
	}
}

func isJSON(h http.Header) bool {
	return strings.HasPrefix(h.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.Len()
	if room < len(p) {
		b.truncated = true
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

// appendTo logs valid JSON as is and anything else as text.
func (b *cappedBuffer) appendTo(args []any, key string) []any {
	if b.Len() == 0 {
		return args
	}
	if b.truncated {
		return append(args, key, b.String(), key+"_truncated", true)
	}
	if !json.Valid(b.Bytes()) {
		return append(args, key, b.String())
	}
	return append(args, key, json.RawMessage(b.Bytes()))
}

func (w *bodyDumpWriter) Write(p []byte) (int, error) {
	_, _ = w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

func (w *bodyDumpWriter) Flush() {
	w.ResponseWriter.(http.Flusher).Flush()
}

func (w *bodyDumpWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

func isUpgrade(c echo.Context) bool {
	return strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), "websocket")
}
