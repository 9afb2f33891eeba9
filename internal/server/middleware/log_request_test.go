package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type logLine struct {
	level  string
	fields map[string]any
}

type recordingLogger struct {
	nopLogger
	mu    sync.Mutex
	lines []logLine
}

func (l *recordingLogger) record(level string, args []any) {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[args[i].(string)] = args[i+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, fields: fields})
}

func (l *recordingLogger) Infow(_ string, args ...any)  { l.record("info", args) }
func (l *recordingLogger) Warnw(_ string, args ...any)  { l.record("warn", args) }
func (l *recordingLogger) Errorw(_ string, args ...any) { l.record("error", args) }

func (l *recordingLogger) last(t *testing.T) logLine {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.lines)
	return l.lines[len(l.lines)-1]
}

func TestLogRequest(t *testing.T) {
	logs := &recordingLogger{}
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(nopLogger{})
	e.Use(RequestID())
	e.Use(LogRequest(LogRequestConfig{Logger: logs, MaxBodyBytes: 64}))

	type titleRequest struct {
		ChatID models.ObjectID `param:"chat_id" json:"-"`
		Title  string          `json:"title" validate:"max=5"`
	}
	api := e.Group("/api", Identity())
	api.PUT("/chats/:chat_id", WrapHandler(func(c echo.Context, req titleRequest) (any, error) {
		return map[string]string{"title": req.Title}, nil
	}))

	chatID := models.NewObjectID()
	send := func(userID, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/chats/"+chatID.String(), strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(HeaderRequestID, "trace-7")
		if userID != "" {
			req.Header.Set(HeaderUserID, userID)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	t.Run("caller set by an inner group is logged", func(t *testing.T) {
		rec := send("alice", `{"title":"plan"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		line := logs.last(t)
		assert.Equal(t, "info", line.level)
		assert.Equal(t, "alice", line.fields["user_id"])
		assert.Equal(t, chatID.String(), line.fields["chat_id"])
		assert.Equal(t, "trace-7", line.fields["request_id"])
		assert.Equal(t, "/api/chats/:chat_id", line.fields["route"])
		// successful bodies stay out of the log
		assert.NotContains(t, line.fields, "request_body")
	})

	t.Run("failed requests log their bodies", func(t *testing.T) {
		rec := send("alice", `{"title":"far too long"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		line := logs.last(t)
		assert.Equal(t, "warn", line.level)
		assert.Equal(t, json.RawMessage(`{"title":"far too long"}`), line.fields["request_body"])
		assert.Contains(t, line.fields, "response_body")
	})

	t.Run("large bodies are cut", func(t *testing.T) {
		rec := send("alice", `{"title":"`+strings.Repeat("x", 100)+`"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		line := logs.last(t)
		body, ok := line.fields["request_body"].(string)
		require.True(t, ok)
		assert.Len(t, body, 64)
		assert.Equal(t, true, line.fields["request_body_truncated"])
	})

	t.Run("anonymous callers", func(t *testing.T) {
		rec := send("", `{"title":"plan"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		line := logs.last(t)
		assert.Equal(t, "warn", line.level)
		assert.NotContains(t, line.fields, "user_id")
	})
}
