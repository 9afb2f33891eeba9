package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

func dialChat(t *testing.T, srv *httptest.Server, chatID models.ObjectID, userID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chats/" + chatID.String() + "?user_id=" + userID + "&request_id=" + userID + "-socket"
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ models.EventType) models.Event {
	t.Helper()
	for {
		if ev := readEvent(t, conn); ev.Type == typ {
			return ev
		}
	}
}

func TestSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.e)
	defer srv.Close()

	chatID := env.newChat(t, "alice", true)
	node := env.newNode(t, chatID, "alice", nil, "drag me")

	alice, _, err := dialChat(t, srv, chatID, "alice")
	require.NoError(t, err)
	defer alice.Close()

	self := readEvent(t, alice)
	assert.Equal(t, models.EventUserJoin, self.Type)
	assert.Equal(t, "alice", self.UserID)
	assert.NotEmpty(t, self.UserColor)
	assert.Equal(t, map[string]any{"self": true}, self.Data)

	bob, _, err := dialChat(t, srv, chatID, "bob")
	require.NoError(t, err)

	t.Run("new viewer gets the presence snapshot", func(t *testing.T) {
		first, second := readEvent(t, bob), readEvent(t, bob)
		assert.Equal(t, "alice", first.UserID)
		assert.Equal(t, "bob", second.UserID)
		assert.NotEqual(t, first.UserColor, second.UserColor)
	})

	t.Run("join is announced to others", func(t *testing.T) {
		ev := readEvent(t, alice)
		assert.Equal(t, models.EventUserJoin, ev.Type)
		assert.Equal(t, "bob", ev.UserID)
	})

	t.Run("cursor moves reach other viewers", func(t *testing.T) {
		require.NoError(t, bob.WriteJSON(models.Event{
			Type:     models.EventCursorMove,
			Position: &models.Position{X: 5, Y: 6},
		}))
		ev := readEvent(t, alice)
		assert.Equal(t, models.EventCursorMove, ev.Type)
		assert.Equal(t, "bob", ev.UserID)
		assert.Equal(t, chatID.String(), ev.ChatID)
		require.NotNil(t, ev.Position)
		assert.Equal(t, models.Position{X: 5, Y: 6}, *ev.Position)
	})

	t.Run("drags are live and saved after the quiet period", func(t *testing.T) {
		require.NoError(t, alice.WriteJSON(models.Event{
			Type:     models.EventNodeMove,
			NodeID:   node.ID.String(),
			Position: &models.Position{X: 321, Y: 654},
		}))
		ev := readUntil(t, bob, models.EventNodeMove)
		assert.Equal(t, node.ID.String(), ev.NodeID)
		assert.Equal(t, map[string]any{"dragging": true}, ev.Data)

		assert.Eventually(t, func() bool {
			got, err := env.messages.GetByID(context.Background(), node.ID)
			return err == nil && got.XPosition == 321 && got.YPosition == 654
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("server events are rejected", func(t *testing.T) {
		require.NoError(t, alice.WriteJSON(models.Event{Type: models.EventNodeCreate}))
		ev := readUntil(t, alice, "error")
		assert.Equal(t, models.EventType("error"), ev.Type)
	})

	t.Run("error frames carry the socket request id", func(t *testing.T) {
		require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
		for {
			require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
			var frame map[string]any
			require.NoError(t, alice.ReadJSON(&frame))
			if frame["type"] != "error" {
				continue
			}
			assert.Equal(t, "malformed event", frame["message"])
			assert.Equal(t, "alice-socket", frame["request_id"])
			break
		}
	})

	t.Run("leave is announced when the socket closes", func(t *testing.T) {
		require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
		bob.Close()
		ev := readUntil(t, alice, models.EventUserLeave)
		assert.Equal(t, "bob", ev.UserID)
	})
}

func TestSocketRejectsStrangers(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.e)
	defer srv.Close()

	chatID := env.newChat(t, "alice", false)

	_, resp, err := dialChat(t, srv, chatID, "carol")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chats/" + chatID.String()
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
