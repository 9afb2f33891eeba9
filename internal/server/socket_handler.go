package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/collab"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/realtime"
	pkgmdw "github.com/nguyentranbao-ct/mindmap-chat/internal/server/middleware"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
	closeTimeout   = 5 * time.Second
)

// SocketHandler serves the realtime channel of a chat view.
type SocketHandler struct {
	upgrader    websocket.Upgrader
	cfg         collab.Config
	deps        collab.Deps
	chats       usecase.ChatUsecase
	connections prometheus.Gauge
}

func NewSocketHandler(conf *config.Config, deps collab.Deps, chats usecase.ChatUsecase) (*SocketHandler, error) {
	gauge, err := util.GetGauge("websocket_connections")
	if err != nil {
		return nil, fmt.Errorf("register websocket gauge: %w", err)
	}
	origins := pkgmdw.OriginPattern(conf.Server.AllowOrigins)
	return &SocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.MatchString(origin)
			},
		},
		cfg:         collab.ConfigFrom(conf),
		deps:        deps,
		chats:       chats,
		connections: gauge,
	}, nil
}

// errorFrame reports a rejected client event without closing the socket.
type errorFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type socketClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newSocketClient(conn *websocket.Conn) *socketClient {
	return &socketClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue drops the frame when the peer is not keeping up.
func (s *socketClient) enqueue(ctx context.Context, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Errorw(ctx, "marshal socket frame", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- raw:
	default:
		log.Warnw(ctx, "socket send buffer full, dropping frame")
	}
}

func (s *socketClient) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *socketClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debugw(ctx, "socket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debugw(ctx, "socket ping failed", "error", err)
				return
			}
		}
	}
}

// readPump feeds client events to ctrl until the peer goes away.
func (s *socketClient) readPump(ctx context.Context, ctrl *collab.Controller) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnw(ctx, "socket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var event models.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			s.enqueue(ctx, errorFrame{Type: "error", Message: "malformed event", RequestID: pkgmdw.RequestIDFrom(ctx)})
			continue
		}
		if err := ctrl.Handle(ctx, event); err != nil {
			if errors.Is(err, realtime.ErrClosed) {
				return
			}
			s.enqueue(ctx, errorFrame{Type: "error", Message: err.Error(), RequestID: pkgmdw.RequestIDFrom(ctx)})
		}
	}
}

// Serve upgrades the request and runs the view until the socket closes.
func (h *SocketHandler) Serve(c echo.Context) error {
	chatID := models.ObjectID(c.Param("chat_id"))
	if !chatID.IsValid() {
		return fmt.Errorf("chat id %q: %w", chatID, models.ErrValidation)
	}
	user := pkgmdw.CurrentUser(c)
	reqCtx := c.Request().Context()
	if _, err := h.chats.CanView(reqCtx, chatID, user); err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already answered
		log.Debugw(reqCtx, "websocket upgrade failed", "error", err)
		return nil
	}

	ctx := log.With(context.WithoutCancel(reqCtx), "chat_id", chatID, "user_id", user.ID)
	h.connections.Inc()
	defer h.connections.Dec()

	client := newSocketClient(conn)
	ctrl := collab.NewController(h.cfg, h.deps, chatID, user, func(event models.Event) {
		client.enqueue(ctx, event)
	})
	if err := ctrl.Start(ctx); err != nil {
		log.Errorw(ctx, "start collaboration view", "error", err)
		conn.Close()
		return nil
	}
	log.Infow(ctx, "socket connected")

	// the snapshot tells the new view who is already here
	self := ctrl.Self()
	for _, u := range ctrl.Presence() {
		event := models.Event{
			Type:      models.EventUserJoin,
			ChatID:    chatID.String(),
			UserID:    u.ID,
			UserName:  u.Name,
			UserColor: u.Color,
			Timestamp: u.OnlineAt,
			Position:  u.Cursor,
		}
		if u.ID == self.ID {
			event.Data = map[string]any{"self": true}
		}
		client.enqueue(ctx, event)
	}

	go client.writePump(ctx)
	client.readPump(ctx, ctrl)

	closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()
	if err := ctrl.Close(closeCtx); err != nil {
		log.Warnw(ctx, "close collaboration view", "error", err)
	}
	client.close()
	log.Infow(ctx, "socket disconnected")
	return nil
}
