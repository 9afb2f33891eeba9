package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/mindmap-chat/internal/server/middleware"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/util"
)

const beaconTimeout = 2 * time.Second

type ChatController struct {
	chats       usecase.ChatUsecase
	broadcaster usecase.Broadcaster
}

func NewChatController(chats usecase.ChatUsecase, broadcaster usecase.Broadcaster) *ChatController {
	return &ChatController{
		chats:       chats,
		broadcaster: broadcaster,
	}
}

type chatIDRequest struct {
	ChatID models.ObjectID `param:"chat_id" validate:"required,objectid"`
}

type createChatRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type setCollaborativeRequest struct {
	ChatID          models.ObjectID `param:"chat_id" json:"-" validate:"required,objectid"`
	IsCollaborative *bool           `json:"is_collaborative" validate:"required"`
}

type listActivitiesRequest struct {
	ChatID models.ObjectID `param:"chat_id" validate:"required,objectid"`
	Limit  int             `query:"limit" validate:"gte=0"`
}

func (ctl *ChatController) CreateChat(c echo.Context, req createChatRequest) (any, error) {
	chat, err := ctl.chats.CreateChat(c.Request().Context(), pkgmdw.CurrentUser(c), req.Title)
	if err != nil {
		return nil, err
	}
	return &pkgmdw.Response{Status: http.StatusCreated, Success: true, Data: chat}, nil
}

func (ctl *ChatController) GetChat(c echo.Context, req chatIDRequest) (any, error) {
	return ctl.chats.CanView(c.Request().Context(), req.ChatID, pkgmdw.CurrentUser(c))
}

func (ctl *ChatController) SetCollaborative(c echo.Context, req setCollaborativeRequest) error {
	return ctl.chats.SetCollaborative(c.Request().Context(), req.ChatID, pkgmdw.CurrentUser(c), *req.IsCollaborative)
}

func (ctl *ChatController) ListActivities(c echo.Context, req listActivitiesRequest) (any, error) {
	ctx := c.Request().Context()
	if _, err := ctl.chats.CanView(ctx, req.ChatID, pkgmdw.CurrentUser(c)); err != nil {
		return nil, err
	}
	return ctl.chats.ListActivities(ctx, req.ChatID, req.Limit)
}

// Beacon re-publishes the user_leave a closing page sends on behalf of the
// caller. The body only selects the event type. It always answers 204 so the
// page can unload.
func (ctl *ChatController) Beacon(c echo.Context) error {
	var event models.Event
	if err := c.Bind(&event); err != nil {
		log.Debugw(c.Request().Context(), "ignoring malformed beacon", "error", err)
		return c.NoContent(http.StatusNoContent)
	}
	chatID := models.ObjectID(c.Param("chat_id"))
	if event.Type != models.EventUserLeave || !chatID.IsValid() {
		return c.NoContent(http.StatusNoContent)
	}

	user := pkgmdw.CurrentUser(c)
	ctx, cancel := util.NewTimeoutContext(c.Request().Context(), beaconTimeout)
	go func() {
		defer cancel()
		if err := viewCheck(ctx, ctl.chats, chatID, user); err != nil {
			log.Debugw(ctx, "ignoring beacon", "chat_id", chatID, "user_id", user.ID, "error", err)
			return
		}
		ctl.broadcaster.Broadcast(ctx, models.Event{
			Type:      models.EventUserLeave,
			ChatID:    chatID.String(),
			UserID:    user.ID,
			UserName:  user.Name,
			Timestamp: time.Now(),
		})
	}()
	return c.NoContent(http.StatusNoContent)
}

func viewCheck(ctx context.Context, chats usecase.ChatUsecase, chatID models.ObjectID, user models.User) error {
	_, err := chats.CanView(ctx, chatID, user)
	return err
}
