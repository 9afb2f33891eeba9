package server

import (
	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/mindmap-chat/internal/server/middleware"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
)

type CollaborationController struct {
	collab usecase.CollaborationUsecase
	chats  usecase.ChatUsecase
}

func NewCollaborationController(collab usecase.CollaborationUsecase, chats usecase.ChatUsecase) *CollaborationController {
	return &CollaborationController{
		collab: collab,
		chats:  chats,
	}
}

type sessionRequest struct {
	SessionID models.ObjectID `param:"session_id"`
}

type participantRoleRequest struct {
	ChatID models.ObjectID        `param:"chat_id" json:"-" validate:"required,objectid"`
	UserID string                 `param:"user_id" json:"-" validate:"required"`
	Role   models.ParticipantRole `json:"role" validate:"required,oneof=collaborator viewer"`
}

func (ctl *CollaborationController) Join(c echo.Context, req chatIDRequest) (any, error) {
	return ctl.collab.Join(c.Request().Context(), req.ChatID, pkgmdw.CurrentUser(c))
}

func (ctl *CollaborationController) Heartbeat(c echo.Context, req sessionRequest) error {
	if !req.SessionID.IsValid() {
		return models.ErrSessionIDRequired
	}
	return ctl.collab.Heartbeat(c.Request().Context(), req.SessionID, pkgmdw.CurrentUser(c))
}

func (ctl *CollaborationController) Leave(c echo.Context, req sessionRequest) error {
	if !req.SessionID.IsValid() {
		return models.ErrSessionIDRequired
	}
	return ctl.collab.Leave(c.Request().Context(), req.SessionID, pkgmdw.CurrentUser(c))
}

func (ctl *CollaborationController) EndSession(c echo.Context, req chatIDRequest) error {
	return ctl.collab.EndSession(c.Request().Context(), req.ChatID, pkgmdw.CurrentUser(c))
}

// GetSession answers 404 when the chat has no live session or the lookup
// timed out.
func (ctl *CollaborationController) GetSession(c echo.Context, req chatIDRequest) (any, error) {
	ctx := c.Request().Context()
	if err := viewCheck(ctx, ctl.chats, req.ChatID, pkgmdw.CurrentUser(c)); err != nil {
		return nil, err
	}
	sess, ok := ctl.collab.ActiveSession(ctx, req.ChatID)
	if !ok {
		return nil, models.ErrNoActiveSession
	}
	return sess, nil
}

func (ctl *CollaborationController) SetParticipantRole(c echo.Context, req participantRoleRequest) error {
	return ctl.collab.SetParticipantRole(c.Request().Context(), req.ChatID, pkgmdw.CurrentUser(c), req.UserID, req.Role)
}
