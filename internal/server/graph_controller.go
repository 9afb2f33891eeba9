package server

import (
	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/mindmap-chat/internal/server/middleware"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
)

type GraphController struct {
	graph usecase.GraphUsecase
	chats usecase.ChatUsecase
}

func NewGraphController(graph usecase.GraphUsecase, chats usecase.ChatUsecase) *GraphController {
	return &GraphController{
		graph: graph,
		chats: chats,
	}
}

type nodeRequest struct {
	ChatID models.ObjectID `param:"chat_id" validate:"required,objectid"`
	NodeID models.ObjectID `param:"id" validate:"required,objectid"`
}

type createMessageRequest struct {
	ChatID     models.ObjectID  `param:"chat_id" json:"-" validate:"required,objectid"`
	ParentID   *models.ObjectID `json:"parent_id" validate:"omitempty,objectid"`
	Role       models.Role      `json:"role" validate:"required,oneof=user assistant"`
	Content    string           `json:"content" validate:"required"`
	Model      *string          `json:"model"`
	BranchName *string          `json:"branch_name"`
	NodeType   models.NodeType  `json:"node_type" validate:"omitempty,oneof=conversation branching_point insight"`
	Position   *models.Position `json:"position"`
}

type updatePositionsRequest struct {
	ChatID  models.ObjectID         `param:"chat_id" json:"-" validate:"required,objectid"`
	Updates []models.PositionUpdate `json:"updates" validate:"required,min=1,dive"`
}

type updateFlagsRequest struct {
	ChatID      models.ObjectID `param:"chat_id" json:"-" validate:"required,objectid"`
	NodeID      models.ObjectID `param:"id" json:"-" validate:"required,objectid"`
	IsCollapsed *bool           `json:"is_collapsed"`
	IsLocked    *bool           `json:"is_locked"`
}

func (ctl *GraphController) GetGraph(c echo.Context, req chatIDRequest) (any, error) {
	ctx := c.Request().Context()
	if err := viewCheck(ctx, ctl.chats, req.ChatID, pkgmdw.CurrentUser(c)); err != nil {
		return nil, err
	}
	forest, err := ctl.graph.Forest(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	return forest.View(), nil
}

func (ctl *GraphController) GetContext(c echo.Context, req nodeRequest) (any, error) {
	ctx := c.Request().Context()
	if err := viewCheck(ctx, ctl.chats, req.ChatID, pkgmdw.CurrentUser(c)); err != nil {
		return nil, err
	}
	return ctl.graph.ConversationContext(ctx, req.ChatID, req.NodeID)
}

func (ctl *GraphController) CreateMessage(c echo.Context, req createMessageRequest) (any, error) {
	return ctl.graph.CreateNode(c.Request().Context(), pkgmdw.CurrentUser(c), usecase.CreateNodeParams{
		ChatID:     req.ChatID,
		ParentID:   req.ParentID,
		Role:       req.Role,
		Content:    req.Content,
		Model:      req.Model,
		BranchName: req.BranchName,
		NodeType:   req.NodeType,
		Position:   req.Position,
	})
}

func (ctl *GraphController) UpdatePositions(c echo.Context, req updatePositionsRequest) error {
	return ctl.graph.UpdatePositions(c.Request().Context(), pkgmdw.CurrentUser(c), req.ChatID, req.Updates)
}

func (ctl *GraphController) UpdateFlags(c echo.Context, req updateFlagsRequest) (any, error) {
	return ctl.graph.UpdateFlags(c.Request().Context(), pkgmdw.CurrentUser(c), req.ChatID, req.NodeID, models.FlagsUpdate{
		IsCollapsed: req.IsCollapsed,
		IsLocked:    req.IsLocked,
	})
}

func (ctl *GraphController) DeleteMessage(c echo.Context, req nodeRequest) (any, error) {
	deleted, err := ctl.graph.DeleteSubtree(c.Request().Context(), pkgmdw.CurrentUser(c), req.ChatID, req.NodeID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}
