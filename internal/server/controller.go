package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// Controllers groups every HTTP handler set the server mounts.
type Controllers struct {
	fx.In

	Chat          *ChatController
	Graph         *GraphController
	Branch        *BranchController
	Collaboration *CollaborationController
	Socket        *SocketHandler
}

func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "mindmap-chat",
	})
}
