package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	pkgmdw "github.com/nguyentranbao-ct/mindmap-chat/internal/server/middleware"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/logger"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

// NewEcho builds the router with every route mounted.
func NewEcho(conf *config.Config, ctl Controllers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = pkgmdw.ErrorHandler(logger.MustNamed("http"))

	logConfig := pkgmdw.LogRequestConfig{
		Logger: logger.MustNamed("http"),
		Skipper: func(c echo.Context) bool {
			uri := c.Request().RequestURI
			return uri == "/health" || uri == "/metrics"
		},
	}

	e.Use(pkgmdw.CORS(pkgmdw.OriginPattern(conf.Server.AllowOrigins)))
	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.LogRequest(logConfig))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return nil
		},
	}))

	// /metrics is answered by the Metrics middleware
	e.GET("/health", Health)

	api := e.Group("/api/v1", pkgmdw.Identity())
	// sendBeacon cannot set headers, the page passes ?user_id= like the socket does
	api.POST("/chats/:chat_id/beacon", ctl.Chat.Beacon)
	api.POST("/chats", pkgmdw.WrapHandler(ctl.Chat.CreateChat))
	api.GET("/chats/:chat_id", pkgmdw.WrapHandler(ctl.Chat.GetChat))
	api.PUT("/chats/:chat_id/collaborative", pkgmdw.WrapHandler(ctl.Chat.SetCollaborative))
	api.GET("/chats/:chat_id/activities", pkgmdw.WrapHandler(ctl.Chat.ListActivities))

	api.GET("/chats/:chat_id/graph", pkgmdw.WrapHandler(ctl.Graph.GetGraph))
	api.GET("/chats/:chat_id/messages/:id/context", pkgmdw.WrapHandler(ctl.Graph.GetContext))
	api.POST("/chats/:chat_id/messages", pkgmdw.WrapHandler(ctl.Graph.CreateMessage))
	api.PUT("/chats/:chat_id/positions", pkgmdw.WrapHandler(ctl.Graph.UpdatePositions))
	api.PUT("/chats/:chat_id/messages/:id/flags", pkgmdw.WrapHandler(ctl.Graph.UpdateFlags))
	api.DELETE("/chats/:chat_id/messages/:id", pkgmdw.WrapHandler(ctl.Graph.DeleteMessage))

	api.POST("/chats/:chat_id/branches", pkgmdw.WrapHandler(ctl.Branch.CreateBranch))
	api.GET("/branches/:run_id", pkgmdw.WrapHandler(ctl.Branch.GetRun))
	api.POST("/branches/:run_id/cancel", pkgmdw.WrapHandler(ctl.Branch.CancelRun))

	api.POST("/chats/:chat_id/collaboration/join", pkgmdw.WrapHandler(ctl.Collaboration.Join))
	api.GET("/chats/:chat_id/collaboration", pkgmdw.WrapHandler(ctl.Collaboration.GetSession))
	api.DELETE("/chats/:chat_id/collaboration", pkgmdw.WrapHandler(ctl.Collaboration.EndSession))
	api.PUT("/chats/:chat_id/collaboration/participants/:user_id", pkgmdw.WrapHandler(ctl.Collaboration.SetParticipantRole))
	api.POST("/collaboration/:session_id/heartbeat", pkgmdw.WrapHandler(ctl.Collaboration.Heartbeat))
	api.POST("/collaboration/:session_id/leave", pkgmdw.WrapHandler(ctl.Collaboration.Leave))

	e.GET("/ws/chats/:chat_id", ctl.Socket.Serve, pkgmdw.Identity())
	return e
}

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	ctl Controllers,
) {
	e := NewEcho(conf, ctl)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow(ctx, "starting HTTP server", "addr", conf.Server.Addr)
				if err := e.Start(conf.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
					log.Errorw(ctx, "HTTP server stopped", "error", err)
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
			defer cancel()
			return e.Shutdown(ctx)
		},
	})
}
