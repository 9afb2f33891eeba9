package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/collab"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/kafka"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/server"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/logger"
)

func Invoke(funcs ...any) *fx.App {
	log := logger.MustNamed("app")
	conf := config.MustLoad()
	log.Infow("config loaded",
		"database_driver", conf.Database.Driver,
		"redis", len(conf.Redis.Addrs) > 0,
		"kafka", conf.Kafka.Enabled,
	)
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			newStores,
			newTransport,
			newBroadcaster,
			newGenkitClient,
			newGenerator,
			kafka.NewGraphEventPublisher,

			usecase.NewChatUsecase,
			usecase.NewCollaborationUsecase,
			usecase.NewGraphUsecase,
			usecase.NewBranchUsecase,

			collab.NewRegistry,
			newCollabDeps,

			server.NewChatController,
			server.NewGraphController,
			newBranchController,
			server.NewCollaborationController,
			server.NewSocketHandler,
		),
		fx.Supply(conf),
		fx.Invoke(funcs...),
	)
}
