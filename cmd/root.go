package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/app"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/kafka"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/server"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "mindmap-chat",
	Short:         "Branching conversation graph with realtime collaboration",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		app.Invoke(
			server.StartServer,
			kafka.StartConsumeGraphEvents,
			usecase.StartSessionSweeper,
		).Run()
	},
}

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		logger.MustNamed("cmd").Fatal(err)
	}
}
