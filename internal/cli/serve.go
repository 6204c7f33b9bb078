package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/iamvkosarev/persona-chat/config"
	"github.com/iamvkosarev/persona-chat/internal/app"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(
			func(ctx context.Context, a *app.App) error {
				return a.RunServer(ctx)
			},
			func(cfg *config.Config) {
				if serveAddr != "" {
					cfg.HTTP.Addr = serveAddr
				}
			},
		)
	},
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the telegram bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(func(ctx context.Context, a *app.App) error {
			return a.RunTelegram(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (overrides HTTP_ADDR)")
}
