// Package cli implements the persona-chat commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iamvkosarev/persona-chat/config"
	"github.com/iamvkosarev/persona-chat/internal/app"
	"github.com/iamvkosarev/persona-chat/internal/observability"
)

var (
	configPath string
	envFile    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "persona-chat",
	Short:         "Multi-persona Arabic AI chat server and telegram bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
			return err
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "YAML config file (default: environment only)")
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	RootCmd.AddCommand(serveCmd, telegramCmd, personasCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	observability.Configure(cfg.LogLevel)
	return cfg, nil
}

// runApp builds the app and runs fn until SIGINT or SIGTERM. Overrides are
// applied to the loaded config before the app is built.
func runApp(fn func(ctx context.Context, a *app.App) error, overrides ...func(*config.Config)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for _, override := range overrides {
		override(cfg)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		observability.Logger().Error("failed to start", "error", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			observability.Logger().Warn("failed to close app", "error", err)
		}
	}()
	if err = fn(ctx, a); err != nil {
		observability.Logger().Error("stopped with error", "error", err)
	}
	return err
}
