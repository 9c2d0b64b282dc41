package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/picgen-bot/internal/config"
	"github.com/suPer8Hu/picgen-bot/internal/observ"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "picgenbot",
		Short:         "Telegram bot that turns prompts into Stable Diffusion images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (defaults to $ENV_FILE)")

	root.AddCommand(
		newServeCmd(&envFile),
		newMigrateCmd(&envFile),
		newTokenCmd(&envFile),
		newEventsCmd(&envFile),
	)
	return root
}

// bootstrap loads configuration and builds the process logger.
func bootstrap(envFile string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}
