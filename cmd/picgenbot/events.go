package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/picgen-bot/internal/genlog"
	"github.com/suPer8Hu/picgen-bot/internal/store/rabbitmq"
	"go.uber.org/zap"
)

func newEventsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Drain generation events from RabbitMQ into the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.RabbitURL == "" {
				return errors.New("RABBIT_URL is required")
			}

			consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.EventWorkers, logger)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("event consumer started",
				zap.String("queue", cfg.RabbitQueue),
				zap.Int("workers", cfg.EventWorkers),
			)
			audit := logger.Named("audit")
			return consumer.Run(ctx, func(_ context.Context, ev genlog.GenerationEvent) error {
				audit.Info("generation",
					zap.Uint64("entry_id", ev.EntryID),
					zap.Uint64("identity_id", ev.IdentityID),
					zap.Int64("chat_id", ev.ChatID),
					zap.String("handle", ev.Handle),
					zap.String("kind", string(ev.Kind)),
					zap.String("artifact", ev.ArtifactName),
					zap.String("prompt", ev.Prompt),
					zap.Time("created_at", ev.CreatedAt),
				)
				return nil
			})
		},
	}
}
