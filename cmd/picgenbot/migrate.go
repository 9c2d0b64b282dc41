package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/picgen-bot/internal/db"
	"go.uber.org/zap"
)

func newMigrateCmd(envFile *string) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			gdb, err := db.Connect(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close(gdb)

			if rollback {
				if err := db.RollbackLast(gdb); err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				logger.Info("rolled back last migration")
				return nil
			}
			if err := db.Migrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", zap.String("database", redactDSN(cfg.DatabaseURL)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "undo the most recent migration instead")
	return cmd
}
