package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/dosewatch/internal/adapters/repository"
	"github.com/okian/dosewatch/pkg/logger"
)

var errNoDatabase = errors.New("migrate: database_dsn is not set")

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.DatabaseDSN == "" {
				return errNoDatabase
			}

			db, err := repository.Open(cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := repository.Migrate(ctx, db); err != nil {
				return err
			}
			logger.Get().Info(ctx, "schema applied")
			return nil
		},
	}
}
