package main

import (
	"errors"

	"github.com/spf13/cobra"

	"deal_aggregator/internal/storage/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for run history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return errors.New("database is disabled in config")
			}

			db, err := connectDB(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return postgres.Migrate(db, logger)
		},
	}
}
