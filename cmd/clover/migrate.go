package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/database"
)

func newMigrateCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(newMigrateUpCmd(load))
	cmd.AddCommand(newMigrateDownCmd(load))
	cmd.AddCommand(newMigrateVersionCmd(load))
	return cmd
}

func withMigrations(ctx context.Context, load loader, fn func(*database.MigrationService, database.DB) error) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(database.NewMigrationService(logger, cfg.Migration()), db)
}

func openDatabase(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = cfg.Database().DSN()
	}
	return database.Open(ctx, dsn, cfg.Database(), logger)
}

func newMigrateUpCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), load, func(ms *database.MigrationService, db database.DB) error {
				return ms.Up(db)
			})
		},
	}
}

func newMigrateDownCmd(load loader) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), load, func(ms *database.MigrationService, db database.DB) error {
				return ms.Down(db, steps)
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	return cmd
}

func newMigrateVersionCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), load, func(ms *database.MigrationService, db database.DB) error {
				version, dirty, err := ms.Version(db)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return err
			})
		},
	}
}
