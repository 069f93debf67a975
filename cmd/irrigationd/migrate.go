package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	open := func() (*database.DB, error) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // CLI exit

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // CLI exit

			version, err := db.MigrateDown(cmd.Context())
			if err != nil {
				return err
			}
			if version == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", version)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // CLI exit

			applied, pending, err := db.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range applied {
				fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			for _, m := range pending {
				fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
