package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/database"
)

var migrateDatabaseURL string

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply or roll back the embedded schema migrations.

Examples:
  admission migrate up
  admission migrate down
  admission migrate version --database-url postgres://localhost/admission`,
	}
	cmd.PersistentFlags().StringVar(&migrateDatabaseURL, "database-url", "", "database URL (defaults to DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveDatabaseURL()
			if err != nil {
				return err
			}
			return runMigrationsUp(url, newLogger("text"))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Down(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})
	return cmd
}

// resolveDatabaseURL prefers --database-url, then DATABASE_URL from the
// environment or .env. Migrations need nothing else from the config.
func resolveDatabaseURL() (string, error) {
	if migrateDatabaseURL != "" {
		return migrateDatabaseURL, nil
	}
	_ = godotenv.Load()
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", errors.New("DATABASE_URL is required (or pass --database-url)")
}

func openMigrator() (*database.Migrator, error) {
	url, err := resolveDatabaseURL()
	if err != nil {
		return nil, err
	}
	return database.NewMigrator(url)
}

func runMigrationsUp(databaseURL string, logger *slog.Logger) error {
	m, err := database.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	changed, err := m.Up()
	if err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	if changed {
		logger.Info("migrations applied", "version", version)
	} else {
		logger.Info("schema up to date", "version", version)
	}
	return nil
}
