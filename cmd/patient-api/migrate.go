package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/platform/db"
)

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, err := openMigrator(*configPath)
			if err != nil {
				return err
			}
			defer mg.Close()

			count, err := mg.Up()
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, err := openMigrator(*configPath)
			if err != nil {
				return err
			}
			defer mg.Close()

			statuses, err := mg.Status()
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	})

	return cmd
}

func openMigrator(configPath string) (*db.Migrator, error) {
	s, err := loadSettings(configPath)
	if err != nil {
		return nil, err
	}
	return db.NewMigrator(s.Database.URL)
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %s\n", "VERSION", "NAME", "STATUS")
	fmt.Fprintln(out, "---------- ---------------------------------------- ----------")
	for _, s := range statuses {
		status := "pending"
		if s.Applied {
			status = "applied"
		}
		fmt.Fprintf(out, "%-10d %-40s %s\n", s.Version, s.Name, status)
	}
}
