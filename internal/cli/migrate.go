package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"permaudit.io/internal/config"
	"permaudit.io/internal/migrate"
	"permaudit.io/internal/store/pg"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the state database schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "database-url", "", "PostgreSQL DSN (defaults to "+config.EnvName("database.url")+")")

	withMigrator := func(fn func(cmd *cobra.Command, m *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(dsn)
			if url == "" {
				url = os.Getenv(config.EnvName("database.url"))
			}
			if url == "" {
				return errors.New("--database-url or " + config.EnvName("database.url") + " is required")
			}
			st, err := pg.Open(url)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = st.Close() }()
			return fn(cmd, st.Migrator())
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Manager) error {
				if err := m.Up(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Manager) error {
				if err := m.Down(cmd.Context()); err != nil {
					if errors.Is(err, migrate.ErrNothingApplied) {
						fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
						return nil
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back last migration")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Manager) error {
				applied, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				if root.jsonOutput {
					if applied == nil {
						applied = []string{}
					}
					return writeJSON(cmd.OutOrStdout(), map[string]any{"applied": applied})
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				for _, name := range applied {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}),
		},
	)
	return cmd
}
