package admin

import (
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrijs2005/caresync/internal/server/config"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/vectors"
	"github.com/spf13/cobra"
)

func withDB(cmd *cobra.Command, dsn string, fn func(db *sql.DB) error) error {
	db, err := openDB(cmd.Context(), dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	dsn := cfg.DatabaseDSN
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, dsn, func(db *sql.DB) error {
				if err := runMigrations(cmd.Context(), db); err != nil {
					return fmt.Errorf("migrations: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return err
			})
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", dsn, "PostgreSQL DSN")
	return cmd
}

func newClockCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clock",
		Short: "Inspect knowledge vectors",
	}

	dsn, identity := cfg.DatabaseDSN, ""
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the knowledge vector of an identity, or list identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, dsn, func(db *sql.DB) error {
				repo := vectors.NewPostgresRepository(db)
				out := cmd.OutOrStdout()

				if identity == "" {
					ids, err := repo.Identities(cmd.Context())
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(out, id)
					}
					return nil
				}

				kv, err := repo.Load(cmd.Context(), identity)
				if err != nil {
					return err
				}
				for _, p := range slices.Sorted(maps.Keys(kv)) {
					fmt.Fprintf(out, "%s\t%d\n", p, kv[p])
				}
				fmt.Fprintf(out, "max\t%d\n", kv.Max())
				return nil
			})
		},
	}
	show.Flags().StringVar(&dsn, "dsn", dsn, "PostgreSQL DSN")
	show.Flags().StringVar(&identity, "identity", "", "identity to show; all identities are listed when empty")

	cmd.AddCommand(show)
	return cmd
}
