package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/abtest/internal/config"
	"example.com/abtest/internal/storage"
	spg "example.com/abtest/internal/storage/postgres"
)

func newMigrateCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			if c.StoreDriver != storage.DriverPostgres {
				return fmt.Errorf("migrate only applies to the %s driver, got %q", storage.DriverPostgres, c.StoreDriver)
			}
			db, err := spg.Connect(cmd.Context(), c.PostgresDSN)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer func() { _ = db.Close(cmd.Context()) }()
			if err := db.RunMigrations(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("db: migrations applied")
			return nil
		},
	}
}
