package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dualauth-server/src/config"
	schema "dualauth-server/src/db"
)

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := config.DatabaseURL(v)
			if err != nil {
				return err
			}
			pool, err := schema.Connect(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := schema.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			slog.Info("Database is up to date", "version", schema.ExpectedSchemaVersion())
			return nil
		},
	}
}
