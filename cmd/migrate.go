// cmd/migrate.go
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/vitovidale/clip-processor-service/infrastructure"
	"github.com/vitovidale/clip-processor-service/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := infrastructure.ConnectPostgres(ctx, cfg.DB.DSN(), cfg.ConnectRetries, logging.WithComponent(logger, "postgres"))
		if err != nil {
			return err
		}
		defer db.Close()
		return infrastructure.Migrate(ctx, db, logging.WithComponent(logger, "migrate"))
	},
}
