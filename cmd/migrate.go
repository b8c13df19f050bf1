package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
	"github.com/vibast-solutions/ms-go-locks/app/state"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL lock tables",
	Long:  "Create the lease and fencing token tables used by the MySQL lock backend.",
	Run:   runMigrate,
}

// init registers the migrate command.
func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) {
	cfg, logger := loadConfig()
	if cfg.MySQLDSN == "" {
		logger.Fatal("MYSQL_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := state.OpenMySQL(ctx, mysqlOptions(cfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := lock.NewMySQLStore(db).Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
	logger.Info("Lock tables ready")
}
