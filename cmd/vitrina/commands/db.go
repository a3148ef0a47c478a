package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitrina/pulso/db"
	"github.com/vitrina/pulso/errors"
	"github.com/vitrina/pulso/logger"
	"github.com/vitrina/pulso/metric"
)

// NewDBCommand groups database maintenance subcommands
func NewDBCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			log := logger.Logger

			database, err := db.Open(cfg.Database.Path, log)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.Migrate(database, log); err != nil {
				return errors.Wrap(err, "failed to migrate database")
			}

			fmt.Println("Migrations applied")
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print row counts for the main tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			log := logger.Logger

			database, err := db.Open(cfg.Database.Path, log)
			if err != nil {
				return err
			}
			defer database.Close()

			store := metric.NewStore(database)
			items, metrics, events, err := store.Stats()
			if err != nil {
				return err
			}

			fmt.Printf("catalog_items: %d\n", items)
			fmt.Printf("item_metrics:  %d\n", metrics)
			fmt.Printf("click_events:  %d\n", events)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a vitrina.toml config file")
	cmd.AddCommand(migrateCmd)
	cmd.AddCommand(statsCmd)
	return cmd
}
