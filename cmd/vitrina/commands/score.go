package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrina/pulso/db"
	"github.com/vitrina/pulso/errors"
	"github.com/vitrina/pulso/logger"
	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scheduler"
	"github.com/vitrina/pulso/scoring"
)

// NewScoreCommand runs scoring operations from the command line
func NewScoreCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Scoring and classification operations",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full scoring pipeline once and exit",
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

			store := metric.NewStore(database)
			engine := scoring.NewEngine(cfg.Scoring.PopularCutoff, cfg.Scoring.FeaturedCutoff)
			pipeline := scheduler.NewPipeline(store, engine, pipelineConfig(cfg), log)

			started := time.Now()
			if err := pipeline.Run(started); err != nil {
				return errors.Wrap(err, "pipeline run failed")
			}

			fmt.Printf("Pipeline completed in %s\n", time.Since(started).Round(time.Millisecond))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a vitrina.toml config file")
	cmd.AddCommand(runCmd)
	return cmd
}
