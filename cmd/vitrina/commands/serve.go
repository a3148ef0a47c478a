// Package commands holds the vitrina CLI subcommands.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrina/pulso/config"
	"github.com/vitrina/pulso/db"
	"github.com/vitrina/pulso/errors"
	"github.com/vitrina/pulso/logger"
	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scheduler"
	"github.com/vitrina/pulso/scoring"
	"github.com/vitrina/pulso/server"
)

// NewServeCommand starts the full engine: scheduler, daily trigger, admin server
func NewServeCommand() *cobra.Command {
	var configPath string
	var noTrigger bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin server, scheduler and daily trigger",
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

			sched := scheduler.New(store, engine, schedulerConfig(cfg), log)
			pipeline := scheduler.NewPipeline(store, engine, pipelineConfig(cfg), log)

			var trigger *scheduler.DailyTrigger
			if !noTrigger {
				trigger, err = scheduler.NewDailyTrigger(sched, pipeline, scheduler.TriggerConfig{
					FireAt:   cfg.Trigger.FireAt,
					Timezone: cfg.Trigger.Timezone,
				}, log)
				if err != nil {
					return err
				}
				trigger.Start(context.Background())
				defer trigger.Stop()
			}

			sched.Start()
			defer sched.Stop()

			// Live tuning reload when a config file is present
			if configPath != "" {
				watcher, err := config.NewWatcher(configPath)
				if err != nil {
					log.Warnw("Config watcher unavailable", "error", err)
				} else {
					watcher.OnReload(func(newCfg *config.Config) error {
						sched.SetConfig(schedulerConfig(newCfg))
						return nil
					})
					watcher.Start()
					defer watcher.Stop()
				}
			}

			srv := server.New(cfg, store, sched, pipeline, trigger, log)

			// Shut down cleanly on interrupt
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				log.Infow("Shutting down", "signal", sig.String())
				srv.Shutdown()
			}()

			return srv.Start()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a vitrina.toml config file")
	cmd.Flags().BoolVar(&noTrigger, "no-trigger", false, "disable the daily trigger")
	return cmd
}

// loadConfig loads from an explicit file or the merged default sources
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		TickInterval: time.Duration(cfg.Scheduler.TickIntervalMs) * time.Millisecond,
		MaxAttempts:  cfg.Scheduler.MaxAttempts,
		GuardedTicks: cfg.Scheduler.GuardedTicks,
	}
}

func pipelineConfig(cfg *config.Config) scheduler.PipelineConfig {
	return scheduler.PipelineConfig{
		ConditionalReset: cfg.Scoring.ConditionalReset,
	}
}
