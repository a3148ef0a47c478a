package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/vitrina/pulso/cmd/vitrina/commands"
	"github.com/vitrina/pulso/logger"
)

var (
	jsonLogs bool
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "vitrina",
	Short: "Vitrina - catalog popularity scoring and scheduling engine",
	Long: `Vitrina recomputes popularity and featured rankings for catalog items.

It runs a multi-queue work scheduler with bounded retries, a daily trigger
that re-scores the whole active catalog at a fixed local time, and an admin
HTTP surface for operating both.

Available commands:
  serve   - Start the admin server, scheduler and daily trigger
  score   - Run scoring operations in the foreground
  db      - Manage database operations
  config  - Manage configuration

Examples:
  vitrina serve            # Start the engine
  vitrina score run        # Run one daily pipeline pass and exit
  vitrina db migrate       # Apply pending schema migrations
  vitrina db stats         # Show row counts
  vitrina config show      # Show the merged configuration
  vitrina config set scheduler.max_attempts 5`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if verbose {
			if err := logger.SetLevel(zapcore.DebugLevel); err != nil {
				return fmt.Errorf("failed to enable verbose logging: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewScoreCommand())
	rootCmd.AddCommand(commands.NewDBCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
