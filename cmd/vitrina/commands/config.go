package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vitrina/pulso/config"
	"github.com/vitrina/pulso/errors"
)

// NewConfigCommand manages the Vitrina configuration.
//
// Configuration sources (in order of precedence):
// environment variables (VITRINA_* prefix) > project config (./vitrina.toml,
// searched up the directory tree) > user config (~/.vitrina/config.toml) >
// system config (/etc/vitrina/config.toml) > defaults.
func NewConfigCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Vitrina configuration",
		Long: `Display and persist Vitrina configuration settings.

Examples:
  vitrina config show                        # Show current configuration
  vitrina config show --format json          # Show configuration in JSON format
  vitrina config get scheduler.max_attempts  # Get a specific value
  vitrina config set scoring.popular_cutoff 0.25`,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current Vitrina configuration merged from all sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			return printConfig(config.GetViper().AllSettings(), format)
		},
	}
	showCmd.Flags().StringVar(&format, "format", "toml", "Output format: toml, json, yaml")

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a specific configuration value",
		Long:  "Get a specific configuration value using dot notation (e.g., database.path, scheduler.max_attempts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			v := config.GetViper()
			if !v.IsSet(key) {
				return errors.Newf("configuration key %q not found", key)
			}
			fmt.Println(v.Get(key))
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a configuration value",
		Long: `Persist a configuration value to the user config file using dot notation.

The previous file is kept as a rotating backup (.back1 through .back3).
Values are parsed as bool, integer or float where possible, otherwise
stored as strings.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := parseSettingValue(args[1])

			configPath := config.UserConfigPath()
			if err := config.SetValue(configPath, key, value); err != nil {
				return errors.Wrapf(err, "failed to persist %s", key)
			}

			fmt.Printf("Saved %s = %v to %s\n", key, value, configPath)
			return nil
		},
	}

	cmd.AddCommand(showCmd)
	cmd.AddCommand(getCmd)
	cmd.AddCommand(setCmd)
	return cmd
}

func printConfig(settings map[string]interface{}, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# Vitrina configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# Vitrina configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}

	return nil
}

// parseSettingValue narrows a CLI argument to the TOML type it represents
func parseSettingValue(raw string) interface{} {
	// Integers before bools: ParseBool would claim "1" and "0"
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
