package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/wintracker/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage wintracker configuration",
	Long:  `View and manage wintracker configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current wintracker configuration.`,
	Example: `  # Show configuration as YAML (default)
  wintracker config show

  # Show configuration as JSON
  wintracker config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value.`,
	Example: `  # Set server port
  wintracker config set server_port 9090

  # Use the X11 backend
  wintracker config set backend x11

  # Print every second in watch mode
  wintracker config set watch_interval 1s`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get server port
  wintracker config get server_port`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return writeConfig(cmd.OutOrStdout(), configMgr.Get(), formatFlag)
}

func writeConfig(out io.Writer, cfg config.Config, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]

	value, err := parseConfigValue(key, args[1])
	if err != nil {
		return err
	}

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configMgr.Set(key, value)
	if err := configMgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration updated: %s = %s\n", key, args[1])
	return nil
}

// parseConfigValue converts a command-line value to the type stored under
// key. Range checks are left to Config.Validate.
func parseConfigValue(key, value string) (any, error) {
	switch key {
	case "server_port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", value)
		}
		return port, nil
	case "log_pretty":
		pretty, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		return pretty, nil
	case "watch_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %s (e.g. 500ms, 2s)", value)
		}
		return d.String(), nil
	case "log_level", "backend":
		return value, nil
	default:
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}
