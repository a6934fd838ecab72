package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/wintracker/internal/backend"
	"github.com/bryanchriswhite/wintracker/internal/config"
	"github.com/bryanchriswhite/wintracker/internal/logger"
	"github.com/bryanchriswhite/wintracker/internal/tracker"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "wintracker",
		Short: "wintracker - live cache of top-level window geometry and titles",
		Long: `wintracker keeps an up-to-date table of the visible top-level windows on
the desktop, with their screen rectangles and titles.

Features:
  • Seed scan of existing windows at startup
  • Live updates from the window system's event hook
  • Win32 and X11 backends, plus a fake backend for demos
  • Table, text and JSON output
  • REST and WebSocket API`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wintracker/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "window backend (auto, win32, x11, fake)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"port":      "server_port",
	"log-level": "log_level",
	"backend":   "backend",
}

// loadConfig reads the config file, applies flag overrides, validates the
// result and initializes logging from it.
func loadConfig(cmd *cobra.Command) (*config.Manager, config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	for name, key := range flagKeys {
		if f := cmd.Flag(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, config.Config{}, fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}

	cfg := configMgr.Get()
	if err := cfg.Validate(); err != nil {
		return nil, config.Config{}, err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}

// startTracker opens the configured backend and starts tracking on it. The
// returned func stops the tracker and closes the backend.
func startTracker(cfg config.Config) (*tracker.Tracker, func(), error) {
	p, err := backend.Open(cfg.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}

	t, err := tracker.Start(p)
	if err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("failed to start window tracker: %w", err)
	}

	log := logger.WithComponent("cli")
	stop := func() {
		if err := t.Stop(); err != nil {
			log.Error().Err(err).Msg("Window tracker exited abnormally")
		}
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close backend")
		}
	}
	return t, stop, nil
}
