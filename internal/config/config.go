package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/wintracker/internal/logger"
)

// Backend names accepted by the backend setting.
const (
	BackendAuto  = "auto"
	BackendWin32 = "win32"
	BackendX11   = "x11"
	BackendFake  = "fake"
)

// Config represents the application configuration
type Config struct {
	LogLevel      string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty     bool          `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	Backend       string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	ServerPort    int           `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	WatchInterval time.Duration `json:"watch_interval" yaml:"watch_interval" mapstructure:"watch_interval"`
}

// Defaults returns the configuration written on first run.
func Defaults() Config {
	return Config{
		LogLevel:      "info",
		LogPretty:     true,
		Backend:       BackendAuto,
		ServerPort:    8080,
		WatchInterval: 500 * time.Millisecond,
	}
}

// Validate checks values that viper cannot type-check.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendWin32, BackendX11, BackendFake:
	default:
		return fmt.Errorf("invalid backend %q (use auto, win32, x11 or fake)", c.Backend)
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerPort)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("invalid watch interval %s", c.WatchInterval)
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	mu         sync.RWMutex

	// sets holds values changed through Set; Save writes them over the file
	// without the environment and flag overrides v also carries.
	sets map[string]any
}

// DefaultPath returns $HOME/.config/wintracker/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "wintracker", "config.yaml"), nil
}

// NewManager loads configFile (or the default path), creating it with
// defaults when it does not exist.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{
		configPath: path,
		v:          newViper(path),
		sets:       make(map[string]any),
	}

	if err := m.v.ReadInConfig(); err != nil {
		if !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")
	return m, nil
}

func newViper(path string) *viper.Viper {
	v := newFileViper(path)
	v.SetEnvPrefix("WINTRACKER")
	v.AutomaticEnv()
	return v
}

// newFileViper reads only the file and the defaults.
func newFileViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	d := Defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("watch_interval", d.WatchInterval)
	return v
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Get returns a copy of the effective configuration (file, env, and bound
// flags merged by viper).
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		logger.WithComponent("config").Warn().Err(err).Msg("Failed to decode config, using defaults")
		return Defaults()
	}
	return cfg
}

// GetViper exposes the underlying viper instance for key-level access.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Set updates one key in memory. Call Save to persist it.
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Set(key, value)
	m.sets[key] = value
}

// fileValues returns what the file holds with pending Set values applied.
func (m *Manager) fileValues() (Config, error) {
	fv := newFileViper(m.configPath)
	if err := fv.ReadInConfig(); err != nil && !isNotExist(err) {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	m.mu.RLock()
	for key, value := range m.sets {
		fv.Set(key, value)
	}
	m.mu.RUnlock()

	var cfg Config
	if err := fv.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Save writes the file's values plus anything changed through Set.
// Environment and flag overrides are never persisted.
func (m *Manager) Save() error {
	cfg, err := m.fileValues()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(toFile(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// fileConfig is the on-disk shape: durations as strings so the file stays
// readable and viper parses them back.
type fileConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogPretty     bool   `yaml:"log_pretty"`
	Backend       string `yaml:"backend"`
	ServerPort    int    `yaml:"server_port"`
	WatchInterval string `yaml:"watch_interval"`
}

func toFile(c Config) fileConfig {
	return fileConfig{
		LogLevel:      c.LogLevel,
		LogPretty:     c.LogPretty,
		Backend:       c.Backend,
		ServerPort:    c.ServerPort,
		WatchInterval: c.WatchInterval.String(),
	}
}

// MarshalYAML renders durations as strings, matching the file format.
func (c Config) MarshalYAML() (any, error) {
	return toFile(c), nil
}

// GetConfigPath returns the path of the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
