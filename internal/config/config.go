package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kalambet/calcdeck/internal/history"
	"github.com/kalambet/calcdeck/internal/storage"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	History HistoryConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
}

type StorageConfig struct {
	Backend string
	DataDir string
}

type HistoryConfig struct {
	Cap int
	Key string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			MaxConns: 64,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
			DataDir: defaultDataDir(),
		},
		History: HistoryConfig{
			Cap: history.DefaultCap,
			Key: history.DefaultKey,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/calcdeck/config.json, then applies CALCDECK_*
// environment overrides. The API token is not part of Config; see APIToken.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var logLevels = []string{"debug", "info", "warn", "error"}

func (c Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d is out of range", c.Server.Port)
	}
	if c.Server.MaxConns < 1 {
		return fmt.Errorf("invalid config: server.max_conns must be at least 1")
	}
	if !slices.Contains(storage.Backends(), c.Storage.Backend) {
		return fmt.Errorf("invalid config: storage.backend %q (want one of %s)",
			c.Storage.Backend, strings.Join(storage.Backends(), ", "))
	}
	if c.Storage.DataDir == "" && c.Storage.Backend != storage.BackendMemory {
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	}
	if c.History.Cap < 1 {
		return fmt.Errorf("invalid config: history.cap must be at least 1")
	}
	if strings.TrimSpace(c.History.Key) == "" {
		return fmt.Errorf("invalid config: history.key is empty")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid config: log.level %q (want one of %s)", c.Log.Level, strings.Join(logLevels, ", "))
	}
	return nil
}
