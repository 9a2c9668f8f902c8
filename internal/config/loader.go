package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configDir  = ".statq"
	configFile = "config"
	configType = "yaml"
)

// Load reads the configuration from ~/.statq/config.yaml.
// Returns an empty config if the file does not exist.
func Load() (*Config, error) {
	dir, err := configDirPath()
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configFile)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)

	cfg := &Config{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to ~/.statq/config.yaml. Passwords never
// reach the file; StorePassword puts them in the keyring instead.
func Save(cfg *Config) error {
	dir, err := configDirPath()
	if err != nil {
		return fmt.Errorf("config dir: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.Set("connections", cfg.Connections)
	v.Set("preferences", cfg.Preferences)

	path := filepath.Join(dir, configFile+"."+configType)
	return v.WriteConfigAs(path)
}

// SaveConnection adds a profile, moves its password to the keyring and
// persists the config file.
func SaveConnection(cfg *Config, conn Connection) error {
	if err := conn.StorePassword(); err != nil {
		return err
	}
	cfg.AddConnection(conn)
	return Save(cfg)
}

// DefaultConnection returns the default connection from config, or the
// first one.
func DefaultConnection(cfg *Config) *Connection {
	if len(cfg.Connections) == 0 {
		return nil
	}

	if cfg.Preferences.DefaultConnection != "" {
		for i := range cfg.Connections {
			if cfg.Connections[i].Name == cfg.Preferences.DefaultConnection {
				return &cfg.Connections[i]
			}
		}
	}

	return &cfg.Connections[0]
}

func configDirPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDir), nil
}
