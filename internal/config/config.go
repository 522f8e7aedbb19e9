// Package config manages application configuration from files, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/klytics/rosterbot/internal/commands"
)

// EnvPrefix prefixes every environment override: data.path → ROSTER_DATA_PATH.
const EnvPrefix = "ROSTER"

// LocalFile is read from the working directory in preference to the home
// config.
const LocalFile = "rosterbot.yaml"

// Config holds the application configuration.
type Config struct {
	Data struct {
		Path     string        `mapstructure:"path"`
		Sheet    string        `mapstructure:"sheet"`
		Watch    bool          `mapstructure:"watch"`
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"data"`
	Upload struct {
		Filename       string `mapstructure:"filename"`
		TempDir        string `mapstructure:"temp_dir"`
		ConfirmCommand string `mapstructure:"confirm_command"`
	} `mapstructure:"upload"`
	Bot struct {
		SearchPrefixes []string `mapstructure:"search_prefixes"`
		Welcome        bool     `mapstructure:"welcome"`
	} `mapstructure:"bot"`
	Fields commands.Fields `mapstructure:"fields"`
	Bridge struct {
		Path       string `mapstructure:"path"`
		Node       string `mapstructure:"node"`
		SessionDir string `mapstructure:"session_dir"`
		ClientID   string `mapstructure:"client_id"`
		Headless   bool   `mapstructure:"headless"`
	} `mapstructure:"bridge"`
	Server struct {
		Port        int    `mapstructure:"port"`
		ExternalURL string `mapstructure:"external_url"`
		PublicDir   string `mapstructure:"public_dir"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Audit struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"audit"`
}

// Addr is the listen address of the web server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func setDefaults() {
	viper.SetDefault("data.path", filepath.Join("data", "data.xlsx"))
	viper.SetDefault("data.sheet", "Feuil1")
	viper.SetDefault("data.watch", true)
	viper.SetDefault("data.debounce", 500*time.Millisecond)

	viper.SetDefault("upload.filename", "data.xlsx")
	viper.SetDefault("upload.temp_dir", filepath.Join("data", "tmp"))
	viper.SetDefault("upload.confirm_command", commands.DefaultConfirmCommand)

	viper.SetDefault("bot.search_prefixes", commands.DefaultSearchPrefixes)
	viper.SetDefault("bot.welcome", true)

	f := commands.DefaultFields()
	viper.SetDefault("fields.name", f.Name)
	viper.SetDefault("fields.phone", f.Phone)
	viper.SetDefault("fields.role", f.Role)
	viper.SetDefault("fields.trip", f.Trip)
	viper.SetDefault("fields.hotel", f.Hotel)
	viper.SetDefault("fields.room", f.Room)

	viper.SetDefault("bridge.path", "")
	viper.SetDefault("bridge.node", "node")
	viper.SetDefault("bridge.session_dir", ".wwebjs_auth")
	viper.SetDefault("bridge.client_id", "session-bot")
	viper.SetDefault("bridge.headless", true)

	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.external_url", "")
	viper.SetDefault("server.public_dir", "public")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.path", filepath.Join("data", "audit.jsonl"))
}

// Load reads .env, then the config file (explicit path, ./rosterbot.yaml or
// ~/.rosterbot/config.yaml), then ROSTER_* environment overrides. PORT is
// honoured for server.port.
func Load(explicit string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not read .env: %w", err)
	}

	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")

	if path := resolveFile(explicit); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			if explicit != "" || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("could not read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	return &cfg, nil
}

// resolveFile picks the config file to read, or "" when none exists.
func resolveFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(LocalFile); err == nil {
		return LocalFile
	}
	if _, err := os.Stat(ConfigPath()); err == nil {
		return ConfigPath()
	}
	return ""
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rosterbot"
	}
	return filepath.Join(home, ".rosterbot")
}

// ConfigPath returns the path to the per-user config file.
func ConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// FileUsed returns the config file Load read, or "" when running on defaults.
func FileUsed() string {
	return viper.ConfigFileUsed()
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	switch viper.Get(key).(type) {
	case []string, []any:
		return strings.Join(viper.GetStringSlice(key), ", ")
	}
	return viper.GetString(key)
}

// SaveConfig writes the current settings back to the file in use, or to
// ~/.rosterbot/config.yaml.
func SaveConfig() error {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}
	os.Chmod(path, 0600)
	return nil
}
