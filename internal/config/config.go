// Package config loads application configuration from defaults, an optional
// YAML file, KNOLSCHED_ environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knolsched/internal/memory"
)

// EnvPrefix prefixes every environment override. A double underscore separates
// key levels, so KNOLSCHED_SERVER__ADDR sets server.addr.
const EnvPrefix = "KNOLSCHED_"

// Config is the application configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Settings  SettingsConfig  `koanf:"settings"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Sources   SourcesConfig   `koanf:"sources"`
}

type DatabaseConfig struct {
	Path    string `koanf:"path" validate:"required"`
	MaxScan int    `koanf:"max_scan" validate:"gte=0"`
}

type ServerConfig struct {
	Addr       string  `koanf:"addr" validate:"required"`
	WriteRate  float64 `koanf:"write_rate" validate:"gte=0"`
	WriteBurst int     `koanf:"write_burst" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	File   string `koanf:"file"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type SettingsConfig struct {
	File string `koanf:"file" validate:"required"`
}

// SchedulerConfig holds the memory model parameters and the time zone that
// defines a study day.
type SchedulerConfig struct {
	memory.Config `koanf:",squash"`
	Timezone      string `koanf:"timezone" validate:"omitempty,timezone"`
}

type SourcesConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:  DatabaseConfig{Path: "knolsched.db", MaxScan: 5000},
		Server:    ServerConfig{Addr: ":8080", WriteRate: 10, WriteBurst: 20},
		Log:       LogConfig{Level: "info", Format: "text"},
		Settings:  SettingsConfig{File: "settings.json"},
		Scheduler: SchedulerConfig{Config: memory.DefaultConfig()},
		Sources:   SourcesConfig{ReposDir: "repos"},
	}
}

// Location returns the configured study-day time zone, or time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Scheduler.Timezone)
}

// flagKeys maps flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"db":        "database.path",
	"addr":      "server.addr",
	"settings":  "settings.file",
	"log-level": "log.level",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", d.Database.Path, "Path to the SQLite database file")
	fs.String("addr", d.Server.Addr, "HTTP listen address")
	fs.String("settings", d.Settings.File, "Path to the user settings file (json, yaml or toml)")
	fs.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration from fs, which must have been parsed.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("failed to open config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagValue(fs)), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func flagValue(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
