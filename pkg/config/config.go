// Package config loads the immutable runtime configuration from an optional
// preferences file, FILECORE_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "FILECORE"
	defaultConfigName = "preferences"
)

// Config is the complete configuration snapshot. It is passed by value and
// never mutated after Load returns.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Analyze AnalyzeConfig `mapstructure:"analyze"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains HTTP transport settings.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" validate:"required"`
	AppName         string        `mapstructure:"app_name" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// StorageConfig describes the storage root and its reserved subdirectories.
type StorageConfig struct {
	// Root is the top level directory every request path is resolved against.
	Root string `mapstructure:"root" validate:"required"`

	// StagingDir and RecycleDir are single path elements below Root.
	StagingDir string `mapstructure:"staging_dir" validate:"required,excludesall=/\\,nefield=RecycleDir"`
	RecycleDir string `mapstructure:"recycle_dir" validate:"required,excludesall=/\\"`

	// MaxConflictProbes bounds the name-N search for a free file name.
	MaxConflictProbes int `mapstructure:"max_conflict_probes" validate:"gte=1"`

	// SerializeWrites serializes commits to the same destination path.
	SerializeWrites bool `mapstructure:"serialize_writes"`

	// Exclude lists doublestar patterns, relative to Root, hidden from
	// listings, walks and archives.
	Exclude []string `mapstructure:"exclude"`
}

// ArchiveConfig selects the container used for folder downloads.
type ArchiveConfig struct {
	Format string `mapstructure:"format" validate:"oneof=zip tar.gz tar.zst"`
	Level  string `mapstructure:"level" validate:"oneof=fastest default better best"`
}

// AnalyzeConfig configures the command run on files uploaded for analysis.
// Every {path} in Command is replaced by the committed file path.
type AnalyzeConfig struct {
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Enabled reports whether an analysis command is configured.
func (a AnalyzeConfig) Enabled() bool {
	return len(a.Command) > 0
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// StagingPath returns the absolute staging directory.
func (c Config) StagingPath() string {
	return filepath.Join(c.Storage.Root, c.Storage.StagingDir)
}

// RecyclePath returns the absolute recycle directory.
func (c Config) RecyclePath() string {
	return filepath.Join(c.Storage.Root, c.Storage.RecycleDir)
}

// Load builds the configuration snapshot. configPath may be empty, in which
// case a preferences file is searched in the working directory. flags may be
// nil; when set, changed flags override file and environment values.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	_ = normalize(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.app_name", "filecore")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.root", "../images")
	v.SetDefault("storage.staging_dir", ".staging")
	v.SetDefault("storage.recycle_dir", ".recycle")
	v.SetDefault("storage.max_conflict_probes", 10000)
	v.SetDefault("storage.serialize_writes", false)
	v.SetDefault("storage.exclude", []string{})

	v.SetDefault("archive.format", "zip")
	v.SetDefault("archive.level", "default")

	v.SetDefault("analyze.command", []string{})
	v.SetDefault("analyze.timeout", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"listen":     "server.listen",
	"root":       "storage.root",
	"format":     "archive.format",
	"log-level":  "logging.level",
	"log-format": "logging.format",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}

func normalize(cfg *Config) error {
	if cfg.Storage.Root != "" {
		root, err := filepath.Abs(cfg.Storage.Root)
		if err != nil {
			return fmt.Errorf("failed to resolve storage root: %w", err)
		}
		cfg.Storage.Root = root
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	exclude := make([]string, 0, len(cfg.Storage.Exclude))
	for _, pattern := range cfg.Storage.Exclude {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			exclude = append(exclude, pattern)
		}
	}
	cfg.Storage.Exclude = exclude
	return nil
}
