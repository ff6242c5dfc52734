// Package config resolves imgedit settings from config.toml, IMGEDIT_*
// environment variables and command-line flags, in rising priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/manash/imgedit/internal/history"
	"github.com/manash/imgedit/pkg/models"
)

const (
	configName = "config"
	configType = "toml"
	envPrefix  = "IMGEDIT"

	KeyModel        = "model"
	KeyFormat       = "format"
	KeyHistoryLimit = "history_limit"
	KeyTimeout      = "timeout"
	KeyBaseURL      = "base_url"
	KeyPreviewDir   = "preview_dir"
	KeyVerbose      = "verbose"
	KeyAPIKey       = "api_key"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Model        string
	Format       models.OutputFormat
	HistoryLimit int
	Timeout      time.Duration
	BaseURL      string
	// PreviewDir, when set, makes previews temp files there instead of data URLs.
	PreviewDir string
	Verbose    bool
	APIKey     string
	// File is the config file that was read, empty if none was found.
	File string
}

// New returns a viper instance that looks for config.toml in dir.
func New(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if dir != "" {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyModel, "gpt-image-1")
	v.SetDefault(KeyFormat, string(models.FormatPNG))
	v.SetDefault(KeyHistoryLimit, history.DefaultLimit)
	v.SetDefault(KeyTimeout, "2m")
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyPreviewDir, "")
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyAPIKey, "")
	return v
}

// Load reads the config file if present and resolves every setting.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Model:        strings.TrimSpace(v.GetString(KeyModel)),
		Format:       models.OutputFormat(strings.ToLower(v.GetString(KeyFormat))),
		HistoryLimit: v.GetInt(KeyHistoryLimit),
		Timeout:      v.GetDuration(KeyTimeout),
		BaseURL:      v.GetString(KeyBaseURL),
		PreviewDir:   v.GetString(KeyPreviewDir),
		Verbose:      v.GetBool(KeyVerbose),
		APIKey:       v.GetString(KeyAPIKey),
		File:         v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is empty", ErrInvalidConfig)
	}
	if !c.Format.IsValid() {
		return fmt.Errorf("%w: format %q", ErrInvalidConfig, c.Format)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("%w: history_limit must not be negative", ErrInvalidConfig)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("%w: timeout %s is below one second (use a duration like \"90s\")", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// LoadDotEnv loads environment variables from a .env file. A missing file
// is not an error; variables already set are left alone.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
