package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/srodi/procwatch/pkg/report"
	"github.com/srodi/procwatch/pkg/types"
)

const (
	// ConfigName is the config file name without extension.
	ConfigName = "procwatch"
	// EnvPrefix prefixes environment overrides, e.g. PROCWATCH_SORTBY.
	EnvPrefix = "PROCWATCH"
)

// Validation errors, wrapped with the offending value.
var (
	ErrInvalidView   = errors.New("invalid view")
	ErrInvalidOutput = errors.New("invalid output format")
)

// Config holds the runtime settings of procwatch.
type Config struct {
	RefreshInterval time.Duration `mapstructure:"refreshInterval"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	Warmup          time.Duration `mapstructure:"warmup"`
	View            string        `mapstructure:"view"`
	SortBy          string        `mapstructure:"sortBy"`
	HideKernel      bool          `mapstructure:"hideKernel"`
	NameFilter      string        `mapstructure:"nameFilter"`
	EvictExited     bool          `mapstructure:"evictExited"`
	LogLevel        string        `mapstructure:"logLevel"`
	LogFile         string        `mapstructure:"logFile"`
	Output          string        `mapstructure:"output"`
	Once            bool          `mapstructure:"once"`
}

// LoadConfig reads procwatch.yaml from path, then PROCWATCH_* environment
// variables. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")

	v.SetDefault("refreshInterval", types.DefaultRefreshInterval)
	v.SetDefault("pollInterval", time.Second)
	v.SetDefault("warmup", time.Second)
	v.SetDefault("view", types.ViewList.String())
	v.SetDefault("sortBy", string(report.SortCPU))
	v.SetDefault("hideKernel", false)
	v.SetDefault("nameFilter", "")
	v.SetDefault("evictExited", true)
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFile", "")
	v.SetDefault("output", "text")
	v.SetDefault("once", false)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate normalizes string fields and rejects values the engine cannot use.
func (c *Config) Validate() error {
	var errs []error

	if c.RefreshInterval <= 0 {
		c.RefreshInterval = types.DefaultRefreshInterval
	}
	if c.PollInterval <= 0 || c.PollInterval > c.RefreshInterval {
		c.PollInterval = min(time.Second, c.RefreshInterval)
	}
	if c.Warmup < 0 {
		c.Warmup = 0
	}

	if _, err := types.ParseView(c.View); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidView, c.View))
	}
	c.View = strings.ToLower(strings.TrimSpace(c.View))

	sortBy, err := report.ParseSortBy(c.SortBy)
	if err != nil {
		errs = append(errs, err)
	}
	c.SortBy = string(sortBy)

	c.Output = strings.ToLower(strings.TrimSpace(c.Output))
	switch c.Output {
	case "":
		c.Output = "text"
	case "text", "yaml":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidOutput, c.Output))
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return errors.Join(errs...)
}

// ParsedView returns the configured view. Call after Validate.
func (c Config) ParsedView() types.View {
	v, _ := types.ParseView(c.View)
	return v
}
