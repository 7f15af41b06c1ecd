package appconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment selects environment-specific behaviour such as in-memory
// stores for tests and the debug endpoints outside production.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// ParseEnvironment converts a config value into an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "production", "prod":
		return Production, nil
	}
	return Development, fmt.Errorf("unknown environment %q", s)
}

// Config holds the process-wide settings shared by the CLI and the HTTP surface.
type Config struct {
	Env             Environment
	DataDir         string
	LogLevel        string
	LogFormat       string
	Port            int
	ProbeInterval   time.Duration
	SuggestionLimit int
	Verbose         bool
	// APIKeys guard the write methods of the HTTP surface. Empty means
	// writes are open.
	APIKeys []string
	// RateLimit is the number of requests per second allowed per client;
	// zero disables limiting.
	RateLimit int
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

const envPrefix = "TRANSITSTORE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("port", 4000)
	v.SetDefault("probe_interval", "0s")
	v.SetDefault("suggestion_limit", 7)
	v.SetDefault("verbose", false)
	v.SetDefault("api_keys", []string{})
	v.SetDefault("rate_limit", 0)
}

// Load reads configuration from path (optional), then the TRANSITSTORE_*
// environment. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	env, err := ParseEnvironment(v.GetString("env"))
	if err != nil {
		return Config{}, &ConfigError{Field: "env", Message: err.Error()}
	}

	cfg := Config{
		Env:             env,
		DataDir:         v.GetString("data_dir"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		Port:            v.GetInt("port"),
		ProbeInterval:   v.GetDuration("probe_interval"),
		SuggestionLimit: v.GetInt("suggestion_limit"),
		Verbose:         v.GetBool("verbose"),
		APIKeys:         v.GetStringSlice("api_keys"),
		RateLimit:       v.GetInt("rate_limit"),
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the store cannot run with.
func (c Config) Validate() error {
	if c.Env != Test && c.DataDir == "" {
		return &ConfigError{Field: "data_dir", Message: "must not be empty"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Message: "out of range"}
	}
	if c.ProbeInterval < 0 {
		return &ConfigError{Field: "probe_interval", Message: "must not be negative"}
	}
	if c.RateLimit < 0 {
		return &ConfigError{Field: "rate_limit", Message: "must not be negative"}
	}
	if c.SuggestionLimit <= 0 {
		return &ConfigError{Field: "suggestion_limit", Message: "must be positive"}
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return &ConfigError{Field: "log_format", Message: "must be json or text"}
	}
	return nil
}
