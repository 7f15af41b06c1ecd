package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"transitstore.org/internal/appconf"
	"transitstore.org/internal/logging"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dataDir    string
	env        string
	logLevel   string
	logFormat  string
	apiKeys    string
	port       int
	rateLimit  int
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "transitstore",
		Short: "Transit schedule and user data store",
		Long: `transitstore serves the transit, stm and data families as addressable
resources, over HTTP or straight from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	opts.bindFlags(rootCmd)

	rootCmd.AddCommand(
		newServeCmd(opts),
		newQueryCmd(opts),
		newInsertCmd(opts),
		newDeleteCmd(opts),
		newMetaCmd(opts),
		newSchemaCmd(opts),
		newInstallCmd(opts),
		newImportGTFSCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "Path to a config file (yaml, json or toml)")
	flags.StringVar(&o.dataDir, "data-dir", "", "Directory holding the family databases")
	flags.StringVar(&o.env, "env", "", "Environment (development|test|production)")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flags.StringVar(&o.logFormat, "log-format", "", "Log format (json|text)")
	flags.StringVar(&o.apiKeys, "api-keys", "", "Comma separated API keys guarding HTTP writes")
	flags.IntVar(&o.port, "port", 0, "API server port")
	flags.IntVar(&o.rateLimit, "rate-limit", 0, "Requests per second per client, 0 disables")
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (appconf.Config, error) {
	cfg, err := appconf.Load(o.configPath)
	if err != nil {
		var cfgErr *appconf.ConfigError
		// Flags may still repair a bad value; anything else is fatal.
		if !errors.As(err, &cfgErr) {
			return appconf.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("env") {
		env, err := appconf.ParseEnvironment(o.env)
		if err != nil {
			return appconf.Config{}, &appconf.ConfigError{Field: "env", Message: err.Error()}
		}
		cfg.Env = env
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("api-keys") {
		cfg.APIKeys = ParseAPIKeys(o.apiKeys)
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = o.rateLimit
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger. Command output goes to stdout, so
// logs are written to stderr.
func newLogger(cfg appconf.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewStructuredLogger(w, level, cfg.LogFormat), nil
}

// ParseAPIKeys splits a comma separated flag value into trimmed keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	keys := strings.Split(s, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}
