// Package cmd provides the docsite command-line interface.
//
// Configuration is read, highest priority first, from:
//
//  1. Command-line flags (--port, --host, ...)
//  2. DOCSITE_* environment variables and the plain PORT, HOST, NODE_ENV,
//     MICRO_CACHE and TRANSLATE variables
//  3. The config file: --config, else DOCSITE_CONFIG_FILE, else .docsite.yml
//  4. Built-in defaults
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/docsite/internal/config"
	"github.com/conneroisu/docsite/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docsite",
	Short: "Multilingual documentation site server",
	Long: `docsite serves a multilingual documentation site.

Requests without a language prefix are redirected to the visitor's language,
prefixed requests are rendered from Markdown content into the page template
and briefly cached in memory.

Quick Start:
  docsite serve                  Start the server
  docsite routes                 Show redirects and languages
  docsite version                Show build information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .docsite.yml, can also use DOCSITE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
	})
}

// initConfig picks the config file and wires environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".docsite")
	}

	config.BindEnv(viper.GetViper())

	// A missing or unreadable file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags binds every flag named in keys to its configuration key.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	flags.VisitAll(func(f *pflag.Flag) {
		if key, ok := keys[f.Name]; ok {
			_ = viper.BindPFlag(key, f)
		}
	})
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
