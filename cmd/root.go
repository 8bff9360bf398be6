/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"strings"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codegenie",
	Short: "CodeGenie coding assistant backend",
	Long: `CodeGenie serves code generation and explanation backed by a model
server, together with accounts, activity history and an admin dashboard.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
}

// loadConfig reads the --config file when given and the environment.
func loadConfig() (config.Config, error) {
	if strings.TrimSpace(configFile) == "" {
		return config.LoadConfig(), nil
	}
	return config.Load(configFile)
}

// cliLogger writes human-readable logs to stderr for one-shot commands.
func cliLogger(cfg config.Config) logging.Logger {
	return logging.New(os.Stderr, "text", cfg.Log.Level)
}
