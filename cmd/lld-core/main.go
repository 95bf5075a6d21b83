package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lldsync/core-go/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "lld-core",
	Short:         "Low-level discovery reconciliation service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("LLD_CONFIG"), "Path to a YAML config file (env LLD_CONFIG)")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
