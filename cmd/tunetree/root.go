package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tunetree/tunetree/internal/config"
	"github.com/tunetree/tunetree/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tunetree",
	Short: "Tunetree inspects and serves hyperparameter optimization runs",
	Long:  `Tunetree tracks hyperparameter optimization trials in an on-disk repository and exposes them for inspection over the CLI and HTTP.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("dir", "", "Repository directory (overrides the config file)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// loadConfig resolves the effective configuration from flags and the
// optional config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.RepositoryDir = dir
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return logging.New(level)
}
