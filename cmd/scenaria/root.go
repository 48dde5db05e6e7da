package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/scenaria/internal/config"
	"github.com/aretw0/scenaria/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scenaria",
	Short: "Scenaria edits automation scenarios with undo, redo and versioned saves",
	Long: `Scenaria is a headless editor for automation scenarios: steps laid out in nested
branches and linked by relations. Edits are recorded as commands, can be undone and
redone, and are saved as versioned batches to the configured storage driver.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// The context is cancelled on interrupt so long-running commands stop gracefully.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (default: ./scenaria.yaml)")
	rootCmd.PersistentFlags().String("driver", "", "Storage driver override: memory, file, sqlite or redis")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override: debug, info, warn or error")
}

// loadConfig reads the configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewWithFormat(cmd.ErrOrStderr(), level, logging.Format(cfg.Log.Format))
	return cfg, logger, nil
}

// bootstrap loads the configuration and builds the application graph.
func bootstrap(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}
