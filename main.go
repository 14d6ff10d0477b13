package main

import (
	"fmt"
	"os"
	"strings"

	"braintacle/config"
	"braintacle/database"
	"braintacle/loader"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "braintacle",
	Short: "Braintacle - administration console for OCS Inventory NG",
	Long: `Braintacle manages the inventory database of an OCS Inventory NG
installation: clients, groups, software packages, duplicate detection and
merging, operators and server preferences.

Run "braintacle serve" to start the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		zc := zap.NewProductionConfig()
		level := zapcore.InfoLevel
		if err := level.Set(strings.ToLower(cfg.Logging.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		zc.Level = zap.NewAtomicLevelAt(level)
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// openDatabase opens the configured database and applies the schema.
func openDatabase() (*sqlx.DB, error) {
	cfg := config.GetConfig()
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := loader.InitDatabase(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Opened database", zap.String("path", cfg.Database))
	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
