package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/griddist/core/pkg/config"
	"github.com/griddist/core/pkg/xlog"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded config and logger, available to every subcommand after
	// PersistentPreRunE runs.
	cfg    *config.Config
	logger xlog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gridctl",
	Short: "Driver CLI for a distributed adaptive mesh grid processor",
	Long: `gridctl drives one processor of a distributed adaptive mesh grid
manager: it can serve a processor's transfer endpoint, run a refine/
coarsen step from a mark file, submit a migration (priority-change)
plan, or inspect a running processor's invariants and recent activity.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := xlog.LevelInfo
		if verbose {
			logLevel = xlog.LevelDebug
		}
		logger = xlog.NewDefaultLogger(logLevel, os.Stdout)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (defaults: ./gridctl.yaml, ./configs/gridctl.yaml, /etc/griddist/gridctl.yaml)")

	binName := BinName()
	rootCmd.Example = `  # Start a processor's transfer endpoint
  ` + binName + ` serve --listen :7070 --peer 0=host0:7070 --peer 1=host1:7070

  # Run one refine/coarsen step from a mark file
  ` + binName + ` adapt --level 0 --marks ./marks.json

  # Submit a priority-change migration plan
  ` + binName + ` migrate --plan ./migration.json

  # Inspect a running processor's invariants and recent activity
  ` + binName + ` inspect`
}

// GetLogger returns the configured logger.
func GetLogger() xlog.Logger {
	return logger
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
