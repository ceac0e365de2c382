// Command sheetbridge keeps a table of a workbook in sync with a row cache
// and edits it from the command line.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetbridge/sheetbridge/internal/config"
	"github.com/sheetbridge/sheetbridge/internal/logging"
)

var (
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "sheetbridge",
	Short: "Two-way sync between a workbook table and an in-memory row cache",
	Long: `sheetbridge keeps the rows of one workbook table cached in memory and in
step with the workbook. Edits made through sheetbridge are written to the
workbook first; edits made to the workbook by anyone else flow back into the
cache.

Settings come from sheetbridge.yaml (or --config), SHEETBRIDGE_* environment
variables and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		v := config.New(path)
		if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
			return err
		}
		if err := v.BindPFlag("workbook.path", cmd.Flags().Lookup("workbook")); err != nil {
			return err
		}

		loaded, err := config.Load(v, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		cfg = loaded

		logger, closeLog = logging.Setup(logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		logger.Debug("config loaded", "file", v.ConfigFileUsed(), "backend", cfg.Workbook.Backend)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultFile, "Config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("workbook", "", "Workbook path, overrides workbook.path")

	rootCmd.AddGroup(
		&cobra.Group{ID: "rows", Title: "Row commands:"},
		&cobra.Group{ID: "sheet", Title: "Sheet commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
