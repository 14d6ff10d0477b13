package main

import (
	"fmt"
	"os"

	"braintacle/loader"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importEncoding   string
	importSkipHeader bool
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Database maintenance",
}

var databaseInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create missing tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
		return nil
	},
}

var databaseImportCmd = &cobra.Command{
	Use:   "import-devices [file]",
	Short: "Import scanned network devices from CSV",
	Long: `Imports network devices from a CSV file with the columns
MAC address, IP address, hostname and description. Existing devices with the
same MAC address are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		imported, skipped, err := loader.ImportNetworkDevices(db, f, importEncoding, importSkipHeader, logger)
		if err != nil {
			return err
		}
		logger.Info("Imported network devices", zap.Int("imported", imported), zap.Int("skipped", skipped))
		fmt.Fprintf(cmd.OutOrStdout(), "%d devices imported, %d skipped.\n", imported, skipped)
		return nil
	},
}

func init() {
	databaseImportCmd.Flags().StringVar(&importEncoding, "encoding", "utf-8", "character encoding of the file")
	databaseImportCmd.Flags().BoolVar(&importSkipHeader, "skip-header", false, "ignore the first line")
	databaseCmd.AddCommand(databaseInitCmd, databaseImportCmd)
	rootCmd.AddCommand(databaseCmd)
}
