package main

import (
	"github.com/spf13/cobra"
)

var printConfigCmd = &cobra.Command{
	Use:   "print-config",
	Short: "Load the configuration file and print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runPrintConfig,
}

func init() {
	rootCmd.AddCommand(printConfigCmd)
}

func runPrintConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.PrintConfigSummary()
	return nil
}
