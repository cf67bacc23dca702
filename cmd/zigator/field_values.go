package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zigator-go/zigator/internal/analysis"
)

var fieldValuesCmd = &cobra.Command{
	Use:   "field-values <out-dir>",
	Short: "Write one TSV file per packet type listing the distinct values each field takes",
	Args:  cobra.ExactArgs(1),
	RunE:  runFieldValues,
}

func init() {
	rootCmd.AddCommand(fieldValuesCmd)
}

func runFieldValues(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := analysis.Run(cmd.Context(), store, args[0], cfg.Worker.Count, log.Logger); err != nil {
		return fmt.Errorf("field-values: %w", err)
	}

	log.Info().Str("out_dir", args[0]).Msg("field-values complete")
	return nil
}
